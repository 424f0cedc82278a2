// Package embedder converts manual text into fixed-dimension vectors through
// an external embeddings API, with batching, retries, and caching.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    key,
//	    Dimension: 1024,
//	    BatchSize: 10,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := emb.GenerateBatch(ctx, texts)
//
// # Ordering Guarantee
//
// GenerateBatch is order- and length-preserving: vectors[i] belongs to
// texts[i], regardless of how many sub-batches were issued or how the
// provider ordered its response. Responses are explicitly re-sorted by their
// index field; arrival order is never trusted.
//
// # Batching
//
// Inputs are split into sub-batches of at most the configured batch size and
// issued with bounded parallelism, which caps outbound request volume during
// a full index rebuild.
//
// # Caching
//
// Vectors are cached in an LRU keyed by content hash:
//
//	hash := embedder.ComputeHash(text)
//	if vec, ok := cache.Get(hash); ok {
//	    return vec // no provider call
//	}
//
// Rebuilding an unchanged document re-embeds nothing, and the response
// cache's query embedding is reused when the same query falls through to
// retrieval.
//
// # Error Classes
//
// A missing API key surfaces at construction as ErrNoAPIKey. Transient
// network failures, 429s and 5xx responses are retried with exponential
// backoff; auth rejections, malformed responses, and dimension mismatches
// are surfaced immediately:
//
//	vectors, err := emb.GenerateBatch(ctx, texts)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable after retries
//	}
//
// # Providers
//
// "openai" talks to any OpenAI-compatible embeddings endpoint (the base URL
// is configurable for self-hosted gateways and tests). "local" derives
// deterministic unit vectors from content hashes and exists for offline
// development and tests.
package embedder
