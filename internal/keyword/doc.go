// Package keyword provides an in-memory BM25 inverted index over manual
// chunks.
//
// The index complements vector search: embeddings capture paraphrase, BM25
// captures the exact part names and error codes that embeddings blur. Both
// rankings are fused by the searcher.
//
// # Usage
//
//	idx := keyword.Build(chunks, keyword.DefaultOptions())
//
//	results, err := idx.Query(ctx, "タイヤ 空気圧", 5)
//	for _, r := range results {
//	    fmt.Printf("%s  %.3f\n", r.ChunkID, r.Score)
//	}
//
// # Rebuilds
//
// An Index is immutable. The index lifecycle builds a fresh one whenever the
// chunk set changes and publishes it together with the matching vector
// collection, so readers never observe a half-updated index. Incremental
// posting updates are deliberately not supported.
//
// # Scoring
//
// Standard BM25 with k1=1.2 and b=0.75 by default. Query text and chunk text
// share the tokenizer package's normalization; scoring uses the non-negative
// IDF variant ln(1 + (N-df+0.5)/(df+0.5)).
package keyword
