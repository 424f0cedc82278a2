package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"manualkb/internal/cache"
	"manualkb/internal/chunker"
	"manualkb/internal/config"
	"manualkb/internal/embedder"
	"manualkb/internal/indexer"
	"manualkb/internal/keyword"
	"manualkb/internal/searcher"
	"manualkb/internal/storage"
	"manualkb/internal/telemetry"
)

// Service owns the retrieval stack: vector store, embedding provider, index
// lifecycle, hybrid searcher, and response cache. The MCP layer and the CLIs
// talk to the service only.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	store       storage.Store
	embedder    embedder.Embedder
	lifecycle   *indexer.Lifecycle
	searcher    *searcher.Searcher
	cache       *cache.Cache[*searcher.SearchResponse]
	defaultTopK int
}

// indexProvider adapts the lifecycle's concrete index pair to the searcher's
// querier interfaces.
type indexProvider struct {
	lifecycle *indexer.Lifecycle
}

func (p *indexProvider) Indexes() (searcher.VectorQuerier, searcher.KeywordQuerier, error) {
	vec, kw, err := p.lifecycle.Indexes()
	if err != nil {
		return nil, nil, err
	}
	return vec, kw, nil
}

// New wires the full stack from configuration. The embedding provider and
// vector store are constructed here; no index is built until Initialize.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
		metrics = nil
	}

	retry := embedder.DefaultRetryConfig()
	if cfg.Embedding.MaxRetries > 0 {
		retry.MaxRetries = cfg.Embedding.MaxRetries
	}
	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey(),
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout(),
		CacheSize: cfg.Embedding.CacheSize,
		Retry:     retry,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	chk, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.Normalize)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	lifecycle := indexer.New(store, emb, chk, indexer.Config{
		SourcePath: cfg.Source.Path,
		Collection: cfg.VectorStore.Collection,
		KeywordOptions: keyword.Options{
			K1: cfg.Keyword.K1,
			B:  cfg.Keyword.B,
		},
	}, logger, metrics)

	srch := searcher.New(&indexProvider{lifecycle: lifecycle}, emb, searcher.Config{
		HybridWeight:    cfg.Search.HybridWeight,
		DefaultTopK:     cfg.Search.DefaultTopK,
		MaxTopK:         cfg.Search.MaxTopK,
		Overdraw:        cfg.Search.Overdraw,
		SubqueryTimeout: cfg.Search.SubqueryTimeout(),
	}, logger, metrics)

	defaultTopK := cfg.Search.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = searcher.DefaultTopK
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		store:       store,
		embedder:    emb,
		lifecycle:   lifecycle,
		searcher:    srch,
		defaultTopK: defaultTopK,
	}
	if cfg.Cache.Enabled {
		s.cache = cache.New[*searcher.SearchResponse](emb, cache.Config{
			TTL:                 cfg.Cache.TTL(),
			MaxSize:             cfg.Cache.MaxSize,
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		}, logger)
	}
	return s, nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.VectorStore.Backend {
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStore(cfg.VectorStore.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.VectorStore.Path, err)
		}
		return store, nil
	case config.BackendChroma:
		return storage.NewChromaStore(storage.ChromaConfig{
			BaseURL: cfg.VectorStore.URL,
			Timeout: cfg.VectorStore.Timeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported vector store backend %q", cfg.VectorStore.Backend)
	}
}

// Initialize builds the index unless a build already succeeded.
func (s *Service) Initialize(ctx context.Context) error {
	return s.lifecycle.Initialize(ctx)
}

// Rebuild re-indexes the source corpus and publishes the new index pair.
// The response cache is purged on success because cached responses reference
// chunks of the previous index.
func (s *Service) Rebuild(ctx context.Context) error {
	if err := s.lifecycle.Rebuild(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Purge()
		s.logger.Debug("response cache purged after rebuild")
	}
	return nil
}

// Status reports the lifecycle state and active index details.
func (s *Service) Status() indexer.Status {
	return s.lifecycle.Status()
}

// Statistics reports counters from the most recent successful build.
func (s *Service) Statistics() indexer.Statistics {
	return s.lifecycle.Statistics()
}

// Info is a status snapshot of the whole retrieval stack.
type Info struct {
	Index    indexer.Status
	Cache    CacheInfo
	Embedder EmbedderInfo
	Backend  string
}

// CacheInfo describes the response cache occupancy.
type CacheInfo struct {
	Enabled  bool
	Entries  int
	Capacity int
}

// EmbedderInfo describes the configured embedding provider.
type EmbedderInfo struct {
	Provider  string
	Model     string
	Dimension int
}

// Info returns the current status snapshot.
func (s *Service) Info() Info {
	info := Info{
		Index:   s.lifecycle.Status(),
		Backend: s.cfg.VectorStore.Backend,
		Embedder: EmbedderInfo{
			Provider:  s.embedder.Provider(),
			Model:     s.embedder.Model(),
			Dimension: s.embedder.Dimension(),
		},
	}
	if s.cache != nil {
		info.Cache = CacheInfo{
			Enabled:  true,
			Entries:  s.cache.Len(),
			Capacity: s.cache.Capacity(),
		}
	}
	return info
}

// Query answers a plain text question with the default hybrid request
// shape, serving from the response cache when possible.
func (s *Service) Query(ctx context.Context, text string, topK int) (*searcher.SearchResponse, error) {
	return s.Search(ctx, searcher.SearchRequest{Query: text, TopK: topK, UseCache: true})
}

// Search answers a retrieval request, serving from the response cache when
// the request allows it. A cache hit is marked on a copy of the stored
// response; the cached original stays untouched.
func (s *Service) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	if !s.cacheable(req) {
		return s.searcher.Search(ctx, req)
	}

	resp, hit, err := s.LookupOrCompute(ctx, req.Query, func(ctx context.Context) (*searcher.SearchResponse, error) {
		return s.searcher.Search(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		s.logger.Debug("response served from cache", "results", resp.TotalResults)
		served := *resp
		served.CacheHit = true
		return &served, nil
	}
	return resp, nil
}

// LookupOrCompute runs compute through the response cache keyed by the
// query's embedding. The boolean reports whether the result came from the
// cache. With the cache disabled, compute always runs and nothing is stored.
func (s *Service) LookupOrCompute(ctx context.Context, queryText string, compute func(context.Context) (*searcher.SearchResponse, error)) (*searcher.SearchResponse, bool, error) {
	if s.cache == nil {
		resp, err := compute(ctx)
		return resp, false, err
	}

	resp, hit, err := s.cache.LookupOrCompute(ctx, queryText, compute)
	if err == nil {
		s.metrics.RecordCacheLookup(ctx, hit)
	}
	return resp, hit, err
}

// cacheable reports whether a request may be served from the response cache.
// Cached entries are whole responses keyed by query meaning alone, so only
// the default request shape is eligible: hybrid mode with the default result
// count. Blank queries skip the cache so validation rejects them before any
// embedding call.
func (s *Service) cacheable(req searcher.SearchRequest) bool {
	if s.cache == nil || !req.UseCache {
		return false
	}
	if strings.TrimSpace(req.Query) == "" {
		return false
	}
	if req.Mode != "" && req.Mode != searcher.SearchModeHybrid {
		return false
	}
	return req.TopK == 0 || req.TopK == s.defaultTopK
}

// Close releases the embedding provider and the vector store.
func (s *Service) Close() error {
	embErr := s.embedder.Close()
	storeErr := s.store.Close()
	if embErr != nil {
		return embErr
	}
	return storeErr
}
