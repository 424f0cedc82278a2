package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"manualkb/internal/embedder"
	"manualkb/internal/keyword"
	"manualkb/internal/storage"
	"manualkb/internal/telemetry"
	"manualkb/pkg/types"
)

// SearchMode defines how a query is answered
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with weighted score fusion
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 keyword ranking only
)

// Search configuration defaults.
const (
	DefaultHybridWeight    = 0.7
	DefaultTopK            = 5
	DefaultMaxTopK         = 50
	DefaultOverdraw        = 10
	DefaultSubqueryTimeout = 5 * time.Second
)

// VectorQuerier is the vector side of a published index pair.
type VectorQuerier interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]storage.VectorResult, error)
}

// KeywordQuerier is the BM25 side of a published index pair.
type KeywordQuerier interface {
	Query(ctx context.Context, text string, topK int) ([]keyword.Result, error)
}

// IndexProvider supplies the currently published index pair. Each call
// returns one consistent snapshot; a rebuild concluding mid-query never
// mixes old and new indexes within a single search.
type IndexProvider interface {
	Indexes() (VectorQuerier, KeywordQuerier, error)
}

// Config tunes retrieval behavior. Zero fields fall back to the package
// defaults.
type Config struct {
	// HybridWeight is the vector share of the fused score; the keyword
	// share is its complement. Zero is a valid weight (pure keyword
	// scoring); out-of-range values fall back to the default.
	HybridWeight float64
	// DefaultTopK applies when a request leaves TopK unset.
	DefaultTopK int
	// MaxTopK caps the requested result count.
	MaxTopK int
	// Overdraw is the minimum candidate count fetched from each ranking
	// before fusion, so the fused head draws from a wide enough pool.
	Overdraw int
	// SubqueryTimeout bounds each ranking inside a hybrid query. A side
	// that misses the deadline is treated as failed and the query
	// degrades to the other side.
	SubqueryTimeout time.Duration
}

// DefaultConfig returns the documented retrieval defaults.
func DefaultConfig() Config {
	return Config{
		HybridWeight:    DefaultHybridWeight,
		DefaultTopK:     DefaultTopK,
		MaxTopK:         DefaultMaxTopK,
		Overdraw:        DefaultOverdraw,
		SubqueryTimeout: DefaultSubqueryTimeout,
	}
}

// SearchRequest contains parameters for a retrieval operation
type SearchRequest struct {
	Query string
	TopK  int
	Mode  SearchMode
	// UseCache asks the caller's response cache to serve this request if
	// possible. The searcher itself never caches; the service layer
	// honors this flag.
	UseCache bool
}

// SearchResponse contains ranked results and retrieval metadata
type SearchResponse struct {
	Results      []types.RankedChunk
	TotalResults int
	SearchMode   SearchMode
	Duration     time.Duration
	CacheHit     bool

	// Degraded reports that one ranking of a hybrid query failed and the
	// results come from the surviving ranking alone.
	Degraded       bool
	DegradedReason string

	// Candidate pool sizes before fusion.
	VectorCandidates  int
	KeywordCandidates int
}

// Searcher answers queries against the published index pair. It holds no
// index data itself; every search fetches the current pair from the
// provider, so a rebuild becomes visible to the next query without any
// coordination here.
type Searcher struct {
	provider IndexProvider
	embedder embedder.Embedder
	cfg      Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// New creates a Searcher. Metrics may be nil.
func New(provider IndexProvider, emb embedder.Embedder, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Searcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HybridWeight < 0 || cfg.HybridWeight > 1 {
		cfg.HybridWeight = DefaultHybridWeight
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	if cfg.Overdraw <= 0 {
		cfg.Overdraw = DefaultOverdraw
	}
	if cfg.SubqueryTimeout <= 0 {
		cfg.SubqueryTimeout = DefaultSubqueryTimeout
	}

	return &Searcher{
		provider: provider,
		embedder: emb,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search runs one retrieval operation. It fails with types.ErrNotReady
// while no index pair is published and with types.ErrEmptyQuery for a
// blank query. A caller-supplied deadline propagates to the embedding
// call and both index queries.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	vec, kw, err := s.provider.Indexes()
	if err != nil {
		return nil, err
	}

	var response *SearchResponse
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req, vec, kw)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req, vec)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req, kw)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidSearchMode, req.Mode)
	}

	if err != nil {
		s.metrics.RecordQueryError(ctx, string(req.Mode))
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode
	s.metrics.RecordQuery(ctx, string(req.Mode), response.Degraded, response.Duration)

	s.logger.Debug("search complete",
		"mode", req.Mode,
		"top_k", req.TopK,
		"results", response.TotalResults,
		"degraded", response.Degraded,
		"duration_ms", response.Duration.Milliseconds(),
	)

	return response, nil
}

// subqueryResult carries one ranking's candidates out of its goroutine.
type subqueryResult struct {
	vectorResults  []storage.VectorResult
	keywordResults []keyword.Result
	err            error
}

// runVectorQuery embeds the query and searches the vector index, bounded
// by the subquery timeout.
func (s *Searcher) runVectorQuery(ctx context.Context, query string, limit int, vec VectorQuerier, resultChan chan<- subqueryResult) {
	subCtx, cancel := context.WithTimeout(ctx, s.cfg.SubqueryTimeout)
	defer cancel()

	var res subqueryResult
	s.metrics.RecordEmbeddedTexts(ctx, "query", 1)
	queryEmbedding, err := s.embedder.GenerateEmbedding(subCtx, query)
	if err != nil {
		res.err = fmt.Errorf("generate query embedding: %w", err)
	} else {
		res.vectorResults, res.err = vec.Query(subCtx, queryEmbedding, limit)
	}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runKeywordQuery searches the BM25 index, bounded by the subquery
// timeout.
func (s *Searcher) runKeywordQuery(ctx context.Context, query string, limit int, kw KeywordQuerier, resultChan chan<- subqueryResult) {
	subCtx, cancel := context.WithTimeout(ctx, s.cfg.SubqueryTimeout)
	defer cancel()

	var res subqueryResult
	res.keywordResults, res.err = kw.Query(subCtx, query, limit)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch runs both rankings concurrently and fuses them with
// weighted min-max scoring. One ranking may fail; the query then falls
// back to the surviving ranking and the response is tagged degraded.
// Both failing, or the caller's context expiring, is an error.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest, vec VectorQuerier, kw KeywordQuerier) (*SearchResponse, error) {
	// Overdraw both rankings so fusion has a candidate pool wider than
	// the final cut.
	limit := req.TopK
	if limit < s.cfg.Overdraw {
		limit = s.cfg.Overdraw
	}

	vectorChan := make(chan subqueryResult, 1)
	keywordChan := make(chan subqueryResult, 1)

	go s.runVectorQuery(ctx, req.Query, limit, vec, vectorChan)
	go s.runKeywordQuery(ctx, req.Query, limit, kw, keywordChan)

	// Wait for both rankings
	var vectorRes, keywordRes subqueryResult
	var vectorDone, keywordDone bool
	for !vectorDone || !keywordDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case keywordRes = <-keywordChan:
			keywordDone = true
		case <-ctx.Done():
			return nil, fmt.Errorf("hybrid search: %w", ctx.Err())
		}
	}

	// Check for errors (allow one ranking to fail)
	if vectorRes.err != nil && keywordRes.err != nil {
		return nil, fmt.Errorf("both rankings failed: vector=%w, keyword=%v", vectorRes.err, keywordRes.err)
	}

	if vectorRes.err != nil {
		s.logger.Warn("vector ranking failed, serving keyword results only", "error", vectorRes.err)
		response := buildKeywordResponse(keywordRes.keywordResults, req.TopK)
		response.Degraded = true
		response.DegradedReason = fmt.Sprintf("vector ranking unavailable: %v", vectorRes.err)
		return response, nil
	}
	if keywordRes.err != nil {
		s.logger.Warn("keyword ranking failed, serving vector results only", "error", keywordRes.err)
		response := buildVectorResponse(vectorRes.vectorResults, req.TopK)
		response.Degraded = true
		response.DegradedReason = fmt.Sprintf("keyword ranking unavailable: %v", keywordRes.err)
		return response, nil
	}

	results := fuseRankings(vectorRes.vectorResults, keywordRes.keywordResults, s.cfg.HybridWeight, req.TopK)

	return &SearchResponse{
		Results:           results,
		TotalResults:      len(results),
		VectorCandidates:  len(vectorRes.vectorResults),
		KeywordCandidates: len(keywordRes.keywordResults),
	}, nil
}

// vectorSearch answers from the vector index alone.
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest, vec VectorQuerier) (*SearchResponse, error) {
	s.metrics.RecordEmbeddedTexts(ctx, "query", 1)
	queryEmbedding, err := s.embedder.GenerateEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("generate query embedding: %w", err)
	}

	vectorResults, err := vec.Query(ctx, queryEmbedding, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	return buildVectorResponse(vectorResults, req.TopK), nil
}

// keywordSearch answers from the BM25 index alone.
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest, kw KeywordQuerier) (*SearchResponse, error) {
	keywordResults, err := kw.Query(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("keyword query: %w", err)
	}

	return buildKeywordResponse(keywordResults, req.TopK), nil
}

// validateRequest applies defaults and rejects unanswerable requests.
// A whitespace-only query is as unanswerable as an empty one.
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return types.ErrEmptyQuery
	}

	if req.TopK <= 0 {
		req.TopK = s.cfg.DefaultTopK
	}
	if req.TopK > s.cfg.MaxTopK {
		req.TopK = s.cfg.MaxTopK
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}

	return nil
}
