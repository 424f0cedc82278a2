package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// DefaultBaseURL is the OpenAI-compatible endpoint root; overridable for
	// self-hosted gateways and tests
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the default embedding model
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the embedding width requested from the provider
	DefaultDimension = 1024

	// Batch limits
	DefaultBatchSize = 10
	MaxBatchSize     = 100

	// maxConcurrentBatches bounds parallel outbound requests so a large
	// rebuild cannot fan out without limit
	maxConcurrentBatches = 4

	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	// DefaultCacheSize is the default embedding cache capacity
	DefaultCacheSize = 10000
)

// Config holds provider construction parameters. Zero fields fall back to
// the package defaults.
type Config struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	BatchSize int
	Timeout   time.Duration
	CacheSize int
	Retry     RetryConfig
}

// OpenAIProvider implements Embedder over an OpenAI-compatible embeddings API
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	batchSize  int
	retry      RetryConfig
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates an embedder for an OpenAI-compatible API. The
// API key is required; a missing key is a configuration error, not a retry
// candidate.
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrNoAPIKey, ProviderOpenAI)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}

	return &OpenAIProvider{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		retry:     retry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := o.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// GenerateBatch embeds texts in sub-batches of at most batchSize, issued with
// bounded parallelism. Cached texts are filled without a provider call.
func (o *OpenAIProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))

	// Resolve cache hits first so only misses go over the wire
	miss := make([]int, 0, len(texts))
	for i, text := range texts {
		if o.cache != nil {
			if vec, ok := o.cache.Get(ComputeHash(text)); ok {
				results[i] = vec
				continue
			}
		}
		miss = append(miss, i)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(miss); start += o.batchSize {
		end := start + o.batchSize
		if end > len(miss) {
			end = len(miss)
		}
		indexes := miss[start:end]

		group.Go(func() error {
			batch := make([]string, len(indexes))
			for j, i := range indexes {
				batch[j] = texts[i]
			}

			vectors, err := retryWithBackoff(gctx, o.retry, func() ([][]float32, error) {
				return o.callAPI(gctx, batch)
			})
			if err != nil {
				return err
			}

			for j, i := range indexes {
				results[i] = vectors[j]
				if o.cache != nil {
					o.cache.Set(ComputeHash(texts[i]), vectors[j])
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	return results, nil
}

// callAPI performs one embeddings request and reassembles the vectors by the
// response's index field. Provider responses are not trusted to preserve
// input order.
func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model":      o.model,
		"input":      texts,
		"dimensions": o.dimension,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		// Network failures are the transient class worth retrying
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if retryableStatus(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, permanent(apiErr)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, permanent(fmt.Errorf("decode response: %w", err))
	}

	if len(apiResp.Data) != len(texts) {
		return nil, permanent(fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrProviderFailed, len(apiResp.Data), len(texts)))
	}

	// Re-sort by the index field before use
	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(texts))
	for i, data := range apiResp.Data {
		if data.Index != i {
			return nil, permanent(fmt.Errorf("%w: duplicate or out-of-range index %d",
				ErrProviderFailed, data.Index))
		}
		if len(data.Embedding) != o.dimension {
			return nil, permanent(fmt.Errorf("%w: got %d, want %d",
				ErrDimensionMismatch, len(data.Embedding), o.dimension))
		}
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

// retryableStatus reports whether an HTTP status indicates a transient
// condition. Auth and validation failures are permanent.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors without any
// network dependency, for offline development and tests
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder
func NewLocalProvider(cfg Config, cache *Cache) (*LocalProvider, error) {
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &LocalProvider{
		model:     "local-hash-v1",
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if l.cache != nil {
		if vec, ok := l.cache.Get(hash); ok {
			return vec, nil
		}
	}

	vector := hashVector(text, l.dimension)

	if l.cache != nil {
		l.cache.Set(hash, vector)
	}

	return vector, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashVector expands SHA-256 blocks of the text into a unit-length vector of
// the requested dimension. Identical text always yields an identical vector.
func hashVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)

	block := sha256.Sum256([]byte(text))
	for i := 0; i < dimension; i++ {
		if i%len(block) == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		// Spread bytes into [-1, 1)
		vector[i] = float32(block[i%len(block)])/128.0 - 1.0
	}

	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
