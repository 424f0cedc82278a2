// Package config loads and validates the service configuration.
//
// Configuration is resolved in three layers: compiled-in defaults, an
// optional YAML file, then MANUALKB_* environment variables. The API key
// itself is never stored in the file; the file names the environment
// variable to read it from (api_key_env), and the key is resolved at
// embedder construction time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid tags every validation failure so callers can distinguish a
// bad configuration from an unreadable file.
var ErrInvalid = errors.New("invalid configuration")

// Backend names for VectorStoreConfig.Backend.
const (
	BackendSQLite = "sqlite"
	BackendChroma = "chroma"
)

// Config is the full service configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Keyword     KeywordConfig     `yaml:"keyword"`
	Search      SearchConfig      `yaml:"search"`
	Cache       CacheConfig       `yaml:"cache"`
	Log         LogConfig         `yaml:"log"`
}

// SourceConfig locates the manual corpus. Path may be a single file or a
// directory that is walked for .md and .txt files.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// ChunkingConfig tunes the sliding-window chunker.
type ChunkingConfig struct {
	Size      int  `yaml:"size"`
	Overlap   int  `yaml:"overlap"`
	Normalize bool `yaml:"normalize"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	CacheSize   int    `yaml:"cache_size"`
}

// Timeout returns the per-request HTTP timeout.
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// APIKey resolves the credential from the configured environment
// variable. Empty when unset or when no variable is configured.
func (c EmbeddingConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// VectorStoreConfig selects the vector store backend. The sqlite backend
// is embedded and needs only a database path; the chroma backend talks to
// a server at URL.
type VectorStoreConfig struct {
	Backend     string `yaml:"backend"`
	URL         string `yaml:"url"`
	Collection  string `yaml:"collection"`
	Path        string `yaml:"path"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the per-request timeout for the chroma backend.
func (c VectorStoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// KeywordConfig tunes the BM25 scoring function.
type KeywordConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	HybridWeight      float64 `yaml:"hybrid_weight"`
	DefaultTopK       int     `yaml:"default_top_k"`
	MaxTopK           int     `yaml:"max_top_k"`
	Overdraw          int     `yaml:"overdraw"`
	SubqueryTimeoutMS int     `yaml:"subquery_timeout_ms"`
}

// SubqueryTimeout returns the per-ranking timeout inside a hybrid query.
func (c SearchConfig) SubqueryTimeout() time.Duration {
	return time.Duration(c.SubqueryTimeoutMS) * time.Millisecond
}

// CacheConfig tunes the similarity-keyed response cache.
type CacheConfig struct {
	Enabled             bool    `yaml:"enabled"`
	TTLSecs             int     `yaml:"ttl_secs"`
	MaxSize             int     `yaml:"max_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// LogConfig tunes the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the compiled-in configuration. All values are valid on
// their own; a deployment typically only needs to set source.path and the
// embedding credentials.
func Default() *Config {
	return &Config{
		Source: SourceConfig{},
		Chunking: ChunkingConfig{
			Size:      300,
			Overlap:   100,
			Normalize: true,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   1024,
			BatchSize:   10,
			TimeoutSecs: 30,
			MaxRetries:  3,
			CacheSize:   10000,
		},
		VectorStore: VectorStoreConfig{
			Backend:     BackendSQLite,
			URL:         "http://localhost:8000",
			Collection:  "manual_chunks",
			Path:        "manualkb.db",
			TimeoutSecs: 30,
		},
		Keyword: KeywordConfig{
			K1: 1.2,
			B:  0.75,
		},
		Search: SearchConfig{
			HybridWeight:      0.7,
			DefaultTopK:       5,
			MaxTopK:           50,
			Overdraw:          10,
			SubqueryTimeoutMS: 5000,
		},
		Cache: CacheConfig{
			Enabled:             true,
			TTLSecs:             600,
			MaxSize:             100,
			SimilarityThreshold: 0.90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, then validates the result. An empty
// path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MANUALKB_* environment variables onto the config.
// Unparseable numeric or boolean values are ignored rather than fatal.
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("MANUALKB_SOURCE_PATH", &c.Source.Path)
	setString("MANUALKB_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("MANUALKB_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("MANUALKB_EMBEDDING_MODEL", &c.Embedding.Model)
	setString("MANUALKB_EMBEDDING_API_KEY_ENV", &c.Embedding.APIKeyEnv)
	setString("MANUALKB_VECTOR_BACKEND", &c.VectorStore.Backend)
	setString("MANUALKB_VECTOR_URL", &c.VectorStore.URL)
	setString("MANUALKB_VECTOR_COLLECTION", &c.VectorStore.Collection)
	setString("MANUALKB_VECTOR_PATH", &c.VectorStore.Path)
	setString("MANUALKB_LOG_LEVEL", &c.Log.Level)
	setString("MANUALKB_LOG_FORMAT", &c.Log.Format)
	setBool("MANUALKB_CACHE_ENABLED", &c.Cache.Enabled)
	setFloat("MANUALKB_HYBRID_WEIGHT", &c.Search.HybridWeight)
}

// Validate reports the first configuration error found. Every returned
// error wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("%w: source.path is required", ErrInvalid)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunking.size must be positive, got %d", ErrInvalid, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunking.overlap must not be negative, got %d", ErrInvalid, c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap (%d) must be less than chunking.size (%d)",
			ErrInvalid, c.Chunking.Overlap, c.Chunking.Size)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "openai", "local":
	default:
		return fmt.Errorf("%w: embedding.provider must be openai or local, got %q", ErrInvalid, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive, got %d", ErrInvalid, c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("%w: embedding.batch_size must be at least 1, got %d", ErrInvalid, c.Embedding.BatchSize)
	}
	if c.Embedding.TimeoutSecs <= 0 {
		return fmt.Errorf("%w: embedding.timeout_secs must be positive, got %d", ErrInvalid, c.Embedding.TimeoutSecs)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: embedding.max_retries must not be negative, got %d", ErrInvalid, c.Embedding.MaxRetries)
	}

	switch strings.ToLower(c.VectorStore.Backend) {
	case BackendSQLite:
		if c.VectorStore.Path == "" {
			return fmt.Errorf("%w: vector_store.path is required for the sqlite backend", ErrInvalid)
		}
	case BackendChroma:
		if c.VectorStore.URL == "" {
			return fmt.Errorf("%w: vector_store.url is required for the chroma backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: vector_store.backend must be sqlite or chroma, got %q", ErrInvalid, c.VectorStore.Backend)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("%w: vector_store.collection is required", ErrInvalid)
	}

	if c.Keyword.K1 <= 0 {
		return fmt.Errorf("%w: keyword.k1 must be positive, got %g", ErrInvalid, c.Keyword.K1)
	}
	if c.Keyword.B < 0 || c.Keyword.B > 1 {
		return fmt.Errorf("%w: keyword.b must be in [0,1], got %g", ErrInvalid, c.Keyword.B)
	}

	if c.Search.HybridWeight < 0 || c.Search.HybridWeight > 1 {
		return fmt.Errorf("%w: search.hybrid_weight must be in [0,1], got %g", ErrInvalid, c.Search.HybridWeight)
	}
	if c.Search.DefaultTopK < 1 {
		return fmt.Errorf("%w: search.default_top_k must be at least 1, got %d", ErrInvalid, c.Search.DefaultTopK)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("%w: search.max_top_k (%d) must not be less than search.default_top_k (%d)",
			ErrInvalid, c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Search.Overdraw < 1 {
		return fmt.Errorf("%w: search.overdraw must be at least 1, got %d", ErrInvalid, c.Search.Overdraw)
	}
	if c.Search.SubqueryTimeoutMS <= 0 {
		return fmt.Errorf("%w: search.subquery_timeout_ms must be positive, got %d", ErrInvalid, c.Search.SubqueryTimeoutMS)
	}

	if c.Cache.TTLSecs <= 0 {
		return fmt.Errorf("%w: cache.ttl_secs must be positive, got %d", ErrInvalid, c.Cache.TTLSecs)
	}
	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("%w: cache.max_size must be at least 1, got %d", ErrInvalid, c.Cache.MaxSize)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: cache.similarity_threshold must be in (0,1], got %g", ErrInvalid, c.Cache.SimilarityThreshold)
	}

	return nil
}
