package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

// writeEmbeddings answers one embeddings request with deterministic vectors
// derived from each input text. When reorder is set the data entries are
// emitted in reverse, which a correct client must undo via the index field.
func writeEmbeddings(w http.ResponseWriter, req embeddingRequest, reorder bool) {
	entries := make([]map[string]interface{}, len(req.Input))
	for i, text := range req.Input {
		entries[i] = map[string]interface{}{
			"embedding": hashVector(text, req.Dimensions),
			"index":     i,
		}
	}
	if reorder {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  entries,
		"model": req.Model,
	})
}

func decodeEmbeddingRequest(t *testing.T, r *http.Request) embeddingRequest {
	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	if r.Method != http.MethodPost {
		t.Errorf("Expected POST request, got %s", r.Method)
	}
	if r.Header.Get("Authorization") != "Bearer test-key" {
		t.Errorf("Missing or incorrect Authorization header")
	}
	return req
}

func newTestProvider(t *testing.T, baseURL string, dimension int, cache *Cache) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProvider(Config{
		APIKey:    "test-key",
		BaseURL:   baseURL,
		Dimension: dimension,
		BatchSize: 10,
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  1 * time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			Multiplier: 2.0,
		},
	}, cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("provider metadata and defaults", func(t *testing.T) {
		provider, err := NewOpenAIProvider(Config{APIKey: "test-key"}, nil)
		require.NoError(t, err)
		defer provider.Close()

		if provider.Provider() != ProviderOpenAI {
			t.Errorf("Provider() = %s, want %s", provider.Provider(), ProviderOpenAI)
		}
		if provider.Dimension() != DefaultDimension {
			t.Errorf("Dimension() = %d, want %d", provider.Dimension(), DefaultDimension)
		}
		if provider.Model() != DefaultModel {
			t.Errorf("Model() = %s, want %s", provider.Model(), DefaultModel)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := NewOpenAIProvider(Config{}, nil)
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("validation before network", func(t *testing.T) {
		// No server behind this URL; validation must fail first
		provider := newTestProvider(t, "http://127.0.0.1:0", 8, nil)
		ctx := context.Background()

		_, err := provider.GenerateEmbedding(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = provider.GenerateBatch(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = provider.GenerateBatch(ctx, []string{"ok", ""})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestGenerateBatch_OrderPreserved(t *testing.T) {
	const dimension = 8

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeEmbeddingRequest(t, r)
		writeEmbeddings(w, req, true)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, dimension, nil)

	texts := []string{"brake pedal", "seat heater", "fuel gauge"}
	vectors, err := provider.GenerateBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// Each position must hold the vector for its own text even though the
	// server answered in reverse order
	for i, text := range texts {
		assert.Equal(t, hashVector(text, dimension), vectors[i], "vector at position %d", i)
	}
}

func TestGenerateBatch_SubBatching(t *testing.T) {
	const dimension = 8

	var calls atomic.Int32
	var mu sync.Mutex
	maxInput := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		req := decodeEmbeddingRequest(t, r)

		mu.Lock()
		if len(req.Input) > maxInput {
			maxInput = len(req.Input)
		}
		mu.Unlock()

		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, dimension, nil)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %02d", i)
	}

	vectors, err := provider.GenerateBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 25)

	assert.Equal(t, int32(3), calls.Load(), "25 texts at batch size 10 need 3 requests")
	assert.LessOrEqual(t, maxInput, 10, "no request may exceed the batch size")

	for i, text := range texts {
		assert.Equal(t, hashVector(text, dimension), vectors[i], "vector at position %d", i)
	}
}

func TestGenerateBatch_RetriesTransient(t *testing.T) {
	const dimension = 8

	tests := []struct {
		name   string
		status int
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "rate limited", status: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(tt.status)
					return
				}
				req := decodeEmbeddingRequest(t, r)
				writeEmbeddings(w, req, false)
			}))
			defer server.Close()

			provider := newTestProvider(t, server.URL, dimension, nil)

			vectors, err := provider.GenerateBatch(context.Background(), []string{"retry me"})
			require.NoError(t, err)
			require.Len(t, vectors, 1)
			assert.Equal(t, int32(3), calls.Load(), "should succeed on the third attempt")
		})
	}
}

func TestGenerateBatch_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, 8, nil)

	_, err := provider.GenerateBatch(context.Background(), []string{"never works"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(3), calls.Load(), "should stop after MaxRetries attempts")
}

func TestGenerateBatch_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, 8, nil)

	_, err := provider.GenerateBatch(context.Background(), []string{"bad credentials"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestGenerateBatch_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		req := decodeEmbeddingRequest(t, r)
		// Answer with half the requested width
		req.Dimensions = 4
		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, 8, nil)

	_, err := provider.GenerateBatch(context.Background(), []string{"wrong width"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, int32(1), calls.Load(), "malformed responses must not be retried")
}

func TestGenerateBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeEmbeddingRequest(t, r)
		// Drop the last input from the response
		req.Input = req.Input[:len(req.Input)-1]
		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, 8, nil)

	_, err := provider.GenerateBatch(context.Background(), []string{"one", "two", "three"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "2 embeddings for 3 texts")
}

func TestGenerateBatch_UsesCache(t *testing.T) {
	const dimension = 8

	var calls atomic.Int32
	var mu sync.Mutex
	var lastInput []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		req := decodeEmbeddingRequest(t, r)

		mu.Lock()
		lastInput = req.Input
		mu.Unlock()

		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	cache := NewCache(100)
	provider := newTestProvider(t, server.URL, dimension, cache)
	ctx := context.Background()

	texts := []string{"door lock", "wiper blade"}

	first, err := provider.GenerateBatch(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, cache.Size())

	// Identical batch is served entirely from cache
	second, err := provider.GenerateBatch(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "cached batch must not hit the API")
	assert.Equal(t, first, second)

	// Only the new text goes over the wire
	third, err := provider.GenerateBatch(ctx, []string{"door lock", "head lamp"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	mu.Lock()
	assert.Equal(t, []string{"head lamp"}, lastInput)
	mu.Unlock()

	assert.Equal(t, first[0], third[0])
}

func TestGenerateBatch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeEmbeddingRequest(t, r)
		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GenerateBatch(ctx, []string{"too late"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateEmbedding_Single(t *testing.T) {
	const dimension = 8

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeEmbeddingRequest(t, r)
		writeEmbeddings(w, req, false)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, dimension, nil)

	vec, err := provider.GenerateEmbedding(context.Background(), "oil filter")
	require.NoError(t, err)
	assert.Equal(t, hashVector("oil filter", dimension), vec)
}

func TestLocalProvider(t *testing.T) {
	cache := NewCache(10)
	provider, err := NewLocalProvider(Config{Dimension: 64}, cache)
	require.NoError(t, err)
	defer provider.Close()

	t.Run("provider metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, provider.Provider())
		assert.Equal(t, 64, provider.Dimension())
		assert.NotEmpty(t, provider.Model())
	})

	t.Run("single embedding", func(t *testing.T) {
		vec, err := provider.GenerateEmbedding(context.Background(), "test snippet")
		require.NoError(t, err)
		assert.Len(t, vec, 64)
		assert.Equal(t, hashVector("test snippet", 64), vec)
	})

	t.Run("batch preserves order and length", func(t *testing.T) {
		texts := []string{"alpha", "beta", "gamma"}
		vectors, err := provider.GenerateBatch(context.Background(), texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for i, text := range texts {
			assert.Equal(t, hashVector(text, 64), vectors[i])
		}
	})

	t.Run("caches results", func(t *testing.T) {
		before := cache.Size()
		_, err := provider.GenerateEmbedding(context.Background(), "cache me once")
		require.NoError(t, err)
		assert.Equal(t, before+1, cache.Size())

		_, err = provider.GenerateEmbedding(context.Background(), "cache me once")
		require.NoError(t, err)
		assert.Equal(t, before+1, cache.Size())
	})

	t.Run("validation errors", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = provider.GenerateBatch(context.Background(), []string{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("immediate success", func(t *testing.T) {
		calls := 0
		result, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), func() (int, error) {
			calls++
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient then success", func(t *testing.T) {
		config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
		calls := 0
		result, err := retryWithBackoff(context.Background(), config, func() (string, error) {
			calls++
			if calls < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, calls)
	})

	t.Run("retries exhausted returns last error", func(t *testing.T) {
		config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
		calls := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			calls++
			return 0, fmt.Errorf("error %d", calls)
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "error 3")
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		sentinel := errors.New("bad auth")
		config := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
		calls := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			calls++
			return 0, permanent(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls, "permanent errors must not be retried")
	})

	t.Run("context canceled during retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}

		calls := 0
		_, err := retryWithBackoff(ctx, config, func() (string, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return "", fmt.Errorf("error")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, calls, 3)
	})

	t.Run("max delay cap is enforced", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 4,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   20 * time.Millisecond,
			Multiplier: 4.0, // Uncapped this would grow 10, 40, 160
		}

		var delays []time.Duration
		calls := 0
		lastTime := time.Now()

		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			calls++
			if calls > 1 {
				delays = append(delays, time.Since(lastTime))
			}
			lastTime = time.Now()
			return 0, fmt.Errorf("error")
		})
		assert.Error(t, err)

		for i, delay := range delays {
			assert.LessOrEqual(t, delay.Milliseconds(), int64(40), "delay %d should be capped near MaxDelay", i)
		}
	})
}
