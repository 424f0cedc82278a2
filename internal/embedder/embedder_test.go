package embedder

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHash(tt.text)
			if got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("consistent", func(t *testing.T) {
		if ComputeHash("test") != ComputeHash("test") {
			t.Error("ComputeHash() not consistent across calls")
		}
		if ComputeHash("a") == ComputeHash("b") {
			t.Error("ComputeHash() collides on trivially different inputs")
		}
	})
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr bool
	}{
		{
			name:    "valid batch",
			texts:   []string{"text1", "text2", "text3"},
			wantErr: false,
		},
		{
			name:    "single text",
			texts:   []string{"only"},
			wantErr: false,
		},
		{
			name:    "empty batch",
			texts:   []string{},
			wantErr: true,
		},
		{
			name:    "nil batch",
			texts:   nil,
			wantErr: true,
		},
		{
			name:    "contains empty text",
			texts:   []string{"text1", "", "text3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.texts)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		if _, ok := cache.Get("nonexistent"); ok {
			t.Error("Expected cache miss on empty cache")
		}

		cache.Set("hash1", []float32{1.0, 2.0, 3.0})

		got, ok := cache.Get("hash1")
		if !ok {
			t.Fatal("Expected cache hit")
		}
		assert.Equal(t, []float32{1.0, 2.0, 3.0}, got)

		if cache.Size() != 1 {
			t.Errorf("Cache size = %d, want 1", cache.Size())
		}
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)

		cache.Set("hash1", []float32{1})
		cache.Set("hash2", []float32{2})

		// Touch hash1 so hash2 is the least recently used entry
		_, _ = cache.Get("hash1")

		cache.Set("hash3", []float32{3})

		if _, ok := cache.Get("hash2"); ok {
			t.Error("Expected least recently used entry to be evicted")
		}
		if _, ok := cache.Get("hash1"); !ok {
			t.Error("Expected recently used entry to survive eviction")
		}
		if _, ok := cache.Get("hash3"); !ok {
			t.Error("Expected new entry to be cached")
		}
	})

	t.Run("returned vector is a copy", func(t *testing.T) {
		cache := NewCache(10)
		original := []float32{1.0, 2.0}
		cache.Set("hash1", original)

		// Mutating the stored slice must not reach the cache
		original[0] = 99.0

		got, ok := cache.Get("hash1")
		if !ok {
			t.Fatal("Expected cache hit")
		}
		assert.Equal(t, float32(1.0), got[0])

		// Mutating the returned slice must not reach the cache either
		got[1] = 99.0

		again, _ := cache.Get("hash1")
		assert.Equal(t, float32(2.0), again[1])
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", []float32{1})
		cache.Set("hash2", []float32{2})

		cache.Clear()

		if cache.Size() != 0 {
			t.Errorf("Cache size after clear = %d, want 0", cache.Size())
		}
		if _, ok := cache.Get("hash1"); ok {
			t.Error("Expected cache miss after clear")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func(id int) {
				for j := 0; j < 100; j++ {
					hash := ComputeHash(fmt.Sprintf("text-%d-%d", id, j))
					cache.Set(hash, []float32{float32(id), float32(j)})
					cache.Get(hash)
				}
				done <- true
			}(i)
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		if cache.Size() == 0 {
			t.Error("Cache is empty after concurrent operations")
		}
	})
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		wantNorm float64
	}{
		{
			name:     "unit vector",
			input:    []float32{1.0, 0.0, 0.0},
			wantNorm: 1.0,
		},
		{
			name:     "needs normalization",
			input:    []float32{3.0, 4.0},
			wantNorm: 1.0,
		},
		{
			name:     "zero vector",
			input:    []float32{0.0, 0.0, 0.0},
			wantNorm: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)

			var sum float64
			for _, v := range result {
				sum += float64(v) * float64(v)
			}
			assert.InDelta(t, tt.wantNorm, math.Sqrt(sum), 0.0001)
		})
	}
}

func TestHashVector(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		v1 := hashVector("brake fluid reservoir", 64)
		v2 := hashVector("brake fluid reservoir", 64)
		assert.Equal(t, v1, v2)
	})

	t.Run("different text differs", func(t *testing.T) {
		v1 := hashVector("text one", 64)
		v2 := hashVector("text two", 64)
		assert.NotEqual(t, v1, v2)
	})

	t.Run("unit length", func(t *testing.T) {
		v := hashVector("some text", 1024)
		assert.Len(t, v, 1024)

		var sum float64
		for _, val := range v {
			sum += float64(val) * float64(val)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 0.0001)
	})
}
