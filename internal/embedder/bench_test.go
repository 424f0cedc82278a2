package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	texts := []string{
		"short",
		"medium length text for hashing",
		"a longer passage that represents a typical manual chunk embedded for semantic retrieval across a few hundred tokens of prose",
	}

	for _, text := range texts {
		b.Run(fmt.Sprintf("len=%d", len(text)), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = ComputeHash(text)
			}
		})
	}
}

func BenchmarkCache(b *testing.B) {
	cache := NewCache(10000)
	vec := make([]float32, DefaultDimension)

	b.Run("set", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			cache.Set(fmt.Sprintf("hash-%d", i%1000), vec)
		}
	})

	b.Run("get", func(b *testing.B) {
		cache.Set("hot", vec)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = cache.Get("hot")
		}
	})
}

func BenchmarkHashVector(b *testing.B) {
	for _, dim := range []int{256, 1024} {
		b.Run(fmt.Sprintf("dim=%d", dim), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = hashVector("bench text", dim)
			}
		})
	}
}

func BenchmarkLocalBatch(b *testing.B) {
	provider, err := NewLocalProvider(Config{Dimension: 256}, nil)
	if err != nil {
		b.Fatalf("NewLocalProvider() error = %v", err)
	}
	defer provider.Close()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := provider.GenerateBatch(ctx, texts); err != nil {
			b.Fatal(err)
		}
	}
}
