package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"manualkb/internal/config"
	"manualkb/internal/searcher"
	"manualkb/internal/service"
)

// setupBenchService builds and initializes a service over the fixture corpus
func setupBenchService(b *testing.B) *service.Service {
	wd, err := os.Getwd()
	if err != nil {
		b.Fatal(err)
	}

	cfg := config.Default()
	cfg.Source.Path = filepath.Join(filepath.Dir(wd), "testdata", "manual")
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 32
	cfg.VectorStore.Path = ":memory:"

	svc, err := service.New(cfg, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = svc.Close() })

	if err := svc.Initialize(context.Background()); err != nil {
		b.Fatal(err)
	}
	return svc
}

func BenchmarkHybridQuery(b *testing.B) {
	svc := setupBenchService(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := svc.Search(ctx, searcher.SearchRequest{Query: "tire pressure monitoring"})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCachedQuery(b *testing.B) {
	svc := setupBenchService(b)
	ctx := context.Background()

	req := searcher.SearchRequest{Query: "tire pressure monitoring", UseCache: true}
	if _, err := svc.Search(ctx, req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := svc.Search(ctx, req)
		if err != nil {
			b.Fatal(err)
		}
		if !resp.CacheHit {
			b.Fatal("expected cache hit")
		}
	}
}

func BenchmarkRebuild(b *testing.B) {
	svc := setupBenchService(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := svc.Rebuild(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
