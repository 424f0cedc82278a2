package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"manualkb/internal/chunker"
	"manualkb/internal/storage"
)

func benchCorpus(b *testing.B, docs int) string {
	b.Helper()
	dir := b.TempDir()

	sentence := "The system monitors wheel speed and adjusts brake pressure when slip is detected. "
	body := strings.Repeat(sentence, 40)
	for i := 0; i < docs; i++ {
		path := filepath.Join(dir, fmt.Sprintf("section_%02d.md", i))
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

func BenchmarkBuild(b *testing.B) {
	for _, docs := range []int{1, 8} {
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			dir := benchCorpus(b, docs)

			store, err := storage.NewSQLiteStore(":memory:")
			if err != nil {
				b.Fatal(err)
			}
			defer func() { _ = store.Close() }()

			chk, err := chunker.New(200, 50, true)
			if err != nil {
				b.Fatal(err)
			}

			lc := New(store, &mockEmbedder{dimension: 64}, chk, Config{
				SourcePath: dir,
				Collection: "bench",
			}, nil, nil)

			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := lc.Rebuild(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDiscoverDocuments(b *testing.B) {
	dir := benchCorpus(b, 32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := discoverDocuments(dir); err != nil {
			b.Fatal(err)
		}
	}
}
