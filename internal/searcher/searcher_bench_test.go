package searcher

import (
	"context"
	"fmt"
	"testing"

	"manualkb/internal/keyword"
	"manualkb/internal/storage"
	"manualkb/pkg/types"
)

func benchVectorResults(n int) []storage.VectorResult {
	results := make([]storage.VectorResult, n)
	for i := 0; i < n; i++ {
		results[i] = storage.VectorResult{
			ChunkID:  types.ChunkID("manual", i),
			Distance: float64(i) / float64(n),
			Text:     fmt.Sprintf("chunk %d about braking and warning lamps", i),
			Metadata: types.ChunkMetadata{SourceDocID: "manual", SequenceIndex: i},
		}
	}
	return results
}

func benchKeywordResults(n int) []keyword.Result {
	results := make([]keyword.Result, n)
	for i := 0; i < n; i++ {
		// Half the ids overlap with the vector list.
		id := types.ChunkID("manual", i*2)
		results[i] = keyword.Result{
			ChunkID:  id,
			Score:    float64(n-i) * 0.37,
			Text:     fmt.Sprintf("chunk %d about braking and warning lamps", i*2),
			Metadata: types.ChunkMetadata{SourceDocID: "manual", SequenceIndex: i * 2},
		}
	}
	return results
}

func BenchmarkFuseRankings(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("candidates_%d", size), func(b *testing.B) {
			vec := benchVectorResults(size)
			kw := benchKeywordResults(size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				fuseRankings(vec, kw, DefaultHybridWeight, 10)
			}
		})
	}
}

func BenchmarkMinMaxNormalize(b *testing.B) {
	scores := make([]float64, 1000)
	for i := range scores {
		scores[i] = float64(i) * 0.001
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		minMaxNormalize(scores)
	}
}

func BenchmarkHybridSearch(b *testing.B) {
	vec := &fakeVectorIndex{results: benchVectorResults(100)}
	kw := &fakeKeywordIndex{results: benchKeywordResults(100)}
	emb := &stubEmbedder{vector: []float32{1, 0, 0}}
	s := New(&fakeProvider{vec: vec, kw: kw}, emb, DefaultConfig(), nil, nil)

	ctx := context.Background()
	req := SearchRequest{Query: "brake warning lamp", TopK: 10}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
