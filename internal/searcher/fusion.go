package searcher

import (
	"sort"

	"manualkb/internal/keyword"
	"manualkb/internal/storage"
	"manualkb/pkg/types"
)

// fusedCandidate accumulates one chunk's normalized scores from both
// rankings before the weighted combination.
type fusedCandidate struct {
	chunkID      string
	vectorScore  float64
	keywordScore float64
	text         string
	metadata     types.ChunkMetadata
}

// fuseRankings merges the two candidate lists into one ranking.
//
// Each list's raw scores are min-max normalized to [0,1] over that list's
// candidates, then combined as weight*vector + (1-weight)*keyword. A
// chunk present in only one list contributes 0 for the missing side, so
// appearing in both rankings always outranks an equal single-side score.
// Ties fall back to ascending chunk id to keep repeated queries stable.
func fuseRankings(vectorResults []storage.VectorResult, keywordResults []keyword.Result, weight float64, topK int) []types.RankedChunk {
	candidates := make(map[string]*fusedCandidate, len(vectorResults)+len(keywordResults))

	vectorNorm := minMaxNormalize(vectorSimilarities(vectorResults))
	for i, vr := range vectorResults {
		candidates[vr.ChunkID] = &fusedCandidate{
			chunkID:     vr.ChunkID,
			vectorScore: vectorNorm[i],
			text:        vr.Text,
			metadata:    vr.Metadata,
		}
	}

	keywordNorm := minMaxNormalize(keywordScores(keywordResults))
	for i, kr := range keywordResults {
		if c, ok := candidates[kr.ChunkID]; ok {
			c.keywordScore = keywordNorm[i]
			continue
		}
		candidates[kr.ChunkID] = &fusedCandidate{
			chunkID:      kr.ChunkID,
			keywordScore: keywordNorm[i],
			text:         kr.Text,
			metadata:     kr.Metadata,
		}
	}

	fused := make([]types.RankedChunk, 0, len(candidates))
	for _, c := range candidates {
		fused = append(fused, types.RankedChunk{
			ChunkID:      c.chunkID,
			FusedScore:   weight*c.vectorScore + (1-weight)*c.keywordScore,
			VectorScore:  c.vectorScore,
			KeywordScore: c.keywordScore,
			Text:         c.text,
			Metadata:     c.metadata,
		})
	}

	sortRankedChunks(fused)
	return takeTop(fused, topK)
}

// buildVectorResponse converts a vector-only candidate list into a
// response. Scores are min-max normalized over the candidates so the
// response contract (scores in [0,1]) holds in every mode.
func buildVectorResponse(vectorResults []storage.VectorResult, topK int) *SearchResponse {
	norm := minMaxNormalize(vectorSimilarities(vectorResults))

	results := make([]types.RankedChunk, len(vectorResults))
	for i, vr := range vectorResults {
		results[i] = types.RankedChunk{
			ChunkID:     vr.ChunkID,
			FusedScore:  norm[i],
			VectorScore: norm[i],
			Text:        vr.Text,
			Metadata:    vr.Metadata,
		}
	}

	sortRankedChunks(results)
	results = takeTop(results, topK)

	return &SearchResponse{
		Results:          results,
		TotalResults:     len(results),
		VectorCandidates: len(vectorResults),
	}
}

// buildKeywordResponse is buildVectorResponse for the BM25 side.
func buildKeywordResponse(keywordResults []keyword.Result, topK int) *SearchResponse {
	norm := minMaxNormalize(keywordScores(keywordResults))

	results := make([]types.RankedChunk, len(keywordResults))
	for i, kr := range keywordResults {
		results[i] = types.RankedChunk{
			ChunkID:      kr.ChunkID,
			FusedScore:   norm[i],
			KeywordScore: norm[i],
			Text:         kr.Text,
			Metadata:     kr.Metadata,
		}
	}

	sortRankedChunks(results)
	results = takeTop(results, topK)

	return &SearchResponse{
		Results:           results,
		TotalResults:      len(results),
		KeywordCandidates: len(keywordResults),
	}
}

func vectorSimilarities(results []storage.VectorResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Similarity()
	}
	return scores
}

func keywordScores(results []keyword.Result) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return scores
}

// minMaxNormalize scales scores to [0,1] over the candidate list. A
// single candidate, or a list where all scores are equal, normalizes to
// 1.0 rather than 0 so the sole best match is not erased by scaling.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	normalized := make([]float64, len(scores))
	if maxScore == minScore {
		for i := range normalized {
			normalized[i] = 1.0
		}
		return normalized
	}

	spread := maxScore - minScore
	for i, s := range scores {
		normalized[i] = (s - minScore) / spread
	}
	return normalized
}

// sortRankedChunks orders by descending fused score, breaking ties by
// ascending chunk id.
func sortRankedChunks(results []types.RankedChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

// takeTop truncates to topK and assigns 1-based ranks.
func takeTop(results []types.RankedChunk, topK int) []types.RankedChunk {
	if topK < len(results) {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
