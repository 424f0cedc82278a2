package types

// RankedChunk represents a single retrieval result with fused relevance
// information.
type RankedChunk struct {
	// Identification
	ChunkID string
	Rank    int // Position in result set (1-based)

	// Scoring
	FusedScore   float64 // Weighted combination of the normalized sub-scores
	VectorScore  float64 // Min-max normalized vector similarity, 0 if absent
	KeywordScore float64 // Min-max normalized BM25 score, 0 if absent

	// Content
	Text     string
	Metadata ChunkMetadata
}

// Validate checks if the ranked chunk is valid
func (rc *RankedChunk) Validate() error {
	if rc.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if rc.Rank < 1 {
		return ErrInvalidRank
	}

	if rc.FusedScore < 0 || rc.FusedScore > 1 {
		return ErrInvalidScore
	}

	if rc.Text == "" {
		return ErrEmptyContent
	}

	return nil
}
