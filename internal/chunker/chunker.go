package chunker

import (
	"errors"
	"fmt"

	"manualkb/internal/tokenizer"
	"manualkb/pkg/types"
)

// Configuration errors, fatal at startup and never retried
var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("chunk overlap must be smaller than chunk size")
)

// Chunker splits raw document text into overlapping token-window chunks
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	normalize    bool
}

// New creates a Chunker. chunkSize must be positive and chunkOverlap must be
// non-negative and strictly smaller than chunkSize.
func New(chunkSize, chunkOverlap int, normalize bool) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", chunkSize, ErrInvalidChunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d with chunk size %d: %w", chunkOverlap, chunkSize, ErrInvalidOverlap)
	}

	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		normalize:    normalize,
	}, nil
}

// ChunkDocument splits a document into chunks of at most chunkSize tokens.
// The window advances by chunkSize-chunkOverlap tokens per step, so every
// pair of consecutive chunks shares exactly chunkOverlap tokens; the final
// window is truncated to the remaining text rather than padded.
//
// Chunk text is the original span between the window's first and last token,
// so punctuation and spacing inside the window survive verbatim. Offsets
// refer to the normalized text when normalization is enabled.
//
// The output is deterministic: identical input yields byte-identical chunks
// and ids.
func (c *Chunker) ChunkDocument(sourceDocID, text string) []*types.Chunk {
	if c.normalize {
		text = tokenizer.NormalizeWhitespace(text)
	}

	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.chunkSize - c.chunkOverlap
	chunks := make([]*types.Chunk, 0, len(tokens)/step+1)

	seq := 0
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		first := tokens[start]
		last := tokens[end-1]

		chunk := &types.Chunk{
			ID:            types.ChunkID(sourceDocID, seq),
			SourceDocID:   sourceDocID,
			SequenceIndex: seq,
			Text:          text[first.Start:last.End()],
			StartOffset:   first.Start,
			TokenCount:    end - start,
		}
		chunk.Metadata = types.ChunkMetadata{
			SourceDocID:   sourceDocID,
			SequenceIndex: seq,
			StartOffset:   chunk.StartOffset,
			TokenCount:    chunk.TokenCount,
		}

		chunks = append(chunks, chunk)
		seq++

		// The final window may end exactly on the last token; without this
		// check a trailing window fully contained in the previous one would
		// be emitted.
		if end == len(tokens) {
			break
		}
	}

	return chunks
}

// ChunkSize returns the configured maximum tokens per chunk.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// ChunkOverlap returns the configured token overlap between consecutive chunks.
func (c *Chunker) ChunkOverlap() int {
	return c.chunkOverlap
}
