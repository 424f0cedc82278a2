package types

import (
	"errors"
	"fmt"
)

// Chunk represents one bounded, overlapping fragment of a source document,
// indexed independently for retrieval.
type Chunk struct {
	// Identification
	ID            string
	SourceDocID   string
	SequenceIndex int

	// Content
	Text        string
	StartOffset int // byte offset of the chunk's first token in the source document
	TokenCount  int

	// Embedding has the collection's configured dimension once generated.
	// Empty until the embedding provider has been called for this chunk.
	Embedding []float32

	Metadata ChunkMetadata
}

// ChunkID derives the stable chunk identifier from the document id and the
// chunk's position. Re-chunking identical input reproduces identical ids.
func ChunkID(sourceDocID string, sequenceIndex int) string {
	return fmt.Sprintf("%s#%04d", sourceDocID, sequenceIndex)
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}

	if c.TokenCount <= 0 {
		return errors.New("token count must be positive")
	}

	if c.StartOffset < 0 {
		return errors.New("start offset cannot be negative")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if c.SourceDocID == "" {
		return errors.New("source document ID is required")
	}

	if c.SequenceIndex < 0 {
		return errors.New("sequence index cannot be negative")
	}

	if c.ID != ChunkID(c.SourceDocID, c.SequenceIndex) {
		return errors.New("chunk ID does not match source document and sequence index")
	}

	return nil
}

// ChunkMetadata is the closed metadata schema stored alongside every vector
// index entry. Fields are enumerated explicitly so ingest and query cannot
// drift apart on shape.
type ChunkMetadata struct {
	SourceDocID   string
	SequenceIndex int
	StartOffset   int
	TokenCount    int
}

// Metadata map keys used by the vector store payload.
const (
	MetaSourceDocID   = "source_doc_id"
	MetaSequenceIndex = "sequence_index"
	MetaStartOffset   = "start_offset"
	MetaTokenCount    = "token_count"
)

// ToMap converts the metadata to the wire shape expected by the vector store.
func (m ChunkMetadata) ToMap() map[string]interface{} {
	return map[string]interface{}{
		MetaSourceDocID:   m.SourceDocID,
		MetaSequenceIndex: m.SequenceIndex,
		MetaStartOffset:   m.StartOffset,
		MetaTokenCount:    m.TokenCount,
	}
}

// MetadataFromMap reconstructs metadata from a vector store payload. Numeric
// fields arrive as float64 after JSON decoding and are converted back.
func MetadataFromMap(raw map[string]interface{}) ChunkMetadata {
	var m ChunkMetadata
	if v, ok := raw[MetaSourceDocID].(string); ok {
		m.SourceDocID = v
	}
	m.SequenceIndex = intFromAny(raw[MetaSequenceIndex])
	m.StartOffset = intFromAny(raw[MetaStartOffset])
	m.TokenCount = intFromAny(raw[MetaTokenCount])
	return m
}

func intFromAny(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
