package storage

import (
	"context"
	"errors"

	"manualkb/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrCollectionNotFound is returned when a collection doesn't exist
	ErrCollectionNotFound = errors.New("collection does not exist")
	// ErrStoreFailed wraps vector store transport and server failures
	ErrStoreFailed = errors.New("vector store failed")
	// ErrInvalidQuery is returned for malformed query parameters
	ErrInvalidQuery = errors.New("invalid query")
)

// Store manages named vector collections. The indexer builds each index
// generation into a fresh collection and drops the previous one after the
// swap, so collections are cheap to create and destroy.
type Store interface {
	// OpenCollection returns a handle to the named collection, creating it
	// with the cosine distance metric if it does not exist yet.
	OpenCollection(ctx context.Context, name string) (VectorIndex, error)

	// DropCollection removes the named collection and its entries. Dropping
	// a collection that does not exist is not an error.
	DropCollection(ctx context.Context, name string) error

	// Close releases the underlying connection
	Close() error
}

// VectorIndex is a handle to one collection of embedded chunks
type VectorIndex interface {
	// Upsert inserts or replaces chunks by chunk id. Every chunk must carry
	// an embedding of the collection's dimension.
	Upsert(ctx context.Context, chunks []*types.Chunk) error

	// Query returns up to topK entries nearest to the embedding, ordered by
	// ascending cosine distance. A topK larger than the collection is
	// clamped to the collection size.
	Query(ctx context.Context, embedding []float32, topK int) ([]VectorResult, error)

	// GetAll returns every chunk in the collection in a deterministic order
	GetAll(ctx context.Context) ([]*types.Chunk, error)

	// Count returns the number of entries in the collection
	Count(ctx context.Context) (int, error)

	// Reset empties the collection, recreating it if necessary. Resetting a
	// collection that was dropped underneath the handle is not an error.
	Reset(ctx context.Context) error

	// Collection returns the collection name
	Collection() string
}

// VectorResult is one nearest-neighbor match
type VectorResult struct {
	ChunkID  string
	Distance float64
	Text     string
	Metadata types.ChunkMetadata
}

// Similarity converts the cosine distance back to a similarity score
func (r VectorResult) Similarity() float64 {
	return 1.0 - r.Distance
}
