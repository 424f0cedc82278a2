package types

import "errors"

// Domain errors shared across components
var (
	// Lifecycle errors
	ErrNotReady        = errors.New("index not ready")
	ErrBuildInProgress = errors.New("index build already in progress")

	// Query validation errors
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrInvalidTopK       = errors.New("topK must be >= 1")
	ErrInvalidSearchMode = errors.New("unsupported search mode")

	// Result validation errors
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score must be between 0 and 1")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
