// Package types provides shared type definitions for the manual
// knowledge-retrieval core.
//
// This package defines the domain types used across the retrieval pipeline:
// chunks, the closed metadata schema stored in the vector index, ranked
// retrieval results, and the shared sentinel errors.
//
// # Core Types
//
// Chunk represents an overlapping fragment of a source document. Its ID is
// deterministic given the source document and sequence position:
//
//	chunk := &types.Chunk{
//	    ID:            types.ChunkID("owner_manual", 3),
//	    SourceDocID:   "owner_manual",
//	    SequenceIndex: 3,
//	    Text:          fragment,
//	    TokenCount:    300,
//	}
//
// ChunkMetadata is the closed schema carried alongside every vector index
// entry. Fields are enumerated explicitly rather than stored as free-form
// maps so the shape cannot drift between ingest and query:
//
//	meta := chunk.Metadata.ToMap()          // wire shape for the vector store
//	back := types.MetadataFromMap(meta)     // typed again after retrieval
//
// # Retrieval Results
//
// RankedChunk combines a chunk with its fused relevance score:
//
//	result := &types.RankedChunk{
//	    ChunkID:    "owner_manual#0003",
//	    Rank:       1,
//	    FusedScore: 0.92,
//	    Text:       fragment,
//	}
//
// Fused scores are normalized to the [0, 1] range, with higher values
// indicating better matches.
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := chunk.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
