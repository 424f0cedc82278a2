// Package storage persists embedded manual chunks and serves nearest-neighbor
// queries over them.
//
// Two backends implement the same Store and VectorIndex interfaces:
//   - ChromaStore: a client for a Chroma server's REST API
//   - SQLiteStore: an embedded SQLite database, no server required
//
// # Collections
//
// Chunks live in named collections. The index lifecycle builds each new index
// generation into a fresh collection and drops the previous generation once
// the new one is published, so a collection is never mutated while queries
// read from it.
//
//	store := storage.NewChromaStore(storage.ChromaConfig{
//	    BaseURL: "http://localhost:8000",
//	})
//	defer store.Close()
//
//	col, err := store.OpenCollection(ctx, "manual_chunks_b91f")
//	if err != nil {
//	    return err
//	}
//	if err := col.Upsert(ctx, chunks); err != nil {
//	    return err
//	}
//
// # Queries
//
// Query returns results ordered by ascending cosine distance. Collections are
// created with the cosine metric, so Similarity() on a result is 1-distance.
// A topK beyond the collection size is clamped rather than rejected.
//
//	results, err := col.Query(ctx, queryEmbedding, 5)
//	for _, r := range results {
//	    fmt.Printf("%s  %.3f\n", r.ChunkID, r.Similarity())
//	}
//
// # Embedded backend
//
// SQLiteStore keeps everything in one database file (or ":memory:" for
// tests). Vectors are stored as little-endian float32 blobs.
//
//	store, err := storage.NewSQLiteStore("manualkb.db")
//
// # Build Tags
//
// The embedded backend supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Computes cosine distance inside SQLite via sqlite-vec
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Computes distances in Go, linear in collection size
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
