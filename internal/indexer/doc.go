// Package indexer owns the index lifecycle: building the vector and BM25
// indexes from the manual corpus and publishing them atomically.
//
// # State Machine
//
// A Lifecycle moves through four states:
//
//	uninitialized -> initializing -> ready
//	                              -> failed
//
// Queries fail with types.ErrNotReady until the first generation is
// published. A failed first build leaves the lifecycle failed until an
// explicit Rebuild retries it. A failed rebuild after a successful
// earlier build keeps the previous generation serving and reports the
// error through Status instead.
//
// # Build Pipeline
//
// One build runs these stages in order:
//
//  1. Discover source documents (a file, or a directory walked for
//     .md/.txt files in sorted order).
//  2. Chunk every document with the sliding-window chunker.
//  3. Embed all chunk texts in provider-capped batches.
//  4. Build the in-memory BM25 index from the same chunk set.
//  5. Upsert the embedded chunks into a fresh versioned collection
//     (<base>_<build id>) in bounded parallel batches.
//  6. Publish both indexes as one Pair with an atomic pointer swap,
//     then drop the previous generation's collection best-effort.
//
// Because every build writes into its own collection, a rebuild never
// mutates the generation queries are reading: in-flight searches finish
// against the old Pair, the next search picks up the new one. The
// in-memory BM25 index is rebuilt from source on every process start;
// only the vector collection lives in the store.
//
// # Single-Flight Builds
//
// Builds are serialized by a non-blocking try-lock. A build requested
// while another is running fails immediately with
// types.ErrBuildInProgress rather than queueing, so an operator retrying
// a slow rebuild cannot pile up work.
package indexer
