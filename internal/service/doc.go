// Package service wires the retrieval stack together and is the single
// entry point for the MCP layer and the command-line tools.
//
// # Composition
//
// New constructs, in order: the embedding provider, the vector store
// backend (sqlite or chroma), the chunker, the index lifecycle, the hybrid
// searcher, and (when enabled) the response cache. Construction never
// touches the source corpus; Initialize triggers the first build.
//
// # Caching Policy
//
// The response cache stores whole search responses keyed by the query's
// embedding, so a cached entry is only valid for the request shape it was
// computed under. Search therefore consults the cache solely for
// default-shaped requests: hybrid mode with the default result count and
// UseCache set. Everything else goes straight to the searcher. A rebuild
// purges the cache because cached responses reference chunks of the
// retired index generation.
package service
