// Package searcher answers retrieval queries against the published index
// pair, combining vector similarity and BM25 keyword rankings into a
// single fused result list.
//
// # Search Modes
//
// Three modes are supported:
//
//   - hybrid: runs both rankings concurrently and fuses their scores
//     (the default)
//   - vector: embedding similarity only
//   - keyword: BM25 only, no embedding call at all
//
// # Score Fusion
//
// Hybrid fusion is score-based, not rank-based. Both rankings are
// overdrawn past the requested topK, each list's raw scores are min-max
// normalized to [0,1] over its own candidates, and the fused score is
//
//	weight*vector + (1-weight)*keyword
//
// with 0 substituted for a side that did not return the chunk. A list
// with a single candidate (or all-equal scores) normalizes to 1.0
// instead of 0 so the sole match keeps its standing. Ties are broken by
// ascending chunk id, which keeps repeated queries deterministic.
//
// # Degradation
//
// The two rankings run in separate goroutines, each bounded by a
// subquery timeout. If exactly one side fails or times out, the query is
// answered from the surviving side and the response carries Degraded and
// DegradedReason instead of an error. Both sides failing, or the
// caller's own context expiring, is an error. The same applies when the
// query embedding cannot be generated: the vector side counts as failed
// and BM25 carries the query alone.
//
// # Index Access
//
// The searcher holds no index data. Every search fetches the current
// pair through an IndexProvider, so an atomic index swap by the indexer
// is picked up by the next query with no coordination here, and one
// query never mixes chunks from two different builds.
//
// # Usage
//
//	srch := searcher.New(provider, emb, searcher.DefaultConfig(), logger, metrics)
//
//	resp, err := srch.Search(ctx, searcher.SearchRequest{
//		Query: "how do I adjust cruise control distance",
//		TopK:  5,
//		Mode:  searcher.SearchModeHybrid,
//	})
//	if err != nil {
//		// types.ErrNotReady: no index published yet
//		// types.ErrEmptyQuery: blank query
//		return err
//	}
//	for _, r := range resp.Results {
//		fmt.Printf("%d. %s (%.3f)\n", r.Rank, r.ChunkID, r.FusedScore)
//	}
package searcher
