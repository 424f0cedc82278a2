// Package cache memoizes retrieval responses keyed by query similarity.
//
// Drivers ask the same questions in different words. An exact-match cache
// would miss "how do I check tire pressure" after answering "checking the
// tyre pressures", so this cache keys on the query's embedding instead:
// a lookup embeds the incoming query and scans for the closest live entry
// by cosine similarity, the same metric the vector index ranks with.
//
//	c := cache.New[string](emb, cache.DefaultConfig(), logger)
//
//	answer, hit, err := c.LookupOrCompute(ctx, query, func(ctx context.Context) (string, error) {
//	    return assembleAnswer(ctx, query)
//	})
//
// Entries expire after the configured TTL and are evicted least-recently
// accessed first under capacity pressure. At the default capacity of 100
// the linear best-match scan costs microseconds; an ANN structure would be
// overkill here.
package cache
