package keyword

import (
	"context"
	"fmt"
	"math"
	"sort"

	"manualkb/internal/tokenizer"
	"manualkb/pkg/types"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls length
// normalization. The defaults are the standard values from the literature.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Options tunes the BM25 scoring function.
type Options struct {
	K1 float64
	B  float64
}

// DefaultOptions returns the standard BM25 constants.
func DefaultOptions() Options {
	return Options{K1: DefaultK1, B: DefaultB}
}

// posting records one chunk's occurrence data for a term.
type posting struct {
	chunk int // ordinal into the docs slice
	tf    int
}

// document holds the per-chunk data needed to score and return results.
type document struct {
	id       string
	length   int // tokens, as counted by the shared tokenizer
	text     string
	metadata types.ChunkMetadata
}

// Index is an immutable in-memory BM25 inverted index over a chunk set.
// It is built in one shot from the full chunk list and never updated in
// place; a changed chunk set means a new Index. That keeps a published
// index safe for concurrent readers without locking.
type Index struct {
	postings  map[string][]posting
	docs      []document
	avgDocLen float64
	k1        float64
	b         float64
}

// Result is one scored match for a query.
type Result struct {
	ChunkID  string
	Score    float64
	Text     string
	Metadata types.ChunkMetadata
}

// Build tokenizes every chunk and assembles the posting lists and corpus
// statistics BM25 needs. Chunks are indexed in slice order, so an identical
// chunk slice always produces an identical index.
func Build(chunks []*types.Chunk, opts Options) *Index {
	if opts.K1 <= 0 {
		opts.K1 = DefaultK1
	}
	if opts.B < 0 || opts.B > 1 {
		opts.B = DefaultB
	}

	idx := &Index{
		postings: make(map[string][]posting),
		docs:     make([]document, 0, len(chunks)),
		k1:       opts.K1,
		b:        opts.B,
	}

	totalLen := 0
	for _, chunk := range chunks {
		terms := tokenizer.Terms(chunk.Text)

		ord := len(idx.docs)
		idx.docs = append(idx.docs, document{
			id:       chunk.ID,
			length:   len(terms),
			text:     chunk.Text,
			metadata: chunk.Metadata,
		})
		totalLen += len(terms)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], posting{chunk: ord, tf: count})
		}
	}

	if len(idx.docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(idx.docs))
	}

	// Posting lists follow chunk order already; sort defends the invariant
	// if construction ever changes.
	for term := range idx.postings {
		list := idx.postings[term]
		sort.Slice(list, func(i, j int) bool { return list[i].chunk < list[j].chunk })
	}

	return idx
}

// Query scores every chunk containing at least one query term and returns
// the topK best, ordered by descending BM25 score with chunk id as the tie
// break. Query text goes through the same tokenization as the indexed
// chunks. A topK beyond the number of matches returns all matches.
func (idx *Index) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("keyword query: %w", types.ErrInvalidTopK)
	}

	terms := tokenizer.Terms(text)
	if len(terms) == 0 || len(idx.docs) == 0 {
		return []Result{}, nil
	}

	scores := make(map[int]float64)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("keyword query: %w", err)
		}

		list, ok := idx.postings[term]
		if !ok {
			continue
		}

		idf := idx.idf(len(list))
		for _, p := range list {
			scores[p.chunk] += idf * idx.termScore(p.tf, idx.docs[p.chunk].length)
		}
	}

	results := make([]Result, 0, len(scores))
	for ord, score := range scores {
		doc := idx.docs[ord]
		results = append(results, Result{
			ChunkID:  doc.id,
			Score:    score,
			Text:     doc.text,
			Metadata: doc.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// termScore is the per-term BM25 contribution before the IDF factor:
// tf*(k1+1) / (tf + k1*(1 - b + b*docLen/avgDocLen)).
func (idx *Index) termScore(tf, docLen int) float64 {
	f := float64(tf)
	norm := 1 - idx.b + idx.b*float64(docLen)/idx.avgDocLen
	return f * (idx.k1 + 1) / (f + idx.k1*norm)
}

// idf uses the non-negative variant ln(1 + (N-df+0.5)/(df+0.5)), so a term
// present in every chunk still contributes a small positive amount rather
// than flipping the ranking with a negative weight.
func (idx *Index) idf(df int) float64 {
	n := float64(len(idx.docs))
	d := float64(df)
	return math.Log(1 + (n-d+0.5)/(d+0.5))
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Terms returns the vocabulary size.
func (idx *Index) Terms() int {
	return len(idx.postings)
}

// AvgDocLen returns the average chunk length in tokens.
func (idx *Index) AvgDocLen() float64 {
	return idx.avgDocLen
}

// ChunkIDs returns the indexed chunk ids in index order, for consistency
// checks against the vector side of an index pair.
func (idx *Index) ChunkIDs() []string {
	ids := make([]string, len(idx.docs))
	for i, doc := range idx.docs {
		ids[i] = doc.id
	}
	return ids
}
