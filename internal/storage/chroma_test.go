package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manualkb/pkg/types"
)

// fakeChroma emulates the slice of the Chroma REST API the client uses:
// collection create/delete plus upsert, query, get and count.
type fakeChroma struct {
	t *testing.T

	mu          sync.Mutex
	nextID      int
	byID        map[string]*fakeCollection
	idByName    map[string]string
	deleteCalls int

	// legacyMissing switches delete-of-missing from a 404 to the older
	// 500 "does not exist" response
	legacyMissing bool
}

type fakeCollection struct {
	id        string
	name      string
	metadata  map[string]interface{}
	ids       []string
	vectors   [][]float32
	documents []string
	metadatas []map[string]interface{}
}

func newFakeChroma(t *testing.T) (*fakeChroma, *httptest.Server) {
	t.Helper()
	f := &fakeChroma{
		t:        t,
		byID:     map[string]*fakeCollection{},
		idByName: map[string]string{},
	}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/collections")
	switch {
	case path == "" && r.Method == http.MethodPost:
		f.handleCreate(w, r)
	case r.Method == http.MethodDelete:
		f.handleDelete(w, strings.TrimPrefix(path, "/"))
	default:
		parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		col, ok := f.byID[parts[0]]
		if !ok {
			writeChromaError(w, http.StatusInternalServerError, fmt.Sprintf("Collection %s does not exist.", parts[0]))
			return
		}
		switch parts[1] {
		case "upsert":
			f.handleUpsert(w, r, col)
		case "query":
			f.handleQuery(w, r, col)
		case "get":
			f.handleGet(w, col)
		case "count":
			writeJSON(w, len(col.ids))
		default:
			http.NotFound(w, r)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeChromaError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (f *fakeChroma) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string                 `json:"name"`
		GetOrCreate bool                   `json:"get_or_create"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChromaError(w, http.StatusBadRequest, err.Error())
		return
	}

	if id, ok := f.idByName[req.Name]; ok {
		if !req.GetOrCreate {
			writeChromaError(w, http.StatusConflict, "collection already exists")
			return
		}
		writeJSON(w, map[string]interface{}{"id": id, "name": req.Name})
		return
	}

	f.nextID++
	id := fmt.Sprintf("col-%04d", f.nextID)
	f.byID[id] = &fakeCollection{id: id, name: req.Name, metadata: req.Metadata}
	f.idByName[req.Name] = id
	writeJSON(w, map[string]interface{}{"id": id, "name": req.Name})
}

func (f *fakeChroma) handleDelete(w http.ResponseWriter, name string) {
	f.deleteCalls++
	id, ok := f.idByName[name]
	if !ok {
		if f.legacyMissing {
			writeChromaError(w, http.StatusInternalServerError, fmt.Sprintf("ValueError('Collection %s does not exist.')", name))
		} else {
			writeChromaError(w, http.StatusNotFound, "collection not found")
		}
		return
	}
	delete(f.byID, id)
	delete(f.idByName, name)
	writeJSON(w, true)
}

func (f *fakeChroma) handleUpsert(w http.ResponseWriter, r *http.Request, col *fakeCollection) {
	var req struct {
		IDs        []string                 `json:"ids"`
		Embeddings [][]float32              `json:"embeddings"`
		Documents  []string                 `json:"documents"`
		Metadatas  []map[string]interface{} `json:"metadatas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChromaError(w, http.StatusBadRequest, err.Error())
		return
	}

	for i, id := range req.IDs {
		pos := -1
		for j, existing := range col.ids {
			if existing == id {
				pos = j
				break
			}
		}
		if pos == -1 {
			col.ids = append(col.ids, id)
			col.vectors = append(col.vectors, req.Embeddings[i])
			col.documents = append(col.documents, req.Documents[i])
			col.metadatas = append(col.metadatas, req.Metadatas[i])
		} else {
			col.vectors[pos] = req.Embeddings[i]
			col.documents[pos] = req.Documents[i]
			col.metadatas[pos] = req.Metadatas[i]
		}
	}
	writeJSON(w, true)
}

func (f *fakeChroma) handleQuery(w http.ResponseWriter, r *http.Request, col *fakeCollection) {
	var req struct {
		QueryEmbeddings [][]float32 `json:"query_embeddings"`
		NResults        int         `json:"n_results"`
		Include         []string    `json:"include"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChromaError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The real server rejects over-large n_results; the client must clamp
	if req.NResults > len(col.ids) {
		writeChromaError(w, http.StatusInternalServerError,
			fmt.Sprintf("Number of requested results %d cannot be greater than number of elements in index %d", req.NResults, len(col.ids)))
		return
	}

	query := req.QueryEmbeddings[0]
	type scored struct {
		idx      int
		distance float64
	}
	ranked := make([]scored, len(col.ids))
	for i, vec := range col.vectors {
		ranked[i] = scored{idx: i, distance: cosineDistance(query, vec)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })
	if req.NResults < len(ranked) {
		ranked = ranked[:req.NResults]
	}

	ids := make([]string, len(ranked))
	distances := make([]float64, len(ranked))
	documents := make([]string, len(ranked))
	metadatas := make([]map[string]interface{}, len(ranked))
	for i, s := range ranked {
		ids[i] = col.ids[s.idx]
		distances[i] = s.distance
		documents[i] = col.documents[s.idx]
		metadatas[i] = col.metadatas[s.idx]
	}

	writeJSON(w, map[string]interface{}{
		"ids":       [][]string{ids},
		"distances": [][]float64{distances},
		"documents": [][]string{documents},
		"metadatas": [][]map[string]interface{}{metadatas},
	})
}

func (f *fakeChroma) handleGet(w http.ResponseWriter, col *fakeCollection) {
	writeJSON(w, map[string]interface{}{
		"ids":        col.ids,
		"documents":  col.documents,
		"metadatas":  col.metadatas,
		"embeddings": col.vectors,
	})
}

func TestChromaStore_OpenCollection(t *testing.T) {
	fake, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()
	ctx := context.Background()

	col, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)
	assert.Equal(t, "manual_chunks", col.Collection())

	// Collections are created with the cosine metric
	fake.mu.Lock()
	id := fake.idByName["manual_chunks"]
	metadata := fake.byID[id].metadata
	fake.mu.Unlock()
	assert.Equal(t, "cosine", metadata["hnsw:space"])

	// get_or_create: opening again must not create a second collection
	again, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)
	assert.Equal(t, col.Collection(), again.Collection())

	fake.mu.Lock()
	assert.Len(t, fake.byID, 1)
	fake.mu.Unlock()
}

func TestChromaCollection_UpsertQueryCount(t *testing.T) {
	_, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()
	ctx := context.Background()

	col, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)

	require.NoError(t, col.Upsert(ctx, []*types.Chunk{
		testChunk("owners-manual", 0, "exact", []float32{1, 0}),
		testChunk("owners-manual", 1, "close", []float32{0.9, 0.1}),
		testChunk("owners-manual", 2, "far", []float32{0, 1}),
	}))

	count, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// topK beyond the collection size is clamped client-side; the fake
	// errors on over-large n_results, so success proves the clamp
	results, err := col.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, types.ChunkID("owners-manual", 0), results[0].ChunkID)
	assert.Equal(t, "exact", results[0].Text)
	assert.Equal(t, "owners-manual", results[0].Metadata.SourceDocID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.True(t, results[0].Distance <= results[1].Distance)
	assert.True(t, results[1].Distance <= results[2].Distance)

	results, err = col.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChromaCollection_QueryEmptyCollection(t *testing.T) {
	_, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()
	ctx := context.Background()

	col, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)

	results, err := col.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromaCollection_GetAll(t *testing.T) {
	_, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()
	ctx := context.Background()

	col, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)

	require.NoError(t, col.Upsert(ctx, []*types.Chunk{
		testChunk("manual-b", 0, "b0", []float32{0, 1}),
		testChunk("manual-a", 1, "a1", []float32{1, 0}),
		testChunk("manual-a", 0, "a0", []float32{1, 1}),
	}))

	all, err := col.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Deterministic order by source document then sequence
	assert.Equal(t, "a0", all[0].Text)
	assert.Equal(t, "a1", all[1].Text)
	assert.Equal(t, "b0", all[2].Text)

	assert.Equal(t, []float32{1, 1}, all[0].Embedding)
	assert.Equal(t, 0, all[0].SequenceIndex)
	assert.Equal(t, "manual-a", all[0].SourceDocID)
}

func TestChromaCollection_Reset(t *testing.T) {
	fake, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()
	ctx := context.Background()

	col, err := store.OpenCollection(ctx, "manual_chunks")
	require.NoError(t, err)
	require.NoError(t, col.Upsert(ctx, []*types.Chunk{
		testChunk("owners-manual", 0, "text", []float32{1, 0}),
	}))

	require.NoError(t, col.Reset(ctx))

	count, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The handle follows the recreated collection
	require.NoError(t, col.Upsert(ctx, []*types.Chunk{
		testChunk("owners-manual", 0, "fresh", []float32{0, 1}),
	}))
	count, err = col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fake.mu.Lock()
	assert.Equal(t, 1, fake.deleteCalls)
	fake.mu.Unlock()
}

func TestChromaCollection_ResetMissingCollection(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		name := "missing answered with 404"
		if legacy {
			name = "missing answered with 500 does-not-exist"
		}
		t.Run(name, func(t *testing.T) {
			fake, server := newFakeChroma(t)
			fake.legacyMissing = legacy
			store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
			defer store.Close()
			ctx := context.Background()

			col, err := store.OpenCollection(ctx, "manual_chunks")
			require.NoError(t, err)

			// Someone else dropped the collection underneath the handle
			require.NoError(t, store.DropCollection(ctx, "manual_chunks"))

			// Reset must swallow the missing-collection delete failure
			// and recreate
			require.NoError(t, col.Reset(ctx))

			count, err := col.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
	}
}

func TestChromaStore_DropCollectionMissing(t *testing.T) {
	_, server := newFakeChroma(t)
	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()

	assert.NoError(t, store.DropCollection(context.Background(), "never_created"))
}

func TestChromaStore_ServerErrorsSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChromaError(w, http.StatusInternalServerError, "boom")
	}))
	defer server.Close()

	store := NewChromaStore(ChromaConfig{BaseURL: server.URL})
	defer store.Close()

	_, err := store.OpenCollection(context.Background(), "manual_chunks")
	assert.ErrorIs(t, err, ErrStoreFailed)
	assert.Contains(t, err.Error(), "boom")

	// A non-missing failure on drop must not be swallowed
	err = store.DropCollection(context.Background(), "manual_chunks")
	assert.ErrorIs(t, err, ErrStoreFailed)
}
