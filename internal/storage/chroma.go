package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"manualkb/pkg/types"
)

const (
	// DefaultChromaURL is the default Chroma server address
	DefaultChromaURL = "http://localhost:8000"

	// DefaultChromaTimeout is the per-request HTTP timeout
	DefaultChromaTimeout = 30 * time.Second

	chromaAPIPrefix = "/api/v1"
)

// ChromaConfig holds connection parameters for a Chroma server
type ChromaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ChromaStore talks to a Chroma server over its REST API. Collections are
// created with the cosine distance metric so query distances are directly
// convertible to similarity scores.
type ChromaStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewChromaStore creates a store client for the given server
func NewChromaStore(cfg ChromaConfig) *ChromaStore {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultChromaURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultChromaTimeout
	}

	return &ChromaStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chromaCollectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *ChromaStore) createCollection(ctx context.Context, name string) (chromaCollectionInfo, error) {
	body := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
		"metadata": map[string]interface{}{
			"hnsw:space": "cosine",
		},
	}

	var info chromaCollectionInfo
	if err := s.doJSON(ctx, http.MethodPost, "/collections", body, &info); err != nil {
		return chromaCollectionInfo{}, fmt.Errorf("create collection %s: %w", name, err)
	}
	return info, nil
}

// OpenCollection returns a handle to the named collection, creating it if
// needed
func (s *ChromaStore) OpenCollection(ctx context.Context, name string) (VectorIndex, error) {
	info, err := s.createCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	return &chromaCollection{
		store: s,
		id:    info.ID,
		name:  name,
	}, nil
}

// DropCollection deletes the named collection. A collection that does not
// exist is treated as already dropped.
func (s *ChromaStore) DropCollection(ctx context.Context, name string) error {
	err := s.doJSON(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
	if err != nil && !isMissingCollection(err) {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// Close releases idle connections
func (s *ChromaStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// doJSON performs one API request and decodes the response into out when out
// is non-nil
func (s *ChromaStore) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+chromaAPIPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %w", ErrStoreFailed, &storeError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(bodyBytes)),
		})
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrStoreFailed, err)
		}
	}
	return nil
}

// storeError carries the HTTP status and body of a failed API call
type storeError struct {
	Status int
	Body   string
}

func (e *storeError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// isMissingCollection reports whether err is the server telling us a
// collection is gone. Older servers answer with a 500 and a "does not exist"
// message rather than a 404.
func isMissingCollection(err error) bool {
	var se *storeError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusNotFound || strings.Contains(se.Body, "does not exist")
}

// chromaCollection is a VectorIndex backed by one Chroma collection
type chromaCollection struct {
	store *ChromaStore
	name  string

	mu sync.RWMutex
	id string // collection id, replaced by Reset
}

func (c *chromaCollection) Collection() string {
	return c.name
}

func (c *chromaCollection) path(op string) string {
	c.mu.RLock()
	id := c.id
	c.mu.RUnlock()
	return "/collections/" + url.PathEscape(id) + "/" + op
}

func (c *chromaCollection) Upsert(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))

	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidQuery, chunk.ID)
		}
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		documents[i] = chunk.Text
		metadatas[i] = chunk.Metadata.ToMap()
	}

	body := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}

	if err := c.store.doJSON(ctx, http.MethodPost, c.path("upsert"), body, nil); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(chunks), err)
	}
	return nil
}

func (c *chromaCollection) Query(ctx context.Context, embedding []float32, topK int) ([]VectorResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidQuery)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrInvalidQuery)
	}

	// The server rejects n_results beyond the collection size, so clamp
	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []VectorResult{}, nil
	}
	if topK > count {
		topK = count
	}

	body := map[string]interface{}{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}

	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Documents [][]string                 `json:"documents"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
	}
	if err := c.store.doJSON(ctx, http.MethodPost, c.path("query"), body, &resp); err != nil {
		return nil, fmt.Errorf("query collection %s: %w", c.name, err)
	}

	if len(resp.IDs) == 0 {
		return []VectorResult{}, nil
	}

	// Results arrive ordered by ascending distance
	ids := resp.IDs[0]
	results := make([]VectorResult, len(ids))
	for i, id := range ids {
		results[i] = VectorResult{ChunkID: id}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			results[i].Distance = resp.Distances[0][i]
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			results[i].Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			results[i].Metadata = types.MetadataFromMap(resp.Metadatas[0][i])
		}
	}
	return results, nil
}

func (c *chromaCollection) GetAll(ctx context.Context) ([]*types.Chunk, error) {
	body := map[string]interface{}{
		"include": []string{"documents", "metadatas", "embeddings"},
	}

	var resp struct {
		IDs        []string                 `json:"ids"`
		Documents  []string                 `json:"documents"`
		Metadatas  []map[string]interface{} `json:"metadatas"`
		Embeddings [][]float32              `json:"embeddings"`
	}
	if err := c.store.doJSON(ctx, http.MethodPost, c.path("get"), body, &resp); err != nil {
		return nil, fmt.Errorf("get collection %s: %w", c.name, err)
	}

	chunks := make([]*types.Chunk, len(resp.IDs))
	for i, id := range resp.IDs {
		chunk := &types.Chunk{ID: id}
		if i < len(resp.Documents) {
			chunk.Text = resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			chunk.Metadata = types.MetadataFromMap(resp.Metadatas[i])
			chunk.SourceDocID = chunk.Metadata.SourceDocID
			chunk.SequenceIndex = chunk.Metadata.SequenceIndex
			chunk.StartOffset = chunk.Metadata.StartOffset
			chunk.TokenCount = chunk.Metadata.TokenCount
		}
		if i < len(resp.Embeddings) {
			chunk.Embedding = resp.Embeddings[i]
		}
		chunks[i] = chunk
	}

	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceDocID != chunks[j].SourceDocID {
			return chunks[i].SourceDocID < chunks[j].SourceDocID
		}
		return chunks[i].SequenceIndex < chunks[j].SequenceIndex
	})
	return chunks, nil
}

func (c *chromaCollection) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.store.doJSON(ctx, http.MethodGet, c.path("count"), nil, &count); err != nil {
		return 0, fmt.Errorf("count collection %s: %w", c.name, err)
	}
	return count, nil
}

// Reset drops and recreates the collection. The handle stays valid and
// points at the fresh, empty collection afterwards.
func (c *chromaCollection) Reset(ctx context.Context) error {
	if err := c.store.DropCollection(ctx, c.name); err != nil {
		return err
	}

	info, err := c.store.createCollection(ctx, c.name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.id = info.ID
	c.mu.Unlock()
	return nil
}
