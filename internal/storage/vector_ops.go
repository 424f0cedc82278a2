package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector ranks a collection's chunks by cosine distance to the query
// vector and returns the topK nearest, ascending
func searchVector(ctx context.Context, db *sql.DB, collection string, queryVector []float32, topK int) ([]VectorResult, error) {
	// Use SQL-level distance when sqlite-vec is compiled in
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, collection, queryVector, topK)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, collection, queryVector, topK)
}

// searchVectorOptimized computes distances inside SQLite via the sqlite-vec
// extension's vec_distance_cosine
func searchVectorOptimized(ctx context.Context, db *sql.DB, collection string, queryVector []float32, topK int) ([]VectorResult, error) {
	query := `
		SELECT chunk_id, source_doc_id, sequence_index, start_offset, token_count, content,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM chunks
		WHERE collection = ?
		ORDER BY distance ASC, chunk_id ASC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, serializeVector(queryVector), collection, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	results := make([]VectorResult, 0, topK)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.Metadata.SourceDocID, &result.Metadata.SequenceIndex,
			&result.Metadata.StartOffset, &result.Metadata.TokenCount, &result.Text, &result.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// searchVectorFallback loads every embedding in the collection and ranks in
// Go. Linear in collection size, which is fine at manual scale.
func searchVectorFallback(ctx context.Context, db *sql.DB, collection string, queryVector []float32, topK int) ([]VectorResult, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT chunk_id, source_doc_id, sequence_index, start_offset, token_count, content, embedding
		FROM chunks
		WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var candidates []VectorResult
	for rows.Next() {
		var result VectorResult
		var blob []byte
		if err := rows.Scan(&result.ChunkID, &result.Metadata.SourceDocID, &result.Metadata.SequenceIndex,
			&result.Metadata.StartOffset, &result.Metadata.TokenCount, &result.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		result.Distance = cosineDistance(queryVector, vector)
		candidates = append(candidates, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is the cosine distance, 1 - similarity
func cosineDistance(a, b []float32) float64 {
	return 1.0 - cosineSimilarity(a, b)
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity computes the cosine similarity between two vectors.
// The response cache keys its lookups on it.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

// CosineDistance is an exported helper for testing
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b)
}
