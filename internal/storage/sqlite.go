package storage

import (
	"context"
	"database/sql"
	"fmt"

	"manualkb/pkg/types"
)

// SQLiteStore implements Store on an embedded SQLite database. It serves
// deployments that cannot run a vector database server; queries scan the
// collection and rank by cosine distance in the process.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens the database at dbPath, creating it and applying
// pending migrations as needed. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OpenCollection returns a handle to the named collection, registering it if
// it does not exist yet
func (s *SQLiteStore) OpenCollection(ctx context.Context, name string) (VectorIndex, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidQuery)
	}

	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO collections (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	return &sqliteCollection{db: s.db, name: name}, nil
}

// DropCollection removes the collection registration and, via the cascade,
// all of its chunks. Unknown names are ignored.
func (s *SQLiteStore) DropCollection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// sqliteCollection is a VectorIndex over the rows of one collection
type sqliteCollection struct {
	db   *sql.DB
	name string
}

func (c *sqliteCollection) Collection() string {
	return c.name
}

func (c *sqliteCollection) Upsert(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, chunk_id, source_doc_id, sequence_index, start_offset, token_count, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, chunk_id) DO UPDATE SET
			source_doc_id = excluded.source_doc_id,
			sequence_index = excluded.sequence_index,
			start_offset = excluded.start_offset,
			token_count = excluded.token_count,
			content = excluded.content,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidQuery, chunk.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			c.name, chunk.ID, chunk.SourceDocID, chunk.SequenceIndex,
			chunk.StartOffset, chunk.TokenCount, chunk.Text, serializeVector(chunk.Embedding),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (c *sqliteCollection) Query(ctx context.Context, embedding []float32, topK int) ([]VectorResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidQuery)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrInvalidQuery)
	}

	return searchVector(ctx, c.db, c.name, embedding, topK)
}

func (c *sqliteCollection) GetAll(ctx context.Context) ([]*types.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_id, source_doc_id, sequence_index, start_offset, token_count, content, embedding
		FROM chunks
		WHERE collection = ?
		ORDER BY source_doc_id, sequence_index
	`, c.name)
	if err != nil {
		return nil, fmt.Errorf("get all chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*types.Chunk
	for rows.Next() {
		chunk := &types.Chunk{}
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.SourceDocID, &chunk.SequenceIndex,
			&chunk.StartOffset, &chunk.TokenCount, &chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Embedding = deserializeVector(blob)
		chunk.Metadata = types.ChunkMetadata{
			SourceDocID:   chunk.SourceDocID,
			SequenceIndex: chunk.SequenceIndex,
			StartOffset:   chunk.StartOffset,
			TokenCount:    chunk.TokenCount,
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (c *sqliteCollection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", c.name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// Reset empties the collection. The registration row is restored so the
// handle keeps working after a concurrent drop.
func (c *sqliteCollection) Reset(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", c.name); err != nil {
		return fmt.Errorf("reset collection %s: %w", c.name, err)
	}
	if _, err := c.db.ExecContext(ctx, "INSERT OR IGNORE INTO collections (name) VALUES (?)", c.name); err != nil {
		return fmt.Errorf("reset collection %s: %w", c.name, err)
	}
	return nil
}
