package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"manualkb/internal/chunker"
	"manualkb/internal/embedder"
	"manualkb/internal/keyword"
	"manualkb/internal/storage"
	"manualkb/internal/telemetry"
	"manualkb/pkg/types"
)

// State is the index lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	// DefaultCollection is the base collection name; each build publishes
	// under <base>_<build id>.
	DefaultCollection = "manual_chunks"

	// upsertBatchSize and upsertWorkers shape the write fan-out into the
	// vector store during a build.
	upsertBatchSize = 64
	upsertWorkers   = 4

	// dropTimeout bounds the best-effort removal of a stale or partial
	// collection.
	dropTimeout = 30 * time.Second
)

// Pair is one immutable published index generation: the vector collection
// and the BM25 index built from the same chunk set. Queries that hold a
// Pair see a consistent view even while the next generation is being
// built.
type Pair struct {
	Vector     storage.VectorIndex
	Keyword    *keyword.Index
	BuildID    string
	Collection string
	BuiltAt    time.Time
	ChunkCount int
	SourceDocs int
}

// Config contains construction parameters for the lifecycle.
type Config struct {
	// SourcePath is the manual corpus: a single file or a directory
	// walked for .md and .txt files.
	SourcePath string
	// Collection is the base collection name (DefaultCollection when
	// empty).
	Collection string
	// KeywordOptions tunes BM25 scoring; zero fields use the standard
	// constants.
	KeywordOptions keyword.Options
}

// Statistics describes the last successful build.
type Statistics struct {
	BuildID         string
	SourceDocuments int
	ChunksCreated   int
	TextsEmbedded   int
	KeywordTerms    int
	Duration        time.Duration
}

// Status is a point-in-time snapshot of the lifecycle, safe to request
// at any moment including mid-build.
type Status struct {
	State      State
	Collection string
	BuildID    string
	// DocumentCount is the number of chunks in the active collection,
	// captured when the generation was published.
	DocumentCount     int
	SourceDocuments   int
	LastBuildTime     time.Time
	LastBuildDuration time.Duration
	LastError         string
}

// Lifecycle owns the index state machine and the build pipeline:
// discover source documents, chunk, embed, index, publish.
//
// Builds are copy-on-rebuild: every build writes into a fresh versioned
// collection and constructs a fresh BM25 index, then publishes both as
// one Pair with a single atomic pointer swap. Queries served from the
// previous generation continue undisturbed until they finish; the stale
// collection is dropped best-effort after the swap.
type Lifecycle struct {
	store    storage.Store
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	sourcePath  string
	baseName    string
	keywordOpts keyword.Options

	// buildLock makes builds single-flight: a second build request fails
	// fast with ErrBuildInProgress instead of queueing.
	buildLock IndexLock

	active atomic.Pointer[Pair]

	mu            sync.RWMutex
	state         State
	lastErr       error
	stats         Statistics
	lastBuildTime time.Time
}

// New creates a Lifecycle in the uninitialized state. Nothing is read or
// built until Initialize or Rebuild is called. Metrics may be nil.
func New(store storage.Store, emb embedder.Embedder, chk *chunker.Chunker, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Lifecycle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	baseName := cfg.Collection
	if baseName == "" {
		baseName = DefaultCollection
	}

	return &Lifecycle{
		store:       store,
		embedder:    emb,
		chunker:     chk,
		logger:      logger,
		metrics:     metrics,
		sourcePath:  cfg.SourcePath,
		baseName:    baseName,
		keywordOpts: cfg.KeywordOptions,
		state:       StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns a snapshot of the lifecycle and the active generation.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	st := Status{
		State:             l.state,
		LastBuildTime:     l.lastBuildTime,
		LastBuildDuration: l.stats.Duration,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	l.mu.RUnlock()

	if pair := l.active.Load(); pair != nil {
		st.Collection = pair.Collection
		st.BuildID = pair.BuildID
		st.DocumentCount = pair.ChunkCount
		st.SourceDocuments = pair.SourceDocs
	}
	return st
}

// Statistics returns the stats of the last successful build.
func (l *Lifecycle) Statistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Indexes returns the active index pair. It fails with types.ErrNotReady
// until a generation has been published. A published pair keeps serving
// during a rebuild, so queries never observe a gap.
func (l *Lifecycle) Indexes() (storage.VectorIndex, *keyword.Index, error) {
	pair := l.active.Load()
	if pair == nil {
		return nil, nil, types.ErrNotReady
	}
	return pair.Vector, pair.Keyword, nil
}

// Active returns the published generation, or nil before the first
// successful build.
func (l *Lifecycle) Active() *Pair {
	return l.active.Load()
}

// Initialize builds the first index generation. Once a generation is
// published and the lifecycle is ready, Initialize is a no-op; use
// Rebuild to force a fresh build. A build already in flight fails fast
// with types.ErrBuildInProgress.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	if l.State() == StateReady && l.active.Load() != nil {
		return nil
	}
	return l.build(ctx)
}

// Rebuild runs a full build regardless of the current state: rereads the
// source, re-chunks, re-embeds, and atomically replaces the published
// generation. This is also the explicit retry path out of the failed
// state.
func (l *Lifecycle) Rebuild(ctx context.Context) error {
	return l.build(ctx)
}

// build runs one complete build cycle under the single-flight lock.
func (l *Lifecycle) build(ctx context.Context) error {
	if !l.buildLock.TryAcquire() {
		return types.ErrBuildInProgress
	}
	defer l.buildLock.Release()

	startTime := time.Now()
	buildID := newBuildID()
	collection := fmt.Sprintf("%s_%s", l.baseName, buildID)

	l.setState(StateInitializing, nil)
	l.logger.Info("index build started",
		"build_id", buildID,
		"collection", collection,
		"source", l.sourcePath,
	)

	pair, stats, err := l.runBuild(ctx, buildID, collection)
	if err != nil {
		l.metrics.RecordBuild(ctx, false, time.Since(startTime), 0)
		// Leave no partial collection behind.
		l.dropCollection(collection)

		if l.active.Load() != nil {
			// A rebuild failed but the previous generation is intact;
			// keep serving it and surface the error through Status.
			l.setState(StateReady, err)
			l.logger.Warn("index rebuild failed, previous generation remains active",
				"build_id", buildID, "error", err)
		} else {
			l.setState(StateFailed, err)
			l.logger.Error("index build failed", "build_id", buildID, "error", err)
		}
		return fmt.Errorf("index build %s: %w", buildID, err)
	}

	stats.Duration = time.Since(startTime)
	previous := l.active.Swap(pair)

	l.mu.Lock()
	l.state = StateReady
	l.lastErr = nil
	l.stats = *stats
	l.lastBuildTime = pair.BuiltAt
	l.mu.Unlock()

	l.metrics.RecordBuild(ctx, true, stats.Duration, int64(stats.ChunksCreated))
	l.logger.Info("index build complete",
		"build_id", buildID,
		"documents", stats.SourceDocuments,
		"chunks", stats.ChunksCreated,
		"keyword_terms", stats.KeywordTerms,
		"duration_ms", stats.Duration.Milliseconds(),
	)

	if previous != nil {
		l.dropCollection(previous.Collection)
	}
	return nil
}

// runBuild executes the pipeline into the given fresh collection.
func (l *Lifecycle) runBuild(ctx context.Context, buildID, collection string) (*Pair, *Statistics, error) {
	docs, err := discoverDocuments(l.sourcePath)
	if err != nil {
		return nil, nil, err
	}

	var chunks []*types.Chunk
	for _, doc := range docs {
		chunks = append(chunks, l.chunker.ChunkDocument(doc.ID, doc.Text)...)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("source %s produced no chunks from %d documents", l.sourcePath, len(docs))
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	l.metrics.RecordEmbeddedTexts(ctx, "build", int64(len(texts)))
	vectors, err := l.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	keywordIndex := keyword.Build(chunks, l.keywordOpts)

	vectorIndex, err := l.store.OpenCollection(ctx, collection)
	if err != nil {
		return nil, nil, fmt.Errorf("open collection %s: %w", collection, err)
	}

	if err := l.upsertChunks(ctx, vectorIndex, chunks); err != nil {
		return nil, nil, err
	}

	pair := &Pair{
		Vector:     vectorIndex,
		Keyword:    keywordIndex,
		BuildID:    buildID,
		Collection: collection,
		BuiltAt:    time.Now(),
		ChunkCount: len(chunks),
		SourceDocs: len(docs),
	}
	stats := &Statistics{
		BuildID:         buildID,
		SourceDocuments: len(docs),
		ChunksCreated:   len(chunks),
		TextsEmbedded:   len(texts),
		KeywordTerms:    keywordIndex.Terms(),
	}
	return pair, stats, nil
}

// upsertChunks writes the chunk set into the collection in bounded
// parallel batches.
func (l *Lifecycle) upsertChunks(ctx context.Context, vectorIndex storage.VectorIndex, chunks []*types.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertWorkers)

	var stored atomic.Int32
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		first := start

		g.Go(func() error {
			if err := vectorIndex.Upsert(gctx, batch); err != nil {
				return fmt.Errorf("upsert chunks %d..%d: %w", first, first+len(batch)-1, err)
			}
			stored.Add(int32(len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	l.logger.Debug("chunks stored", "count", stored.Load(), "collection", vectorIndex.Collection())
	return nil
}

// dropCollection removes a collection best-effort. Failures are logged,
// not returned: a leaked collection wastes space but never blocks the
// lifecycle. A fresh context is used because the build context may
// already be canceled by the time cleanup runs.
func (l *Lifecycle) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()

	if err := l.store.DropCollection(ctx, name); err != nil {
		l.logger.Warn("drop collection failed", "collection", name, "error", err)
	}
}

func (l *Lifecycle) setState(s State, err error) {
	l.mu.Lock()
	l.state = s
	l.lastErr = err
	l.mu.Unlock()
}

// newBuildID returns a short unique suffix for versioned collection
// names.
func newBuildID() string {
	return uuid.NewString()[:8]
}
