package codecontext

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/chunk"
	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/embed"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/filesync"
	"github.com/Aman-CERP/codecontext/internal/index"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/search"
	"github.com/Aman-CERP/codecontext/internal/snapshot"
	"github.com/Aman-CERP/codecontext/internal/store"
)

type (
	// IndexOptions configures an indexing run.
	IndexOptions = index.Options
	// IndexStats summarizes an indexing run.
	IndexStats = index.Stats
	// Progress is one indexing progress report.
	Progress = index.Progress
	// SearchOptions configures a search.
	SearchOptions = search.Options
	// SearchResult is one ranked chunk.
	SearchResult = search.Result
)

// Status describes the index of one project.
type Status struct {
	ProjectPath string    `json:"project_path"`
	Collection  string    `json:"collection"`
	Indexed     bool      `json:"indexed"`
	Indexing    bool      `json:"indexing"`
	Files       int       `json:"files"`
	Chunks      int       `json:"chunks"`
	Vectors     int       `json:"vectors"`
	Orphans     int       `json:"orphaned_vectors"`
	Dimensions  int       `json:"dimensions"`
	Model       string    `json:"model"`
	LastIndexed time.Time `json:"last_indexed,omitzero"`
}

// Engine wires the indexing and search pipelines over shared stores.
type Engine struct {
	cfg       *config.Config
	embedder  *embed.Orchestrator
	store     *store.LocalAdapter
	snapshots *snapshot.FileStore
	locks     *index.RunLock
	indexer   *index.Indexer
	searcher  *search.Searcher

	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine from cfg with the configured embedding provider.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.ConfigError("config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	orch, err := embed.New(cfg)
	if err != nil {
		return nil, err
	}
	eng, err := NewWithEmbedder(cfg, orch)
	if err != nil {
		_ = orch.Close()
		return nil, err
	}
	return eng, nil
}

// NewWithEmbedder builds an Engine around an existing orchestrator, which
// the Engine then owns.
func NewWithEmbedder(cfg *config.Config, orch *embed.Orchestrator) (*Engine, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}
	st, err := store.NewLocalAdapter(store.AdapterConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	snaps := snapshot.NewFileStore(cfg.SnapshotPath())
	locks := index.NewRunLock(cfg.LocksPath())

	ix, err := index.New(cfg, index.Dependencies{
		Synchronizer: filesync.New(sc, filesync.Options{
			Workers:          cfg.Performance.HashWorkers,
			Ignore:           cfg.Paths.Ignore,
			RespectGitignore: true,
			MaxFileSize:      cfg.Paths.MaxFileSize,
		}),
		Chunker: chunk.New(chunk.Options{
			MaxChunkSize: cfg.Chunking.ChunkSize,
			Overlap:      cfg.Chunking.ChunkOverlap,
		}),
		Embedder:  orch,
		Store:     st,
		Snapshots: snaps,
		Locks:     locks,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	srch, err := search.New(orch, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		embedder:  orch,
		store:     st,
		snapshots: snaps,
		locks:     locks,
		indexer:   ix,
		searcher:  srch,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Index indexes path incrementally, or fully when force is set.
func (e *Engine) Index(ctx context.Context, path string, force bool) (*IndexStats, error) {
	return e.IndexWithOptions(ctx, path, IndexOptions{Force: force})
}

// IndexWithOptions indexes path with explicit options.
func (e *Engine) IndexWithOptions(ctx context.Context, path string, opts IndexOptions) (*IndexStats, error) {
	return e.indexer.Index(ctx, path, opts)
}

// Reindex indexes only what changed since the last run.
func (e *Engine) Reindex(ctx context.Context, path string) (*IndexStats, error) {
	return e.indexer.Reindex(ctx, path)
}

// Search returns up to topK chunks scoring at least threshold.
// A zero topK uses search.default_top_k.
func (e *Engine) Search(ctx context.Context, path, query string, topK int, threshold float64) ([]*SearchResult, error) {
	if topK == 0 {
		topK = e.cfg.Search.DefaultTopK
	}
	return e.searcher.Search(ctx, path, query, SearchOptions{TopK: topK, Threshold: threshold})
}

// SearchWithOptions searches with filters.
func (e *Engine) SearchWithOptions(ctx context.Context, path, query string, opts SearchOptions) ([]*SearchResult, error) {
	if opts.TopK == 0 {
		opts.TopK = e.cfg.Search.DefaultTopK
	}
	return e.searcher.Search(ctx, path, query, opts)
}

// HasIndex reports whether path has a collection.
func (e *Engine) HasIndex(path string) bool {
	root, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return e.store.HasCollection(store.CollectionName(root))
}

// ClearIndex drops the collection and snapshot of path. It fails with an
// index-busy error while the project is being indexed.
func (e *Engine) ClearIndex(ctx context.Context, path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return errors.New(errors.ErrCodePathNotFound, "cannot resolve path "+path, err)
	}
	collection := store.CollectionName(root)

	release, err := e.locks.TryAcquire(collection, root)
	if err != nil {
		return err
	}
	defer release()

	if err := e.store.DropCollection(ctx, collection); err != nil {
		return err
	}
	return e.snapshots.Delete(ctx, root)
}

// Status reports what is indexed for path.
func (e *Engine) Status(ctx context.Context, path string) (*Status, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodePathNotFound, "cannot resolve path "+path, err)
	}
	collection := store.CollectionName(root)

	st := &Status{
		ProjectPath: root,
		Collection:  collection,
		Indexing:    e.locks.Held(collection),
		Model:       e.embedder.ModelName(),
	}
	if !e.store.HasCollection(collection) {
		return st, nil
	}
	st.Indexed = true

	stats, err := e.store.Stats(ctx, collection)
	if err != nil {
		return nil, err
	}
	st.Chunks = stats.Chunks
	st.Vectors = stats.Vectors
	st.Orphans = stats.Orphans
	st.Dimensions = stats.Dimensions
	st.Files = stats.Files

	snap, err := e.snapshots.Load(ctx, root)
	if err != nil {
		return nil, err
	}
	st.LastIndexed = snap.GeneratedAt
	return st, nil
}

// Close flushes and closes the stores and the embedder. It is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		storeErr := e.store.Close()
		embedErr := e.embedder.Close()
		if storeErr != nil {
			e.closeErr = storeErr
		} else {
			e.closeErr = embedErr
		}
	})
	return e.closeErr
}
