package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/errors"
)

// CollectionPrefix starts every collection name.
const CollectionPrefix = "code_chunks_"

// defaultOpenCollections bounds the handle cache when unset.
const defaultOpenCollections = 8

// CollectionName derives the collection of a project from its absolute path.
func CollectionName(projectPath string) string {
	path := projectPath
	if abs, err := filepath.Abs(projectPath); err == nil {
		path = abs
	}
	return fmt.Sprintf("%s%016x", CollectionPrefix, xxhash.Sum64String(filepath.Clean(path)))
}

// AdapterConfig configures a LocalAdapter.
type AdapterConfig struct {
	// Dir holds one subdirectory per collection.
	Dir string

	// LexicalBackend is used for new collections (default sqlite).
	LexicalBackend BM25Backend

	// MetadataDriver is the payload database driver (default sqlite).
	MetadataDriver string

	// RRFConstant is the fusion k (default 60).
	RRFConstant int

	// OpenCollections bounds the number of collections held open (default 8).
	OpenCollections int
}

// AdapterConfigFrom maps the storage and search sections of cfg.
func AdapterConfigFrom(cfg *config.Config) AdapterConfig {
	return AdapterConfig{
		Dir:             cfg.CollectionsPath(),
		LexicalBackend:  BM25Backend(cfg.Search.LexicalBackend),
		MetadataDriver:  cfg.Storage.MetadataDriver,
		RRFConstant:     cfg.Search.RRFConstant,
		OpenCollections: cfg.Storage.OpenCollections,
	}
}

// LocalAdapter is the on-disk Adapter. Collections are opened on demand and
// kept in an LRU; an evicted collection is flushed and closed once no
// operation holds it.
type LocalAdapter struct {
	cfg    AdapterConfig
	fusion *RRFFusion

	mu     sync.Mutex
	open   *lru.Cache[string, *collection]
	closed bool
}

var _ Adapter = (*LocalAdapter)(nil)

// NewLocalAdapter creates an adapter rooted at cfg.Dir.
func NewLocalAdapter(cfg AdapterConfig) (*LocalAdapter, error) {
	if cfg.Dir == "" {
		return nil, errors.ConfigError("collections directory is required", nil)
	}
	if cfg.LexicalBackend == "" {
		cfg.LexicalBackend = BM25BackendSQLite
	}
	if cfg.LexicalBackend != BM25BackendSQLite && cfg.LexicalBackend != BM25BackendBleve {
		return nil, errors.ConfigError(fmt.Sprintf("unknown lexical backend %q (valid: sqlite, bleve)", cfg.LexicalBackend), nil)
	}
	if cfg.MetadataDriver == "" {
		cfg.MetadataDriver = MetadataDriverSQLite
	}
	if err := checkMetadataDriver(cfg.MetadataDriver); err != nil {
		return nil, err
	}
	if cfg.OpenCollections <= 0 {
		cfg.OpenCollections = defaultOpenCollections
	}

	a := &LocalAdapter{cfg: cfg, fusion: NewRRFFusion(cfg.RRFConstant)}
	cache, err := lru.NewWithEvict[string, *collection](cfg.OpenCollections, a.onEvict)
	if err != nil {
		return nil, errors.InternalError("failed to create collection cache", err)
	}
	a.open = cache
	return a, nil
}

// onEvict runs with a.mu held.
func (a *LocalAdapter) onEvict(_ string, c *collection) {
	c.evicted = true
	if c.refs == 0 {
		a.closeCollection(c)
	}
}

func (a *LocalAdapter) closeCollection(c *collection) {
	if err := c.close(); err != nil {
		slog.Warn("collection_close_failed",
			slog.String("collection", c.name),
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("collection_closed", slog.String("collection", c.name))
}

func (a *LocalAdapter) dir(name string) string {
	return filepath.Join(a.cfg.Dir, name)
}

// acquire returns an open collection and pins it until release.
// With create false a collection missing on disk yields a not-indexed error.
func (a *LocalAdapter) acquire(name string, create bool) (*collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.StoreError("vector store is closed", nil)
	}

	if c, ok := a.open.Get(name); ok {
		c.refs++
		return c, nil
	}
	if !create && !a.exists(name) {
		return nil, notIndexed(name)
	}

	c, err := openCollection(name, a.dir(name), a.cfg.LexicalBackend, a.cfg.MetadataDriver)
	if err != nil {
		return nil, err
	}
	c.refs++
	a.open.Add(name, c)
	slog.Debug("collection_opened", slog.String("collection", name), slog.String("dir", c.dir))
	return c, nil
}

func (a *LocalAdapter) release(c *collection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c.refs--
	if c.evicted && c.refs == 0 {
		a.closeCollection(c)
	}
}

func (a *LocalAdapter) exists(name string) bool {
	return fileExists(filepath.Join(a.dir(name), payloadsFile))
}

// Upsert inserts or replaces points, creating the collection on first use.
func (a *LocalAdapter) Upsert(ctx context.Context, name string, points []*Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.ID == "" {
			return errors.New(errors.ErrCodeInvalidInput, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("point %s has no vector", p.ID), nil)
		}
	}

	c, err := a.acquire(name, true)
	if err != nil {
		return err
	}
	defer a.release(c)

	if err := c.upsert(ctx, points); err != nil {
		return asWriteError(err, name)
	}
	return nil
}

// Delete removes points. A missing collection is not an error.
func (a *LocalAdapter) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c, err := a.acquire(name, false)
	if errors.IsKind(err, errors.KindNotIndexed) {
		return nil
	}
	if err != nil {
		return err
	}
	defer a.release(c)

	if err := c.delete(ctx, ids); err != nil {
		return asWriteError(err, name)
	}
	return nil
}

// Query runs a hybrid query against a collection.
func (a *LocalAdapter) Query(ctx context.Context, name string, q *Query) ([]*Hit, error) {
	if q == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "query is required", nil)
	}
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)

	qq := *q
	if qq.Candidates <= 0 {
		qq.Candidates = DefaultCandidates(qq.TopK)
	}
	qq.Text = strings.TrimSpace(qq.Text)

	hits, err := c.query(ctx, &qq, a.fusion)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return hits, nil
}

// DefaultCandidates is the per-leg depth for a query of topK results.
func DefaultCandidates(topK int) int {
	return max(topK*4, 20)
}

// DropCollection closes a collection and removes its directory.
func (a *LocalAdapter) DropCollection(_ context.Context, name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}

	a.mu.Lock()
	a.open.Remove(name)
	a.mu.Unlock()

	if err := os.RemoveAll(a.dir(name)); err != nil {
		return errors.StoreError("failed to remove collection", err).WithDetail("collection", name)
	}
	slog.Info("collection_dropped", slog.String("collection", name))
	return nil
}

// HasCollection reports whether the collection exists on disk.
func (a *LocalAdapter) HasCollection(name string) bool {
	if validateCollectionName(name) != nil {
		return false
	}
	return a.exists(name)
}

// Payloads returns the payloads of the ids that exist.
func (a *LocalAdapter) Payloads(ctx context.Context, name string, ids []string) (map[string]*Payload, error) {
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)
	return c.meta.Get(ctx, ids)
}

// SetEdges replaces the outgoing edges of each source in edges.
func (a *LocalAdapter) SetEdges(ctx context.Context, name string, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	c, err := a.acquire(name, true)
	if err != nil {
		return err
	}
	defer a.release(c)

	if err := c.meta.SetEdges(ctx, edges); err != nil {
		return asWriteError(err, name)
	}
	return nil
}

// Edges returns the edges leaving ids.
func (a *LocalAdapter) Edges(ctx context.Context, name string, ids []string) ([]Edge, error) {
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)
	return c.meta.Edges(ctx, ids)
}

// Neighbors returns the edges leaving or entering ids.
func (a *LocalAdapter) Neighbors(ctx context.Context, name string, ids []string) ([]Edge, error) {
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)
	return c.meta.Neighbors(ctx, ids)
}

// Symbols returns the chunks defining any of names.
func (a *LocalAdapter) Symbols(ctx context.Context, name string, names []string) ([]SymbolDef, error) {
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)
	return c.meta.Symbols(ctx, names)
}

// Flush persists a collection. Flushing a collection that is not open is a no-op.
func (a *LocalAdapter) Flush(_ context.Context, name string) error {
	a.mu.Lock()
	c, ok := a.open.Get(name)
	if ok {
		c.refs++
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	defer a.release(c)

	if err := c.flush(); err != nil {
		return asWriteError(err, name)
	}
	return nil
}

// Stats returns counts for a collection.
func (a *LocalAdapter) Stats(ctx context.Context, name string) (*CollectionStats, error) {
	c, err := a.acquire(name, false)
	if err != nil {
		return nil, err
	}
	defer a.release(c)
	return c.stats(ctx)
}

// Close flushes and closes every open collection. It is idempotent.
func (a *LocalAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.open.Purge()
	return nil
}

func validateCollectionName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid collection name %q", name), nil)
	}
	return nil
}

func notIndexed(name string) error {
	return errors.New(errors.ErrCodeNotIndexed, "project is not indexed", nil).
		WithDetail("collection", name).
		WithSuggestion("run 'codecontext index <path>' first")
}

// asWriteError keeps structured store errors and wraps anything else as a
// vector store write failure.
func asWriteError(err error, name string) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.New(errors.ErrCodeVectorStoreWrite, "vector store write failed", err).WithDetail("collection", name)
}
