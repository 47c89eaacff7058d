package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Files inside a collection directory.
const (
	vectorsFile  = "vectors.hnsw"
	payloadsFile = "payloads.db"
)

// collection bundles the three indexes of one project. Each index is
// independently locked; mu only guards dirty.
type collection struct {
	name string
	dir  string

	vectors *HNSWStore
	lexical BM25Index
	meta    *MetadataStore

	mu    sync.Mutex
	dirty bool

	// refs and evicted are guarded by the owning LocalAdapter's mutex.
	refs    int
	evicted bool
}

// openCollection opens the indexes in dir, creating them when absent.
func openCollection(name, dir string, backend BM25Backend, driver string) (*collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to create collection directory", err).
			WithDetail("collection", name)
	}

	// Width is learned from the first Add or from the saved graph.
	vectors := NewHNSWStore(DefaultVectorStoreConfig(0))
	if fileExists(filepath.Join(dir, vectorsFile)) {
		if err := vectors.Load(filepath.Join(dir, vectorsFile)); err != nil {
			return nil, err
		}
	}

	lexical, err := NewBM25Index(dir, backend, DefaultBM25Config())
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}

	meta, err := NewMetadataStore(filepath.Join(dir, payloadsFile), driver)
	if err != nil {
		_ = vectors.Close()
		_ = lexical.Close()
		return nil, err
	}

	return &collection{name: name, dir: dir, vectors: vectors, lexical: lexical, meta: meta}, nil
}

func (c *collection) upsert(ctx context.Context, points []*Point) error {
	ids := make([]string, len(points))
	vecs := make([][]float32, len(points))
	docs := make([]*Document, len(points))
	for i, p := range points {
		ids[i] = p.ID
		vecs[i] = p.Vector
		docs[i] = &Document{ID: p.ID, Content: lexicalText(p)}
	}

	if err := c.vectors.Add(ctx, ids, vecs); err != nil {
		return err
	}
	c.markDirty()
	if err := c.lexical.Index(ctx, docs); err != nil {
		return err
	}
	return c.meta.Upsert(ctx, points)
}

// lexicalText is what the term index sees: the chunk text plus its path so
// file names match too.
func lexicalText(p *Point) string {
	return p.Payload.Content + "\n" + p.Payload.RelativePath
}

func (c *collection) delete(ctx context.Context, ids []string) error {
	if err := c.vectors.Delete(ctx, ids); err != nil {
		return err
	}
	c.markDirty()
	if err := c.lexical.Delete(ctx, ids); err != nil {
		return err
	}
	return c.meta.Delete(ctx, ids)
}

// query runs both legs concurrently and fuses them.
func (c *collection) query(ctx context.Context, q *Query, fusion *RRFFusion) ([]*Hit, error) {
	var (
		dense   []*VectorResult
		lexical []*BM25Result
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(q.Vector) > 0 {
		g.Go(func() error {
			var err error
			dense, err = c.vectors.Search(gctx, q.Vector, q.Candidates)
			return err
		})
	}
	if q.Text != "" {
		g.Go(func() error {
			var err error
			lexical, err = c.lexical.Search(gctx, q.Text, q.Candidates)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fusion.Fuse(dense, lexical, q.Threshold, q.TopK), nil
}

func (c *collection) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// flush saves the graph when it changed and checkpoints both databases.
func (c *collection) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vectors.NeedsCompaction() {
		dropped, err := c.vectors.Compact()
		if err != nil {
			return err
		}
		slog.Debug("vectors_compacted",
			slog.String("collection", c.name),
			slog.Int("dropped", dropped),
			slog.Int("live", c.vectors.Count()))
		c.dirty = true
	}
	if c.dirty {
		if err := c.vectors.Save(filepath.Join(c.dir, vectorsFile)); err != nil {
			return err
		}
		c.dirty = false
	}
	if err := c.lexical.Flush(); err != nil {
		return err
	}
	return c.meta.Flush()
}

func (c *collection) stats(ctx context.Context) (*CollectionStats, error) {
	chunks, files, err := c.meta.Counts(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := c.lexical.Count()
	if err != nil {
		return nil, err
	}
	return &CollectionStats{
		Name:       c.name,
		Chunks:     chunks,
		Vectors:    c.vectors.Count(),
		Orphans:    c.vectors.Orphans(),
		Documents:  docs,
		Dimensions: c.vectors.Dimensions(),
		Files:      files,
	}, nil
}

// close flushes and closes every index, returning the first error.
func (c *collection) close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(c.flush())
	keep(c.vectors.Close())
	keep(c.lexical.Close())
	keep(c.meta.Close())
	if first != nil {
		return fmt.Errorf("close collection %s: %w", c.name, first)
	}
	return nil
}
