package index

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/Aman-CERP/codecontext/internal/chunk"
	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/embed"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/filesync"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/snapshot"
	"github.com/Aman-CERP/codecontext/internal/store"
)

// upsertBatchSize bounds the points written per store call so cancellation
// is noticed between writes.
const upsertBatchSize = 256

// Dependencies are the collaborators of an Indexer.
type Dependencies struct {
	Synchronizer *filesync.Synchronizer
	Chunker      *chunk.Chunker
	Embedder     *embed.Orchestrator
	Store        store.Adapter
	Snapshots    snapshot.Store
	// Locks defaults to lock files under config.LocksPath().
	Locks *RunLock
}

// Indexer runs the indexing pipeline. It is safe for concurrent use; runs
// for the same project are rejected rather than interleaved.
type Indexer struct {
	sync      *filesync.Synchronizer
	chunker   *chunk.Chunker
	embedder  *embed.Orchestrator
	store     store.Adapter
	snapshots snapshot.Store
	locks     *RunLock
}

// New creates an Indexer. Every dependency except Locks is required.
func New(cfg *config.Config, deps Dependencies) (*Indexer, error) {
	switch {
	case cfg == nil:
		return nil, errors.InternalError("config is required", nil)
	case deps.Synchronizer == nil:
		return nil, errors.InternalError("synchronizer is required", nil)
	case deps.Chunker == nil:
		return nil, errors.InternalError("chunker is required", nil)
	case deps.Embedder == nil:
		return nil, errors.InternalError("embedder is required", nil)
	case deps.Store == nil:
		return nil, errors.InternalError("vector store is required", nil)
	case deps.Snapshots == nil:
		return nil, errors.InternalError("snapshot store is required", nil)
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewRunLock(cfg.LocksPath())
	}
	return &Indexer{
		sync:      deps.Synchronizer,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		store:     deps.Store,
		snapshots: deps.Snapshots,
		locks:     locks,
	}, nil
}

// fileWork is one added or modified file on its way to the store.
type fileWork struct {
	path    string
	entry   *filesync.Entry
	hash    string
	chunks  []*chunk.Chunk
	edges   []chunk.Edge
	offset  int // index of the first chunk in the embedded texts
	failed  bool
	stored  bool
	stale   []string
	vectors [][]float32
}

// run holds the state of one Index call.
type run struct {
	*Indexer
	root       string
	collection string
	opts       Options
	stats      *Stats
	started    time.Time
}

// Index brings the collection of projectPath in line with the files on disk.
// The snapshot is saved only after every store write of the run succeeded;
// a cancelled or failed run leaves it untouched.
func (ix *Indexer) Index(ctx context.Context, projectPath string, opts Options) (*Stats, error) {
	root, err := scanner.ValidateRoot(projectPath)
	if err != nil {
		return nil, err
	}
	collection := store.CollectionName(root)

	release, err := ix.locks.TryAcquire(collection, root)
	if err != nil {
		slog.Warn("index_busy", slog.String("path", root))
		return nil, err
	}
	defer release()

	r := &run{
		Indexer:    ix,
		root:       root,
		collection: collection,
		opts:       opts,
		stats:      &Stats{},
		started:    time.Now(),
	}
	slog.Info("index_started",
		slog.String("path", root),
		slog.String("collection", collection),
		slog.Bool("force", opts.Force))

	stats, err := r.execute(ctx)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("path", root)}, errors.LogAttrs(err)...)
		slog.LogAttrs(context.Background(), slog.LevelError, "index_failed", attrs...)
		return nil, err
	}
	return stats, nil
}

// Reindex is an incremental Index with default options.
func (ix *Indexer) Reindex(ctx context.Context, projectPath string) (*Stats, error) {
	return ix.Index(ctx, projectPath, Options{})
}

func (r *run) progress(p Progress) {
	if r.opts.Progress != nil {
		r.opts.Progress(p)
	}
}

// timed logs the duration of a pipeline state.
func timed(state string, start time.Time, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("state", state), slog.Duration("duration", time.Since(start)))
	slog.LogAttrs(context.Background(), slog.LevelDebug, "index_state", attrs...)
}

func (r *run) execute(ctx context.Context) (*Stats, error) {
	// SCAN + DIFF
	r.progress(Progress{Stage: StageScanning})
	start := time.Now()
	prev, err := r.snapshots.Load(ctx, r.root)
	if err != nil {
		return nil, err
	}
	if !prev.IsEmpty() && !r.store.HasCollection(r.collection) {
		slog.Warn("index_collection_missing",
			slog.String("path", r.root),
			slog.String("collection", r.collection))
		prev = snapshot.New(r.root)
	}

	tree, changes, err := r.sync.Detect(ctx, r.root, r.opts.Ignore, prev, r.opts.Force)
	if err != nil {
		return nil, err
	}
	r.stats.Added = len(changes.Added)
	r.stats.Removed = len(changes.Removed)
	r.stats.Modified = len(changes.Modified)
	r.stats.Skipped = len(tree.Skipped)
	timed("scan", start,
		slog.Int("files", len(tree.Files)),
		slog.Int("added", r.stats.Added),
		slog.Int("removed", r.stats.Removed),
		slog.Int("modified", r.stats.Modified))

	// CHUNK
	start = time.Now()
	work, err := r.chunkFiles(ctx, tree, changes)
	if err != nil {
		return nil, err
	}
	timed("chunk", start, slog.Int("files", len(work)))

	// EMBED
	start = time.Now()
	if err := r.embed(ctx, work); err != nil {
		return nil, err
	}
	timed("embed", start, slog.Int("failed_files", r.stats.Failed))

	// UPSERT + DELETE
	start = time.Now()
	if err := r.write(ctx, work, prev, changes); err != nil {
		return nil, err
	}
	timed("store", start,
		slog.Int("stored", r.stats.StoredChunks),
		slog.Int("deleted", r.stats.DeletedChunks))

	// FLUSH
	start = time.Now()
	if err := r.store.Flush(ctx, r.collection); err != nil {
		return nil, err
	}
	timed("flush", start)

	// SNAPSHOT
	start = time.Now()
	next := r.nextSnapshot(tree, prev, work)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.snapshots.Save(ctx, next); err != nil {
		return nil, err
	}
	timed("snapshot", start, slog.Int("files", len(next.Files)))

	r.stats.TotalChunks = next.TotalChunks()
	r.stats.Duration = time.Since(r.started)
	r.progress(Progress{Stage: StageComplete, Current: r.stats.IndexedFiles, Total: r.stats.IndexedFiles})

	slog.Info("index_complete",
		slog.String("path", r.root),
		slog.Int("indexed_files", r.stats.IndexedFiles),
		slog.Int("total_chunks", r.stats.TotalChunks),
		slog.Int("added", r.stats.Added),
		slog.Int("removed", r.stats.Removed),
		slog.Int("modified", r.stats.Modified),
		slog.Int("skipped", r.stats.Skipped),
		slog.Int("failed", r.stats.Failed),
		slog.Duration("duration", r.stats.Duration))
	return r.stats, nil
}

// chunkFiles reads and splits every added or modified file. Unreadable files
// are skipped; cancellation is checked before each file.
func (r *run) chunkFiles(ctx context.Context, tree *filesync.Tree, changes *filesync.ChangeSet) ([]*fileWork, error) {
	paths := changes.ToIndex()
	work := make([]*fileWork, 0, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.progress(Progress{Stage: StageChunking, Current: i + 1, Total: len(paths), File: p})

		entry := tree.Files[p]
		content, err := os.ReadFile(entry.AbsPath)
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "index_file_skipped", errors.LogAttrs(errors.FileError(p, err))...)
			r.stats.Skipped++
			continue
		}

		chunks, edges, err := r.chunker.Split(ctx, p, content, entry.Language)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("index_chunk_failed", slog.String("path", p), slog.String("error", err.Error()))
			r.stats.Skipped++
			continue
		}

		work = append(work, &fileWork{
			path:   p,
			entry:  entry,
			hash:   filesync.HashBytes(content),
			chunks: chunks,
			edges:  edges,
		})
	}
	return work, nil
}

// embed embeds every chunk in one orchestrated call. Files with a chunk in a
// failed batch are marked failed; any other error aborts the run.
func (r *run) embed(ctx context.Context, work []*fileWork) error {
	var texts []string
	for _, w := range work {
		w.offset = len(texts)
		for _, c := range w.chunks {
			texts = append(texts, c.Content)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	r.progress(Progress{Stage: StageEmbedding, Total: len(texts)})
	orch := r.embedder.WithProgress(func(done, total int) {
		r.progress(Progress{Stage: StageEmbedding, Current: done, Total: total})
	})

	res, err := orch.Embed(ctx, texts)
	if err != nil {
		return err
	}

	for _, w := range work {
		w.vectors = res.Vectors[w.offset : w.offset+len(w.chunks)]
		for i := range w.chunks {
			if res.Failed(w.offset + i) {
				w.failed = true
				break
			}
		}
		if w.failed {
			r.stats.Failed++
		}
	}
	if perr := res.Err(); perr != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "index_partial_failure",
			append([]slog.Attr{slog.Int("failed_files", r.stats.Failed)}, errors.LogAttrs(perr)...)...)
	}
	return nil
}

// write upserts the chunks of every embedded file, then deletes the ids it
// replaced and the ids of removed files.
func (r *run) write(ctx context.Context, work []*fileWork, prev *snapshot.Snapshot, changes *filesync.ChangeSet) error {
	now := time.Now()

	var points []*store.Point
	var edges []store.Edge
	for _, w := range work {
		if w.failed {
			continue
		}
		for i, c := range w.chunks {
			points = append(points, &store.Point{
				ID:     c.ID,
				Vector: w.vectors[i],
				Payload: store.Payload{
					RelativePath: c.FilePath,
					StartLine:    c.StartLine,
					EndLine:      c.EndLine,
					Language:     c.Language,
					Content:      c.Content,
					ParentID:     c.ParentID,
					Seq:          c.SequenceIndex,
					Kind:         c.Kind,
					Symbol:       c.Symbol,
					IndexedAt:    now,
				},
			})
		}
		for _, e := range w.edges {
			edges = append(edges, store.Edge{Source: e.Source, Target: e.Target, Kind: string(e.Kind)})
		}
	}

	total := len(points)
	if total > 0 {
		r.progress(Progress{Stage: StageStoring, Total: total})
	}
	for start := 0; start < total; start += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+upsertBatchSize, total)
		if err := r.store.Upsert(ctx, r.collection, points[start:end]); err != nil {
			return err
		}
		r.stats.StoredChunks += end - start
		r.progress(Progress{Stage: StageStoring, Current: end, Total: total})
	}
	refEdges, err := r.referenceEdges(ctx, work, changes)
	if err != nil {
		return err
	}
	edges = append(edges, refEdges...)
	if err := r.store.SetEdges(ctx, r.collection, edges); err != nil {
		return err
	}

	var stale []string
	for _, w := range work {
		if w.failed {
			continue
		}
		w.stored = true
		r.stats.IndexedFiles++
		if old, ok := prev.Get(w.path); ok {
			w.stale = staleIDs(old.ChunkIDs, w.chunks)
			stale = append(stale, w.stale...)
		}
	}
	for _, p := range changes.RemovedPaths() {
		if old, ok := prev.Get(p); ok {
			stale = append(stale, old.ChunkIDs...)
		}
	}

	if len(stale) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.Delete(ctx, r.collection, stale); err != nil {
			return err
		}
		r.stats.DeletedChunks = len(stale)
	}
	return nil
}

// referenceEdges resolves the refs of the stored chunks against the
// symbols of this run and the stored symbols of files the run leaves alone.
func (r *run) referenceEdges(ctx context.Context, work []*fileWork, changes *filesync.ChangeSet) ([]store.Edge, error) {
	var chunks []*chunk.Chunk
	replaced := make(map[string]bool)
	for _, w := range work {
		if w.failed {
			continue
		}
		chunks = append(chunks, w.chunks...)
		replaced[w.path] = true
	}
	for _, p := range changes.RemovedPaths() {
		replaced[p] = true
	}

	names := make(map[string]struct{})
	for _, c := range chunks {
		for _, ref := range c.Refs {
			names[ref.Name] = struct{}{}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	defs, err := r.store.Symbols(ctx, r.collection, slices.Sorted(maps.Keys(names)))
	if err != nil {
		return nil, err
	}
	symbols := chunk.SymbolsOf(chunks)
	heads := make(map[string]bool)
	for _, d := range defs {
		if replaced[d.RelativePath] {
			continue
		}
		if d.ParentID != "" {
			if heads[d.ParentID] {
				continue
			}
			heads[d.ParentID] = true
		}
		symbols = append(symbols, chunk.Symbol{ID: d.ID, Name: d.Name, Language: d.Language, FilePath: d.RelativePath})
	}

	var out []store.Edge
	for _, e := range chunk.ReferenceEdges(chunks, symbols) {
		out = append(out, store.Edge{Source: e.Source, Target: e.Target, Kind: string(e.Kind)})
	}
	return out, nil
}

// staleIDs returns the old ids no longer produced for a file.
func staleIDs(old []string, chunks []*chunk.Chunk) []string {
	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = struct{}{}
	}
	var out []string
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// nextSnapshot records stored files with their new chunks, keeps the previous
// record of unchanged, skipped and failed files, and drops removed ones.
func (r *run) nextSnapshot(tree *filesync.Tree, prev *snapshot.Snapshot, work []*fileWork) *snapshot.Snapshot {
	next := snapshot.New(r.root)

	for p, e := range tree.Files {
		old, ok := prev.Get(p)
		if !ok {
			continue
		}
		rec := *old
		rec.ChunkIDs = append([]string(nil), old.ChunkIDs...)
		if !e.Skipped && e.Hash == old.ContentHash {
			rec.Size = e.Size
			rec.ModTime = e.ModTime
		}
		next.Files[p] = &rec
	}

	for _, w := range work {
		if !w.stored {
			continue
		}
		ids := make([]string, len(w.chunks))
		for i, c := range w.chunks {
			ids[i] = c.ID
		}
		next.Files[w.path] = &snapshot.FileRecord{
			RelativePath: w.path,
			ContentHash:  w.hash,
			Size:         w.entry.Size,
			ModTime:      w.entry.ModTime,
			ChunkIDs:     ids,
		}
	}

	hashes := make(map[string]string, len(next.Files))
	for p, rec := range next.Files {
		hashes[p] = rec.ContentHash
	}
	next.Dirs = filesync.DirHashes(hashes)
	next.GeneratedAt = time.Now()
	return next
}

// String renders stats for CLI output.
func (s *Stats) String() string {
	return fmt.Sprintf("%d files indexed, %d chunks total (+%d ~%d -%d, %d skipped, %d failed) in %s",
		s.IndexedFiles, s.TotalChunks, s.Added, s.Modified, s.Removed, s.Skipped, s.Failed,
		s.Duration.Round(time.Millisecond))
}
