package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/Aman-CERP/codecontext/internal/chunk"
	"github.com/Aman-CERP/codecontext/internal/embed"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/store"
)

// QueryEmbedder embeds search queries. *embed.Orchestrator implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ QueryEmbedder = (*embed.Orchestrator)(nil)

// Searcher runs hybrid searches. It is safe for concurrent use.
type Searcher struct {
	embedder QueryEmbedder
	store    store.Adapter
}

// New creates a Searcher. embedder must be the one used for indexing.
func New(embedder QueryEmbedder, st store.Adapter) (*Searcher, error) {
	if embedder == nil {
		return nil, errors.InternalError("embedder is required", nil)
	}
	if st == nil {
		return nil, errors.InternalError("vector store is required", nil)
	}
	return &Searcher{embedder: embedder, store: st}, nil
}

// Search returns up to TopK chunks of projectPath ranked by fused score.
// An empty result is not an error; a project without a collection is.
func (s *Searcher) Search(ctx context.Context, projectPath, query string, opts Options) ([]*Result, error) {
	opts, err := Validate(query, opts)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, errors.New(errors.ErrCodePathNotFound, "cannot resolve path "+projectPath, err)
	}
	collection := store.CollectionName(root)
	if !s.store.HasCollection(collection) {
		return nil, errors.New(errors.ErrCodeNotIndexed, "project is not indexed: "+root, nil).
			WithDetail("path", root).
			WithSuggestion("run 'codecontext index " + root + "' first")
	}

	start := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	embedDur := time.Since(start)

	filters := buildFilters(opts)
	fetch := opts.TopK + payloadSlack
	if len(filters) > 0 {
		fetch = opts.TopK * filterOverfetch
	}

	hits, err := s.store.Query(ctx, collection, &store.Query{
		Vector:     vec,
		Text:       query,
		TopK:       fetch,
		Threshold:  opts.Threshold,
		Candidates: store.DefaultCandidates(fetch),
	})
	if err != nil {
		return nil, err
	}

	results, err := s.resolve(ctx, collection, hits, filters, opts.TopK)
	if err != nil {
		return nil, err
	}
	if opts.MaxGraphHops > 0 {
		results = s.expand(ctx, collection, results, filters, opts.MaxGraphHops, opts.GraphLimit)
	}

	slog.Debug("search_complete",
		slog.String("collection", collection),
		slog.Int("hits", len(hits)),
		slog.Int("results", len(results)),
		slog.Duration("embed", embedDur),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// resolve maps fused hits to payloads, drops hits without one, applies
// filters and truncates to topK. Fused order is kept.
func (s *Searcher) resolve(ctx context.Context, collection string, hits []*store.Hit, filters []FilterFunc, topK int) ([]*Result, error) {
	if len(hits) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	payloads, err := s.store.Payloads(ctx, collection, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, min(topK, len(hits)))
	for _, h := range hits {
		p, ok := payloads[h.ID]
		if !ok {
			slog.Debug("search_hit_without_payload", slog.String("id", h.ID))
			continue
		}
		if !matchesAll(p, filters) {
			continue
		}
		results = append(results, &Result{
			ChunkID:      h.ID,
			RelativePath: p.RelativePath,
			StartLine:    p.StartLine,
			EndLine:      p.EndLine,
			Language:     p.Language,
			Score:        h.Score,
			Content:      p.Content,
			Symbol:       p.Symbol,
		})
		if len(results) == topK {
			break
		}
	}

	if err := s.attachContinuations(ctx, collection, results); err != nil {
		return nil, err
	}
	return results, nil
}

// attachContinuations follows CONTINUES edges from every result.
func (s *Searcher) attachContinuations(ctx context.Context, collection string, results []*Result) error {
	if len(results) == 0 {
		return nil
	}

	next := make(map[string]string)
	frontier := make([]string, len(results))
	for i, r := range results {
		frontier[i] = r.ChunkID
	}
	for range maxContinuations {
		if len(frontier) == 0 {
			break
		}
		edges, err := s.store.Edges(ctx, collection, frontier)
		if err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, e := range edges {
			if e.Kind != string(chunk.EdgeContinues) {
				continue
			}
			if _, seen := next[e.Source]; seen {
				continue
			}
			next[e.Source] = e.Target
			if _, known := next[e.Target]; !known {
				frontier = append(frontier, e.Target)
			}
		}
	}

	for _, r := range results {
		id := r.ChunkID
		for range maxContinuations {
			target, ok := next[id]
			if !ok {
				break
			}
			r.Continuations = append(r.Continuations, target)
			id = target
		}
	}
	return nil
}

// expand appends chunks within hops relationship edges of results, nearest
// first and by id within a hop, until limit results are held. Appended
// chunks pass the same filters and score 0. A store error keeps the ranked
// results unchanged.
func (s *Searcher) expand(ctx context.Context, collection string, results []*Result, filters []FilterFunc, hops, limit int) []*Result {
	if len(results) == 0 || len(results) >= limit {
		return results
	}

	seen := make(map[string]bool, len(results))
	frontier := make([]string, 0, len(results))
	for _, r := range results {
		seen[r.ChunkID] = true
		frontier = append(frontier, r.ChunkID)
	}

	var related []string
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		edges, err := s.store.Neighbors(ctx, collection, frontier)
		if err != nil {
			attrs := append([]slog.Attr{slog.String("collection", collection)}, errors.LogAttrs(err)...)
			slog.LogAttrs(ctx, slog.LevelWarn, "search_graph_expansion_failed", attrs...)
			return results
		}
		var next []string
		for _, e := range edges {
			for _, id := range []string{e.Source, e.Target} {
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
		}
		slices.Sort(next)
		related = append(related, next...)
		frontier = next
	}
	if len(related) == 0 {
		return results
	}

	payloads, err := s.store.Payloads(ctx, collection, related)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("collection", collection)}, errors.LogAttrs(err)...)
		slog.LogAttrs(ctx, slog.LevelWarn, "search_graph_expansion_failed", attrs...)
		return results
	}
	for _, id := range related {
		if len(results) >= limit {
			break
		}
		p, ok := payloads[id]
		if !ok || !matchesAll(p, filters) {
			continue
		}
		results = append(results, &Result{
			ChunkID:      id,
			RelativePath: p.RelativePath,
			StartLine:    p.StartLine,
			EndLine:      p.EndLine,
			Language:     p.Language,
			Content:      p.Content,
			Symbol:       p.Symbol,
			Related:      true,
		})
	}
	return results
}
