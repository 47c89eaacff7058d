package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// HNSWStore implements VectorStore on the pure Go coder/hnsw graph.
//
// Deletes are lazy: the id mapping is dropped and the node stays in the graph
// until Compact rebuilds it, because removing the last node of a layer
// corrupts coder/hnsw. Searches over-fetch by the orphan count so orphans
// never crowd out live results.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMetadata is the gob header of a saved store, followed by the
// exported graph when Nodes is non-zero.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
	Nodes   int
}

// NewHNSWStore creates an empty store.
func NewHNSWStore(cfg VectorStoreConfig) *HNSWStore {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		g.Distance = hnsw.EuclideanDistance
	default:
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts vectors, replacing existing ids.
func (s *HNSWStore) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return errors.StoreError(fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.StoreError("vector store is closed", nil)
	}

	if s.config.Dimensions == 0 {
		s.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if old, ok := s.idMap[id]; ok {
			delete(s.keyMap, old)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search returns up to k live neighbors of query, closest first.
func (s *HNSWStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.StoreError("vector store is closed", nil)
	}
	if k <= 0 || s.graph.Len() == 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, dimensionMismatch(s.config.Dimensions, len(query))
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	fetch := min(k+s.graph.Len()-len(s.idMap), s.graph.Len())
	nodes := s.graph.Search(q, fetch)

	results := make([]*VectorResult, 0, min(k, len(nodes)))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete drops ids. Unknown ids are ignored.
func (s *HNSWStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.StoreError("vector store is closed", nil)
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether id is live.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok && !s.closed
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the vector width, 0 before the first Add.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Orphans returns the number of lazily deleted nodes still in the graph.
func (s *HNSWStore) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.idMap)
}

// NeedsCompaction reports whether orphans exceed a quarter of the live nodes.
func (s *HNSWStore) NeedsCompaction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	orphans := s.graph.Len() - len(s.idMap)
	return orphans > 0 && orphans*4 > len(s.idMap)
}

// Compact rebuilds the graph from its live nodes, renumbering keys, and
// returns the number of orphans dropped.
func (s *HNSWStore) Compact() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.StoreError("vector store is closed", nil)
	}
	orphans := s.graph.Len() - len(s.idMap)
	if orphans == 0 {
		return 0, nil
	}

	keys := make([]uint64, 0, len(s.keyMap))
	for key := range s.keyMap {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	graph := newGraph(s.config)
	idMap := make(map[string]uint64, len(keys))
	keyMap := make(map[uint64]string, len(keys))
	nodes := make([]hnsw.Node[uint64], 0, len(keys))
	for _, old := range keys {
		vec, ok := s.graph.Lookup(old)
		if !ok {
			continue
		}
		key := uint64(len(nodes))
		nodes = append(nodes, hnsw.MakeNode(key, vec))
		id := s.keyMap[old]
		idMap[id] = key
		keyMap[key] = id
	}
	if len(nodes) > 0 {
		graph.Add(nodes...)
	}

	s.graph = graph
	s.idMap = idMap
	s.keyMap = keyMap
	s.nextKey = uint64(len(nodes))
	return orphans, nil
}

// Save writes the id mappings and the graph to a single file through a
// temp file and rename, so a crash never leaves them out of step.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.StoreError("vector store is closed", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.StoreError("failed to create vector directory", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.StoreError("failed to create vector file", err)
	}
	fail := func(msg string, err error) error {
		_ = file.Close()
		_ = os.Remove(tmp)
		return errors.StoreError(msg, err)
	}

	w := bufio.NewWriter(file)
	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config, Nodes: s.graph.Len()}
	if err := gob.NewEncoder(w).Encode(meta); err != nil {
		return fail("failed to encode vector metadata", err)
	}
	if meta.Nodes > 0 {
		if err := s.graph.Export(w); err != nil {
			return fail("failed to export graph", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("failed to write vector file", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.StoreError("failed to close vector file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.StoreError("failed to rename vector file", err)
	}
	return nil
}

// Load replaces the store's content with the file written by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.StoreError("vector store is closed", nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.New(errors.ErrCodeVectorStoreOpen, "failed to open vector file", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("vector_file_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	// gob reads exactly its own messages from an io.ByteReader, leaving the
	// graph for Import.
	r := bufio.NewReader(file)
	var meta hnswMetadata
	if err := gob.NewDecoder(r).Decode(&meta); err != nil {
		return errors.New(errors.ErrCodeVectorStoreOpen, "failed to decode vector metadata", err)
	}

	graph := newGraph(meta.Config)
	if meta.Nodes > 0 {
		if err := graph.Import(r); err != nil {
			return errors.New(errors.ErrCodeVectorStoreOpen, "failed to import graph", err)
		}
	}

	s.graph = graph
	s.config = meta.Config
	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. It is idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.graph = nil
	}
	return nil
}

func dimensionMismatch(expected, got int) error {
	return errors.New(errors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("the embedding model changed; run 'codecontext clear' then index again")
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance [0,2] to [1,0] and L2 distance to 1/(1+d).
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
