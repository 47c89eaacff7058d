// Package store persists chunk vectors, lexical postings and payloads per
// collection and answers hybrid queries over them.
package store

import (
	"context"
	"time"
)

// Point is a chunk ready for storage: its id, dense vector and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload is the metadata stored beside each vector.
type Payload struct {
	RelativePath string    `json:"relative_path"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Language     string    `json:"language"`
	Content      string    `json:"content"`
	ParentID     string    `json:"parent_id,omitempty"`
	Seq          int       `json:"seq"`
	Kind         string    `json:"kind,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Edge links two chunks of a collection.
type Edge struct {
	Source string
	Target string
	Kind   string
}

// SymbolDef is a stored chunk that defines a named symbol.
type SymbolDef struct {
	ID           string
	Name         string
	Language     string
	RelativePath string
	ParentID     string
	Seq          int
}

// Query is a hybrid dense + lexical query.
type Query struct {
	// Vector is the embedded query. Nil skips the dense leg.
	Vector []float32

	// Text is the raw query. Blank skips the lexical leg.
	Text string

	// TopK bounds the fused result.
	TopK int

	// Threshold drops fused hits scoring below it.
	Threshold float64

	// Candidates is the depth of each leg before fusion (default max(TopK*4, 20)).
	Candidates int
}

// Hit is one fused result. Ranks are 1-based; 0 means the leg did not return the chunk.
type Hit struct {
	ID          string
	Score       float64
	DenseRank   int
	LexicalRank int
}

// Adapter is the vector store contract used by the pipelines.
type Adapter interface {
	// Upsert inserts or replaces points.
	Upsert(ctx context.Context, collection string, points []*Point) error

	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Query runs a hybrid query. Missing collections yield a not-indexed error.
	Query(ctx context.Context, collection string, q *Query) ([]*Hit, error)

	// DropCollection removes a collection and its files.
	DropCollection(ctx context.Context, collection string) error

	// HasCollection reports whether a collection exists on disk.
	HasCollection(collection string) bool

	// Payloads returns the payloads of the given ids that exist.
	Payloads(ctx context.Context, collection string, ids []string) (map[string]*Payload, error)

	// SetEdges replaces outgoing edges of the given sources.
	SetEdges(ctx context.Context, collection string, edges []Edge) error

	// Edges returns edges whose source is one of ids.
	Edges(ctx context.Context, collection string, ids []string) ([]Edge, error)

	// Neighbors returns edges with either end in ids.
	Neighbors(ctx context.Context, collection string, ids []string) ([]Edge, error)

	// Symbols returns the stored chunks defining any of names.
	Symbols(ctx context.Context, collection string, names []string) ([]SymbolDef, error)

	// Flush persists in-memory state of a collection.
	Flush(ctx context.Context, collection string) error

	// Stats returns counts for a collection.
	Stats(ctx context.Context, collection string) (*CollectionStats, error)

	// Close flushes and closes every open collection.
	Close() error
}

// CollectionStats summarizes a collection.
type CollectionStats struct {
	Name       string
	Chunks     int
	Vectors    int
	Orphans    int // dead graph nodes awaiting compaction
	Documents  int
	Dimensions int
	Files      int
}

// VectorResult is a single dense search result.
type VectorResult struct {
	ID       string
	Distance float32 // lower is closer; 0-2 for cosine
	Score    float32 // 1 - distance/2 for cosine
}

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	// Dimensions is the vector width. 0 learns it from the first Add.
	Dimensions int

	// Metric is "cos" or "l2" (default "cos").
	Metric string

	// M is the maximum number of neighbors per node (default 16).
	M int

	// EfSearch is the query-time candidate width (default 64).
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults for a graph of the given width.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore is approximate nearest neighbor search over chunk vectors.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Document is a chunk's text as seen by the lexical index.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single lexical search result. Higher Score is better.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// BM25Index is term-frequency search over chunk text.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	Count() (int, error)
	Flush() error
	Close() error
}

// BM25Config configures tokenization for the lexical index.
type BM25Config struct {
	// StopWords are dropped at index and query time.
	StopWords []string
}

// DefaultBM25Config returns the default lexical configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{StopWords: DefaultCodeStopWords}
}

// DefaultCodeStopWords are keywords too common in code to rank on.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while", "the", "and",
	"err", "ctx", "tmp", "self", "this",
}
