// Package search answers natural-language and keyword queries against an
// indexed project. Queries are embedded with the same orchestrator used at
// index time, run as a hybrid dense and lexical query, fused with
// Reciprocal Rank Fusion and mapped back to stored chunk metadata.
package search

const (
	// DefaultTopK is the number of results returned when TopK is zero.
	DefaultTopK = 5

	// MaxTopK bounds TopK.
	MaxTopK = 50

	// filterOverfetch multiplies TopK when filters are set, since the store
	// cannot filter before fusion.
	filterOverfetch = 5

	// payloadSlack is fetched beyond TopK so hits whose payload vanished
	// after fusion do not shorten the result.
	payloadSlack = 5

	// maxContinuations bounds how far a CONTINUES chain is followed.
	maxContinuations = 32

	// MaxGraphHops bounds Options.MaxGraphHops.
	MaxGraphHops = 5

	// DefaultGraphLimit caps the results of a graph-expanded search when
	// GraphLimit is zero.
	DefaultGraphLimit = 30
)

// Options configures a search.
type Options struct {
	// TopK is the maximum number of results (1 to 50, default 5).
	TopK int

	// Threshold drops results whose fused score is below it (0 to 1).
	Threshold float64

	// Extensions keeps only files with one of these extensions, with or
	// without the leading dot.
	Extensions []string

	// Language keeps only chunks of this language.
	Language string

	// Scopes keeps only files under one of these directory prefixes.
	Scopes []string

	// MaxGraphHops appends chunks within this many relationship edges of
	// the ranked results, in either direction. Zero disables expansion.
	MaxGraphHops int

	// GraphLimit caps ranked plus appended results (default 30).
	GraphLimit int
}

// Result is one ranked chunk.
type Result struct {
	ChunkID      string  `json:"chunk_id"`
	RelativePath string  `json:"relative_path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Language     string  `json:"language"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
	Symbol       string  `json:"symbol,omitempty"`

	// Related is set on chunks appended by graph expansion. Their score is 0.
	Related bool `json:"related,omitempty"`

	// Continuations lists, in order, the chunks that continue this one when
	// a unit too large for one chunk was split.
	Continuations []string `json:"continuations,omitempty"`
}
