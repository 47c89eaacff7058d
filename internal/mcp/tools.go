package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"natural-language or keyword query"`
	Path       string   `json:"path,omitempty" jsonschema:"project directory, absolute or relative to the server root; defaults to the server root"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 50"`
	Threshold  float64  `json:"threshold,omitempty" jsonschema:"minimum relevance score between 0 and 1"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"keep only files with these extensions, e.g. .go or ts"`
	Language   string   `json:"language,omitempty" jsonschema:"keep only chunks of this language, e.g. go, python"`
	Scope      []string `json:"scope,omitempty" jsonschema:"keep only files under these directory prefixes (OR logic)"`
	GraphHops  int      `json:"graph_hops,omitempty" jsonschema:"also return chunks up to this many call, use or parent edges away from the matches, 0 to 5"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked matches, best first"`

	// Indexing is set while a background run for the project is in flight.
	Indexing *IndexingProgress `json:"indexing,omitempty" jsonschema:"progress of a background run, if any"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	FilePath      string   `json:"file_path" jsonschema:"file path relative to the project root"`
	StartLine     int      `json:"start_line" jsonschema:"first line of the chunk, 1-based"`
	EndLine       int      `json:"end_line" jsonschema:"last line of the chunk, inclusive"`
	Language      string   `json:"language,omitempty" jsonschema:"language of the file"`
	Score         float64  `json:"score" jsonschema:"fused relevance score between 0 and 1"`
	Content       string   `json:"content" jsonschema:"chunk text"`
	Symbol        string   `json:"symbol,omitempty" jsonschema:"enclosing symbol name, if known"`
	MatchReason   string   `json:"match_reason,omitempty" jsonschema:"short explanation of the match"`
	Continuations []string `json:"continuations,omitempty" jsonschema:"ids of chunks continuing this one, in order"`
	Related       bool     `json:"related,omitempty" jsonschema:"true for chunks added by graph expansion rather than ranking"`
}

// IndexInput defines the input schema for the index tool.
type IndexInput struct {
	Path   string   `json:"path,omitempty" jsonschema:"project directory, absolute or relative to the server root; defaults to the server root"`
	Force  bool     `json:"force,omitempty" jsonschema:"re-chunk and re-embed every file"`
	Ignore []string `json:"ignore,omitempty" jsonschema:"extra git-style ignore patterns for this run"`
	Wait   bool     `json:"wait,omitempty" jsonschema:"block until the run completes instead of returning at once"`
}

// IndexOutput defines the output schema for the index tool.
type IndexOutput struct {
	ProjectPath string            `json:"project_path"`
	Started     bool              `json:"started" jsonschema:"true if a background run was started"`
	Message     string            `json:"message"`
	Progress    *IndexingProgress `json:"progress,omitempty"`
}

// StatusInput defines the input schema for the index_status tool.
type StatusInput struct {
	Path string `json:"path,omitempty" jsonschema:"project directory, absolute or relative to the server root; defaults to the server root"`
}

// StatusOutput defines the output schema for the index_status tool.
type StatusOutput struct {
	Project    ProjectInfo       `json:"project"`
	Stats      IndexStats        `json:"stats"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"`
}

// ClearInput defines the input schema for the clear_index tool.
type ClearInput struct {
	Path string `json:"path,omitempty" jsonschema:"project directory, absolute or relative to the server root; defaults to the server root"`
}

// ClearOutput defines the output schema for the clear_index tool.
type ClearOutput struct {
	ProjectPath string `json:"project_path"`
	Cleared     bool   `json:"cleared"`
}

// IndexingProgress reports a background run.
type IndexingProgress struct {
	Status         string  `json:"status"`          // "indexing", "ready" or "error"
	Stage          string  `json:"stage,omitempty"` // "scanning", "chunking", "embedding", "storing", "complete"
	Current        int     `json:"current"`
	Total          int     `json:"total"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Summary        string  `json:"summary,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ProjectInfo identifies the project.
type ProjectInfo struct {
	Name       string `json:"name"`
	RootPath   string `json:"root_path"`
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
}

// IndexStats describes the stored index.
type IndexStats struct {
	Indexed     bool   `json:"indexed"`
	FileCount   int    `json:"file_count"`
	ChunkCount  int    `json:"chunk_count"`
	VectorCount int    `json:"vector_count"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// EmbeddingInfo describes the configured and active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}
