package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/codecontext/internal/search"
)

func TestFormatSearchResults_Basic(t *testing.T) {
	// Given: one result inside a symbol that continues in two chunks
	results := []*search.Result{
		{
			ChunkID:       "a1",
			RelativePath:  "internal/auth/handler.go",
			StartLine:     42,
			EndLine:       78,
			Language:      "go",
			Score:         0.95,
			Content:       "func AuthMiddleware() {}\n",
			Symbol:        "AuthMiddleware",
			Continuations: []string{"a2", "a3"},
		},
	}

	// When: formatting results
	markdown := FormatSearchResults("authentication", results)

	// Then: markdown contains expected elements
	assert.Contains(t, markdown, `## Search Results for "authentication"`)
	assert.Contains(t, markdown, "Found 1 result\n")
	assert.Contains(t, markdown, "### 1. internal/auth/handler.go:42-78 (score: 0.95)")
	assert.Contains(t, markdown, "**Symbol:** `AuthMiddleware`")
	assert.Contains(t, markdown, "```go\nfunc AuthMiddleware() {}\n```")
	assert.Contains(t, markdown, "_Continues in 2 more chunks._")
}

func TestFormatSearchResults_PluralAndNils(t *testing.T) {
	// Given: two results and a nil entry
	results := []*search.Result{
		{RelativePath: "a.go", StartLine: 1, EndLine: 2, Content: "a", Score: 0.5},
		nil,
		{RelativePath: "b.txt", StartLine: 3, EndLine: 4, Content: "b", Score: 0.4},
	}

	// When: formatting
	markdown := FormatSearchResults("q", results)

	// Then: nils are dropped and missing languages render as text
	assert.Contains(t, markdown, "Found 2 results")
	assert.Contains(t, markdown, "### 2. b.txt:3-4")
	assert.Contains(t, markdown, "```text\nb\n```")
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "nothing"`, FormatSearchResults("nothing", nil))
}

func TestFormatIndexingInProgress(t *testing.T) {
	text := FormatIndexingInProgress(&IndexingProgress{Stage: "embedding", Current: 5, Total: 10, ProgressPct: 65})

	assert.Contains(t, text, "## Indexing in Progress")
	assert.Contains(t, text, "65.0% (5/10)")
	assert.Contains(t, text, "**Stage:** embedding")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 5},
		{"negative uses default", -3, 5},
		{"within bounds", 12, 12},
		{"above max", 500, 50},
		{"at min", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.limit, 5, 1, 50))
		})
	}
}

func TestToSearchResultOutput(t *testing.T) {
	// Given: a result with a symbol
	r := &search.Result{
		RelativePath: "db/migrate.py",
		StartLine:    1,
		EndLine:      3,
		Language:     "python",
		Score:        0.8,
		Content:      "def run_migrations(): pass",
		Symbol:       "run_migrations",
	}

	// When: converting
	out := ToSearchResultOutput(r)

	// Then: fields are carried and a reason is generated
	assert.Equal(t, "db/migrate.py", out.FilePath)
	assert.Equal(t, 1, out.StartLine)
	assert.Equal(t, 3, out.EndLine)
	assert.InDelta(t, 0.8, out.Score, 1e-9)
	assert.Equal(t, "inside 'run_migrations'; python code", out.MatchReason)

	assert.Equal(t, SearchResultOutput{}, ToSearchResultOutput(nil))
	assert.Equal(t, "matched content", generateMatchReason(&search.Result{}))

	related := ToSearchResultOutput(&search.Result{Related: true, Language: "go"})
	assert.True(t, related.Related)
	assert.Equal(t, "related to a match; go code", related.MatchReason)
}
