package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/codecontext/internal/async"
	"github.com/Aman-CERP/codecontext/internal/search"
)

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []*search.Result) string {
	valid := filterValidResults(results)
	if len(valid) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range valid {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// FormatIndexingInProgress explains that search has to wait for a first run.
func FormatIndexingInProgress(p *IndexingProgress) string {
	return fmt.Sprintf("## Indexing in Progress\n\n"+
		"**Progress:** %.1f%% (%d/%d)\n"+
		"**Stage:** %s\n\n"+
		"Search results are unavailable until the first run completes. Please try again in a moment.",
		p.ProgressPct, p.Current, p.Total, p.Stage)
}

func filterValidResults(results []*search.Result) []*search.Result {
	valid := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

func formatResult(sb *strings.Builder, num int, r *search.Result) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f)\n",
		num, r.RelativePath, r.StartLine, r.EndLine, r.Score)

	if r.Symbol != "" {
		fmt.Fprintf(sb, "**Symbol:** `%s`\n\n", r.Symbol)
	}

	lang := r.Language
	if lang == "" {
		lang = "text"
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, strings.TrimRight(r.Content, "\n"))

	if n := len(r.Continuations); n > 0 {
		fmt.Fprintf(sb, "_Continues in %d more chunk", n)
		if n != 1 {
			sb.WriteString("s")
		}
		sb.WriteString("._\n\n")
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return max(lo, min(limit, hi))
}

// ToSearchResultOutput converts a search result to the tool output format.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		FilePath:      r.RelativePath,
		StartLine:     r.StartLine,
		EndLine:       r.EndLine,
		Language:      r.Language,
		Score:         r.Score,
		Content:       r.Content,
		Symbol:        r.Symbol,
		MatchReason:   generateMatchReason(r),
		Continuations: r.Continuations,
		Related:       r.Related,
	}
}

// generateMatchReason creates a short explanation of a match.
func generateMatchReason(r *search.Result) string {
	var parts []string
	if r.Related {
		parts = append(parts, "related to a match")
	}
	if r.Symbol != "" {
		parts = append(parts, fmt.Sprintf("inside '%s'", r.Symbol))
	}
	if r.Language != "" {
		parts = append(parts, r.Language+" code")
	}
	if len(r.Continuations) > 0 {
		parts = append(parts, fmt.Sprintf("split unit with %d continuation(s)", len(r.Continuations)))
	}
	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

// toIndexingProgress converts a tracker snapshot for output.
func toIndexingProgress(snap async.IndexProgressSnapshot) *IndexingProgress {
	return &IndexingProgress{
		Status:         snap.Status,
		Stage:          snap.Stage,
		Current:        snap.Current,
		Total:          snap.Total,
		ProgressPct:    snap.ProgressPct,
		ElapsedSeconds: snap.ElapsedSeconds,
		Summary:        snap.Summary,
		ErrorMessage:   snap.ErrorMessage,
	}
}
