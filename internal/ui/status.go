package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

// StatusInfo describes one project's index.
type StatusInfo struct {
	ProjectPath string    `json:"project_path"`
	Collection  string    `json:"collection"`
	Indexed     bool      `json:"indexed"`
	Indexing    bool      `json:"indexing"`
	Files       int       `json:"files"`
	Chunks      int       `json:"chunks"`
	Vectors     int       `json:"vectors"`
	Orphans     int       `json:"orphaned_vectors"`
	LastIndexed time.Time `json:"last_indexed,omitzero"`

	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`

	// DiskUsage is the size of the collection directory in bytes.
	DiskUsage int64 `json:"disk_usage"`
}

// StatusFromEngine builds StatusInfo from an engine status.
func StatusFromEngine(st *codecontext.Status, provider string) StatusInfo {
	return StatusInfo{
		ProjectPath: st.ProjectPath,
		Collection:  st.Collection,
		Indexed:     st.Indexed,
		Indexing:    st.Indexing,
		Files:       st.Files,
		Chunks:      st.Chunks,
		Vectors:     st.Vectors,
		Orphans:     st.Orphans,
		LastIndexed: st.LastIndexed,
		Provider:    provider,
		Model:       st.Model,
		Dimensions:  st.Dimensions,
	}
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes status as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.ProjectPath))

	state := "not indexed"
	switch {
	case info.Indexing:
		state = "indexing"
	case info.Indexed:
		state = "ready"
	}
	_, _ = fmt.Fprintf(r.out, "  State:        %s\n", r.renderState(state))
	if !info.Indexed {
		_, _ = fmt.Fprintf(r.out, "\n  Run 'codecontext index %s' to build the index.\n", info.ProjectPath)
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "  Collection:   %s\n", info.Collection)
	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.Files)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.Chunks)
	if info.Orphans > 0 {
		_, _ = fmt.Fprintf(r.out, "  Vectors:      %d (%d awaiting compaction)\n", info.Vectors, info.Orphans)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Vectors:      %d\n", info.Vectors)
	}
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	if info.DiskUsage > 0 {
		_, _ = fmt.Fprintf(r.out, "  Disk usage:   %s\n", FormatBytes(info.DiskUsage))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider:   %s\n", info.Provider)
	_, _ = fmt.Fprintf(r.out, "    Model:      %s\n", info.Model)
	_, _ = fmt.Fprintf(r.out, "    Dimensions: %d\n", info.Dimensions)
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready":
		return r.styles.Success.Render(state)
	case "indexing":
		return r.styles.Warning.Render(state)
	default:
		return r.styles.Error.Render(state)
	}
}

// formatTime renders recent times relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
