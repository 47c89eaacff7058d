// Package output writes the short status lines and result listings of the
// codecontext CLI. Progress during indexing is rendered by package ui.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Marks prefixed to status lines.
const (
	MarkInfo    = "•"
	MarkSuccess = "✓"
	MarkWarning = "!"
	MarkError   = "✗"
)

// Writer prints CLI messages. Write errors are ignored: there is nowhere
// better to report them.
type Writer struct {
	out     io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	plain := lipgloss.NewStyle()
	return &Writer{out: out, success: plain, warning: plain, failure: plain, dim: plain}
}

// NewStyled creates a Writer that colors its marks.
func NewStyled(out io.Writer) *Writer {
	return &Writer{
		out:     out,
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("154")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Status prints msg after mark. An empty mark indents the line instead.
func (w *Writer) Status(mark, msg string) {
	if mark == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", mark, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(mark, format string, args ...any) {
	w.Status(mark, fmt.Sprintf(format, args...))
}

// Success prints msg with a check mark.
func (w *Writer) Success(msg string) {
	w.Status(w.success.Render(MarkSuccess), msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints msg with a warning mark.
func (w *Writer) Warning(msg string) {
	w.Status(w.warning.Render(MarkWarning), msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints msg with a failure mark.
func (w *Writer) Error(msg string) {
	w.Status(w.failure.Render(MarkError), msg)
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Dim prints a de-emphasized line.
func (w *Writer) Dim(msg string) {
	_, _ = fmt.Fprintln(w.out, w.dim.Render(msg))
}

// Code prints content indented by four spaces, framed by blank lines.
// At most maxLines lines are shown when maxLines is positive.
func (w *Writer) Code(content string, maxLines int) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	hidden := 0
	if maxLines > 0 && len(lines) > maxLines {
		hidden = len(lines) - maxLines
		lines = lines[:maxLines]
	}

	_, _ = fmt.Fprintln(w.out)
	for _, line := range lines {
		_, _ = fmt.Fprintf(w.out, "    %s\n", line)
	}
	if hidden > 0 {
		_, _ = fmt.Fprintln(w.out, w.dim.Render(fmt.Sprintf("    ... %d more line(s)", hidden)))
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
