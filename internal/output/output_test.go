package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Marks(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"status", func(w *Writer) { w.Status(MarkInfo, "scanning") }, "• scanning\n"},
		{"indented", func(w *Writer) { w.Status("", "detail") }, "  detail\n"},
		{"statusf", func(w *Writer) { w.Statusf(MarkInfo, "%d files", 3) }, "• 3 files\n"},
		{"success", func(w *Writer) { w.Success("done") }, "✓ done\n"},
		{"successf", func(w *Writer) { w.Successf("cleared %s", "/repo") }, "✓ cleared /repo\n"},
		{"warning", func(w *Writer) { w.Warningf("%d skipped", 2) }, "! 2 skipped\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %s", "boom") }, "✗ failed: boom\n"},
		{"dim", func(w *Writer) { w.Dim("hint") }, "hint\n"},
		{"newline", func(w *Writer) { w.Newline() }, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Code_Indents(t *testing.T) {
	// Given: a writer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a two-line block with a trailing newline
	w.Code("func a() {}\nfunc b() {}\n", 0)

	// Then: every line is indented and the block is framed
	assert.Equal(t, "\n    func a() {}\n    func b() {}\n\n", buf.String())
}

func TestWriter_Code_Truncates(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Code("1\n2\n3\n4\n5", 2)

	assert.Equal(t, "\n    1\n    2\n    ... 3 more line(s)\n\n", buf.String())
}

func TestNewStyled_KeepsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewStyled(buf)

	w.Success("indexed")
	w.Error("failed")

	assert.Contains(t, buf.String(), MarkSuccess)
	assert.Contains(t, buf.String(), "indexed")
	assert.Contains(t, buf.String(), "failed")
}
