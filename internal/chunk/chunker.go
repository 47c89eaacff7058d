package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Chunker splits files into chunks. It is safe for concurrent use.
type Chunker struct {
	registry *LanguageRegistry
	opts     Options
	parsers  sync.Pool
}

// New creates a Chunker. Zero options take the defaults and a negative
// overlap disables overlap. An overlap not smaller than the maximum is
// reduced to a quarter of it.
func New(opts Options) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	switch {
	case opts.Overlap == 0:
		opts.Overlap = DefaultOverlap
	case opts.Overlap < 0:
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.MaxChunkSize {
		opts.Overlap = opts.MaxChunkSize / 4
	}
	registry := DefaultRegistry()
	c := &Chunker{registry: registry, opts: opts}
	c.parsers.New = func() any { return NewParserWithRegistry(registry) }
	return c
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// SupportedExtensions returns the extensions with a grammar.
func (c *Chunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Split chunks one file. The same input always yields the same chunks,
// ids and edges. Files that hold only whitespace, or only comments for
// languages with a grammar, yield no chunks.
func (c *Chunker) Split(ctx context.Context, filePath string, content []byte, language string) ([]*Chunk, []Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s := &splitter{
		path:     filepath.ToSlash(filePath),
		fileHash: fmt.Sprintf("%016x", xxhash.Sum64(content)),
		max:      c.opts.MaxChunkSize,
		overlap:  c.opts.Overlap,
	}
	s.setLines(string(content))

	cfg, hasGrammar := c.registry.ForFile(filePath, language)
	if language == "" {
		language = guessLanguage(filePath, cfg, hasGrammar)
	}

	if hasGrammar {
		p := c.parsers.Get().(*Parser)
		tree, err := p.Parse(ctx, content, cfg.Name)
		c.parsers.Put(p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			slog.Debug("chunk_parse_fallback", slog.String("path", s.path), slog.String("error", err.Error()))
		} else {
			s.cfg = cfg
			s.source = content
			s.splitTree(tree)
			s.collectRefs(tree.Root)
			chunks, edges := s.finish(language)
			return chunks, edges, nil
		}
	}

	s.splitWindows()
	chunks, edges := s.finish(language)
	return chunks, edges, nil
}

func guessLanguage(path string, cfg *LanguageConfig, ok bool) string {
	if ok {
		return cfg.Name
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		return ext
	}
	return UnknownLanguage
}

// ChunkID derives a chunk id from its file, the file's content hash and
// its sequence index.
func ChunkID(filePath, contentHash string, seq int) string {
	h := xxhash.New()
	_, _ = h.WriteString(filePath)
	_, _ = h.WriteString("\x1f")
	_, _ = h.WriteString(contentHash)
	_, _ = h.WriteString(fmt.Sprintf("\x1f%d", seq))
	return fmt.Sprintf("%016x", h.Sum64())
}

// segment is a contiguous line range anchored on a syntax node.
type segment struct {
	start, end int
	node       *Node
}

type draft struct {
	start, end int
	content    string
	node       *Node
	parent     string
}

type edgeDraft struct {
	src, dst int
	kind     EdgeKind
}

type splitter struct {
	path     string
	fileHash string
	max      int
	overlap  int

	lines  []string
	prefix []int // prefix[i] = runes in lines[0:i]

	cfg    *LanguageConfig
	source []byte

	drafts []draft
	edges  []edgeDraft
	refs   []refSite
}

func (s *splitter) setLines(text string) {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return
	}
	s.lines = strings.Split(text, "\n")
	s.prefix = make([]int, len(s.lines)+1)
	for i, l := range s.lines {
		s.prefix[i+1] = s.prefix[i] + utf8.RuneCountInString(l)
	}
}

// size is the character length of lines a..b joined with newlines.
func (s *splitter) size(a, b int) int {
	return s.prefix[b] - s.prefix[a-1] + (b - a)
}

func (s *splitter) text(a, b int) string {
	return strings.Join(s.lines[a-1:b], "\n")
}

func (s *splitter) blank(line int) bool {
	return strings.TrimSpace(s.lines[line-1]) == ""
}

func (s *splitter) splitTree(tree *Tree) {
	if len(s.lines) == 0 {
		return
	}
	var units []*Node
	for _, n := range tree.Root.NamedChildren() {
		if !n.IsComment() {
			units = append(units, n)
		}
	}
	if len(units) == 0 {
		return
	}
	s.pack(s.segments(units, 1, len(s.lines)))
}

// segments turns boundary nodes into line ranges covering a..b. Lines
// between boundaries (comments, blank lines, stray tokens) belong to the
// following boundary; lines after the last boundary belong to it.
func (s *splitter) segments(nodes []*Node, a, b int) []segment {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].StartByte < nodes[j].StartByte })

	var segs []segment
	prevEnd := a - 1
	for _, n := range nodes {
		first, last := n.firstLine(), n.lastLine()
		if last > b {
			last = b
		}
		if len(segs) > 0 && first <= prevEnd {
			if last > segs[len(segs)-1].end {
				segs[len(segs)-1].end = last
				prevEnd = last
			}
			continue
		}
		start := prevEnd + 1
		for start < first && s.blank(start) {
			start++
		}
		segs = append(segs, segment{start: start, end: last, node: n})
		prevEnd = last
	}
	if len(segs) > 0 {
		tail := b
		for tail > prevEnd && s.blank(tail) {
			tail--
		}
		if tail > segs[len(segs)-1].end {
			segs[len(segs)-1].end = tail
		}
	}
	return segs
}

// pack emits runs of segments that fit within the maximum together and
// returns the index of the first draft of each emitted group.
func (s *splitter) pack(segs []segment) []int {
	var heads []int
	for i := 0; i < len(segs); {
		seg := segs[i]
		if s.size(seg.start, seg.end) > s.max {
			heads = append(heads, len(s.drafts))
			s.oversized(seg)
			i++
			continue
		}
		j := i
		for j+1 < len(segs) && s.size(seg.start, segs[j+1].end) <= s.max {
			j++
		}
		heads = append(heads, len(s.drafts))
		s.emit(seg.start, segs[j].end, s.text(seg.start, segs[j].end), seg.node, "")
		i = j + 1
	}
	return heads
}

// oversized splits a segment that alone exceeds the maximum: at its nested
// definitions when it has any, otherwise into overlapping line windows.
func (s *splitter) oversized(seg segment) {
	if nested := s.nested(seg.node); len(nested) > 0 {
		sub := s.segments(nested, seg.start, seg.end)
		if len(sub) == 1 {
			s.oversized(segment{start: seg.start, end: seg.end, node: sub[0].node})
			return
		}
		if len(sub) > 1 {
			heads := s.pack(sub)
			for _, h := range heads[1:] {
				s.edges = append(s.edges, edgeDraft{src: heads[0], dst: h, kind: EdgeParentOf})
			}
			return
		}
	}
	parent := UnitID(s.path, s.fileHash, seg.start, seg.end)
	s.window(seg.start, seg.end, seg.node, parent, true)
}

// nested returns the outermost definitions strictly inside n.
func (s *splitter) nested(n *Node) []*Node {
	if n == nil || s.cfg == nil {
		return nil
	}
	defs := make(map[string]bool, len(s.cfg.Definitions))
	for _, d := range s.cfg.Definitions {
		defs[d] = true
	}
	var out []*Node
	for _, c := range n.Children {
		c.Walk(func(x *Node) bool {
			if defs[x.Type] {
				out = append(out, x)
				return false
			}
			return true
		})
	}
	return out
}

// window splits lines a..b into pieces of at most max characters. Each
// piece after the first starts with the trailing lines of the previous
// piece that fit within the overlap, or with its last line when no whole
// line fits. When even that line cannot share a piece with the next one,
// the next piece starts with a rune tail of it and its StartLine is that
// line: the only case where Content is not exactly its line range.
// Linked pieces share parent and are chained with continuation edges.
func (s *splitter) window(a, b int, node *Node, parent string, linked bool) {
	prev := -1
	link := func(idx int) {
		if linked && prev >= 0 {
			s.edges = append(s.edges, edgeDraft{src: prev, dst: idx, kind: EdgeContinues})
		}
		prev = idx
	}

	var carry []rune
	for start := a; start <= b; {
		if s.size(start, start) > s.max {
			for _, piece := range splitRunes(s.lines[start-1], s.max, s.overlap) {
				link(s.emit(start, start, piece, node, parent))
			}
			carry = nil
			start++
			continue
		}

		extra := 0
		if len(carry) > 0 {
			if room := s.max - s.size(start, start) - 1; room < len(carry) {
				carry = carry[len(carry)-max(room, 0):]
			}
			if len(carry) > 0 {
				extra = len(carry) + 1
			}
		}

		end := start
		for end < b && extra+s.size(start, end+1) <= s.max {
			end++
		}
		if extra > 0 {
			link(s.emit(start-1, end, string(carry)+"\n"+s.text(start, end), node, parent))
		} else {
			link(s.emit(start, end, s.text(start, end), node, parent))
		}
		carry = nil
		if end == b {
			break
		}

		next := end + 1
		for k := end; k > start && s.size(k, end) <= s.overlap; k-- {
			next = k
		}
		if next <= end && s.size(next, end+1) > s.max {
			next = end + 1
		}
		if next == end+1 && s.overlap > 0 {
			if end > start && s.size(end, end+1) <= s.max {
				next = end
			} else {
				carry = tailRunes(s.lines[end-1], s.overlap)
			}
		}
		start = next
	}
}

// tailRunes returns the last n runes of line, or nil when they are blank.
func tailRunes(line string, n int) []rune {
	runes := []rune(line)
	if len(runes) > n {
		runes = runes[len(runes)-n:]
	}
	if strings.TrimSpace(string(runes)) == "" {
		return nil
	}
	return runes
}

// splitWindows is the grammar-less fallback over the whole file.
func (s *splitter) splitWindows() {
	a, b := 1, len(s.lines)
	for a <= b && s.blank(a) {
		a++
	}
	for b >= a && s.blank(b) {
		b--
	}
	if a > b {
		return
	}
	s.window(a, b, nil, "", false)
}

func (s *splitter) emit(start, end int, content string, node *Node, parent string) int {
	s.drafts = append(s.drafts, draft{start: start, end: end, content: content, node: node, parent: parent})
	return len(s.drafts) - 1
}

func (s *splitter) finish(language string) ([]*Chunk, []Edge) {
	if len(s.drafts) == 0 {
		return nil, nil
	}
	chunks := make([]*Chunk, len(s.drafts))
	for i, d := range s.drafts {
		c := &Chunk{
			ID:            ChunkID(s.path, s.fileHash, i),
			FilePath:      s.path,
			StartLine:     d.start,
			EndLine:       d.end,
			Language:      language,
			Content:       d.content,
			SequenceIndex: i,
			ParentID:      d.parent,
		}
		if d.node != nil {
			c.Kind = d.node.Type
			c.Symbol = symbolName(d.node, s.source, s.cfg)
			c.Refs = s.refsIn(d.start, d.end)
		} else {
			c.Kind = "window"
		}
		chunks[i] = c
	}
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, Edge{Source: chunks[e.src].ID, Target: chunks[e.dst].ID, Kind: e.kind})
	}
	return chunks, edges
}

// UnitID identifies an oversized unit by file, content hash and line range.
func UnitID(filePath, contentHash string, start, end int) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s\x1f%s\x1funit:%d-%d", filePath, contentHash, start, end)))
}

// splitRunes cuts a single long line into rune windows of at most max,
// each repeating the last overlap runes of the previous one.
func splitRunes(line string, max, overlap int) []string {
	runes := []rune(line)
	step := max - overlap
	if step <= 0 {
		step = max
	}
	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
