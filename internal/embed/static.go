package embed

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// StaticEmbedder builds vectors by hashing code-aware tokens and character
// trigrams into a fixed number of buckets. It needs no network or model,
// is deterministic, and is what tests and offline runs use.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// keywords are too common in code to carry meaning.
var keywords = map[string]struct{}{
	"func": {}, "function": {}, "def": {}, "class": {}, "fn": {},
	"return": {}, "import": {}, "from": {}, "const": {}, "var": {},
	"let": {}, "int": {}, "string": {}, "bool": {}, "void": {},
	"true": {}, "false": {}, "nil": {}, "null": {}, "none": {},
	"this": {}, "self": {}, "new": {}, "pub": {}, "public": {},
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// NewStaticEmbedder creates a static embedder. dims <= 0 uses StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.InternalError("embedder is closed", nil)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

// vector hashes tokens and trigrams of text into a unit-length vector.
// Blank text yields the zero vector.
func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	text = strings.TrimSpace(text)
	if text == "" {
		return v
	}

	for _, tok := range tokenize(text) {
		if _, skip := keywords[tok]; skip {
			continue
		}
		v[bucket(tok, e.dims)] += tokenWeight
	}
	for _, g := range trigrams(text) {
		v[bucket(g, e.dims)] += ngramWeight
	}
	return normalizeVector(v)
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available implements Embedder.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder. It is idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// tokenize lowercases the words of text after splitting identifiers on
// underscores and case changes.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, sub := range splitCamel(part) {
				tokens = append(tokens, strings.ToLower(sub))
			}
		}
	}
	return tokens
}

// splitCamel splits "parseHTTPRequest" into "parse", "HTTP", "Request".
func splitCamel(s string) []string {
	if s == "" {
		return nil
	}

	runes := []rune(s)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

// trigrams returns the character trigrams of text's letters and digits.
func trigrams(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) < ngramSize {
		return nil
	}

	grams := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i+ngramSize <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+ngramSize]))
	}
	return grams
}

func bucket(s string, size int) int {
	return int(xxhash.Sum64String(s) % uint64(size))
}
