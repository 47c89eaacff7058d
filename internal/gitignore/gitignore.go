// Package gitignore matches project-relative paths against git-style
// ignore patterns: globs, "**", negation, root anchors and dir-only rules.
//
// Rules are evaluated in insertion order and the last matching rule wins,
// so a later "!keep.log" re-includes what an earlier "*.log" excluded.
// Rules loaded from a nested .gitignore only apply under their base dir.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// decisionCacheSize bounds the per-matcher cache of match decisions.
const decisionCacheSize = 8192

type rule struct {
	source   string
	base     string
	negate   bool
	dirOnly  bool
	exact    *regexp.Regexp // the path itself
	ancestor *regexp.Regexp // some parent directory of the path
}

type decisionKey struct {
	path  string
	isDir bool
}

// Matcher is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
	cache *lru.Cache[decisionKey, bool]
}

// New returns a matcher with no rules.
func New() *Matcher {
	cache, _ := lru.New[decisionKey, bool](decisionCacheSize)
	return &Matcher{cache: cache}
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Add compiles a root-level pattern.
func (m *Matcher) Add(pattern string) {
	m.AddWithBase(pattern, "")
}

// AddAll compiles each pattern at root level.
func (m *Matcher) AddAll(patterns []string) {
	for _, p := range patterns {
		m.Add(p)
	}
}

// AddWithBase compiles a pattern scoped to the slash-separated directory base.
// Blank lines and comments are ignored.
func (m *Matcher) AddWithBase(pattern, base string) {
	r, ok := compile(pattern, strings.Trim(filepath.ToSlash(base), "/"))
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	m.cache.Purge()
}

// AddFile loads every pattern of a .gitignore file, scoped to base.
func (m *Matcher) AddFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file %s: %w", file, err)
	}
	return nil
}

// Match reports whether the project-relative path is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	key := decisionKey{rel, isDir}
	if v, ok := m.cache.Get(key); ok {
		return v
	}

	m.mu.RLock()
	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(rel, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	m.mu.RUnlock()

	m.cache.Add(key, ignored)
	return ignored
}

func (r *rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = rel[len(r.base)+1:]
	}
	if r.ancestor.MatchString(rel) {
		return true
	}
	if r.dirOnly && !isDir {
		return false
	}
	return r.exact.MatchString(rel)
}

func compile(line, base string) (rule, bool) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if escapedSpace {
		p = strings.TrimSuffix(p, `\`) + " "
	}
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}

	r := rule{source: line, base: base}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	// A slash anywhere but the end anchors the pattern to its base.
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return rule{}, false
	}

	body := translate(p)
	prefix := "^"
	if !anchored {
		prefix = "^(?:.*/)?"
	}
	r.exact = regexp.MustCompile(prefix + body + "$")
	r.ancestor = regexp.MustCompile(prefix + body + "/.+$")
	return r, true
}

// translate converts glob syntax to an RE2 fragment.
func translate(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				if i+2 < len(p) && p[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp.QuoteMeta(string(p[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// Base returns the slash-separated directory of a project-relative file,
// or "" for files at the root. Used to scope nested .gitignore files.
func Base(relFile string) string {
	dir := path.Dir(filepath.ToSlash(relFile))
	if dir == "." {
		return ""
	}
	return dir
}
