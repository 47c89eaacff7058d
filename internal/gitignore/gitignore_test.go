package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"exact filename", "foo.txt", "foo.txt", false, true},
		{"filename in subdir", "foo.txt", "a/b/foo.txt", false, true},
		{"other filename", "foo.txt", "bar.txt", false, false},
		{"extension glob", "*.log", "logs/error.log", false, true},
		{"extension glob miss", "*.log", "error.txt", false, false},
		{"star stays in segment", "src/*.go", "src/a/b.go", false, false},
		{"question mark", "file?.txt", "file1.txt", false, true},
		{"question mark single char", "file?.txt", "file12.txt", false, false},
		{"char class", "file[0-9].txt", "file7.txt", false, true},
		{"negated char class", "file[!0-9].txt", "file7.txt", false, false},
		{"leading double star", "**/generated", "a/b/generated", true, true},
		{"trailing double star", "build/**", "build/x/y.o", false, true},
		{"middle double star", "a/**/z.go", "a/z.go", false, true},
		{"middle double star deep", "a/**/z.go", "a/b/c/z.go", false, true},
		{"rooted", "/build", "build", true, true},
		{"rooted not nested", "/build", "src/build", true, false},
		{"inner slash anchors", "doc/frotz", "a/doc/frotz", false, false},
		{"inner slash matches root", "doc/frotz", "doc/frotz", false, true},
		{"dir only matches dir", "temp/", "temp", true, true},
		{"dir only skips file", "temp/", "temp", false, false},
		{"dir only covers contents", "temp/", "x/temp/file.go", false, true},
		{"plain name covers contents", "node_modules", "node_modules/pkg/index.js", false, true},
		{"escaped hash", `\#notes`, "#notes", false, true},
		{"escaped bang", `\!important`, "!important", false, true},
		{"dots are literal", "*.min.js", "appXminXjs", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Add(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_Negation_LastRuleWins(t *testing.T) {
	// Given: an exclusion followed by a re-inclusion
	m := New()
	m.AddAll([]string{"*.log", "!important.log"})

	// Then: only the re-included file survives
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))
	assert.False(t, m.Match("logs/important.log", false))

	// When: excluded again by a later rule
	m.Add("logs/important.log")

	// Then: the cached decision is dropped and the later rule applies
	assert.True(t, m.Match("logs/important.log", false))
}

func TestMatcher_SkipsBlankAndComments(t *testing.T) {
	m := New()
	m.AddAll([]string{"", "   ", "# comment", "/"})
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Match("", true))
}

func TestMatcher_EscapedTrailingSpace(t *testing.T) {
	m := New()
	m.Add(`name\ `)
	assert.True(t, m.Match("name ", false))
	assert.False(t, m.Match("name", false))
}

func TestMatcher_AddWithBase_ScopesRules(t *testing.T) {
	// Given: a nested .gitignore in src/
	m := New()
	m.AddWithBase("*.gen.go", "src")
	m.AddWithBase("/local", "src")

	// Then: rules only apply under src
	assert.True(t, m.Match("src/a.gen.go", false))
	assert.True(t, m.Match("src/pkg/b.gen.go", false))
	assert.False(t, m.Match("a.gen.go", false))
	assert.True(t, m.Match("src/local", true))
	assert.False(t, m.Match("src/pkg/local", true))
}

func TestMatcher_AddFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(file, []byte("# deps\nvendor/\n*.tmp\n!keep.tmp\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFile(file, ""))

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Match("vendor/x/y.go", false))
	assert.True(t, m.Match("a.tmp", false))
	assert.False(t, m.Match("keep.tmp", false))
	assert.False(t, m.Match("main.go", false))
}

func TestMatcher_AddFile_Missing(t *testing.T) {
	err := New().AddFile(filepath.Join(t.TempDir(), "nope"), "")
	assert.Error(t, err)
}

func TestMatcher_ConcurrentMatch(t *testing.T) {
	m := New()
	m.AddAll([]string{"*.log", "build/"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.True(t, m.Match("build/out.bin", false))
				assert.False(t, m.Match("main.go", false))
			}
		}()
	}
	wg.Wait()
}

func TestBase(t *testing.T) {
	assert.Equal(t, "", Base(".gitignore"))
	assert.Equal(t, "src/pkg", Base("src/pkg/.gitignore"))
}
