package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseGoFile_ReturnsAST(t *testing.T) {
	// Given: Go source with two functions
	source := []byte(`package main

func hello() {
	fmt.Println("Hello")
}

func goodbye() {
	fmt.Println("Bye")
}
`)
	parser := NewParser()
	defer parser.Close()

	// When: parsing
	tree, err := parser.Parse(context.Background(), source, "go")

	// Then: both declarations are found with 0-indexed rows
	require.NoError(t, err)
	assert.Equal(t, "go", tree.Language)
	funcs := tree.Root.FindAllByType("function_declaration")
	require.Len(t, funcs, 2)
	assert.Equal(t, 3, funcs[0].firstLine())
	assert.Equal(t, 5, funcs[0].lastLine())
	assert.Equal(t, "func hello() {\n\tfmt.Println(\"Hello\")\n}", funcs[0].GetContent(source))
}

func TestParser_NamedChildrenSkipPunctuation(t *testing.T) {
	source := []byte("x = 1\n# note\ny = 2\n")
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "python")

	require.NoError(t, err)
	children := tree.Root.NamedChildren()
	require.Len(t, children, 3)
	assert.False(t, children[0].IsComment())
	assert.True(t, children[1].IsComment())
}

func TestParser_AllGrammarsLoad(t *testing.T) {
	sources := map[string]string{
		"go":         "package a\nfunc A() {}\n",
		"python":     "def a():\n    pass\n",
		"javascript": "function a() { return 1 }\n",
		"jsx":        "const A = () => <div/>;\n",
		"typescript": "interface A { x: number }\n",
		"tsx":        "export function A() { return <div/> }\n",
		"java":       "class A { void a() {} }\n",
		"rust":       "fn a() -> i32 { 1 }\n",
	}
	parser := NewParser()
	defer parser.Close()

	for lang, src := range sources {
		t.Run(lang, func(t *testing.T) {
			tree, err := parser.Parse(context.Background(), []byte(src), lang)
			require.NoError(t, err)
			assert.NotEmpty(t, tree.Root.NamedChildren())
		})
	}
}

func TestParser_UnsupportedLanguage(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte("x"), "cobol")
	assert.Error(t, err)
}

func TestRegistry_ForFile_PrefersExtension(t *testing.T) {
	r := DefaultRegistry()

	cfg, ok := r.ForFile("ui/App.tsx", "typescript")
	require.True(t, ok)
	assert.Equal(t, "tsx", cfg.Name)

	cfg, ok = r.ForFile("main.go", "")
	require.True(t, ok)
	assert.Equal(t, "go", cfg.Name)

	_, ok = r.ForFile("main.cpp", "cpp")
	assert.False(t, ok)
	assert.Contains(t, r.SupportedExtensions(), ".rs")
}
