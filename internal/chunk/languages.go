package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps languages and extensions to grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with every built-in grammar.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		Definitions: []string{
			"function_declaration", "method_declaration", "type_declaration", "func_literal",
		},
	}, golang.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py", ".pyi"},
		Definitions: []string{
			"function_definition", "class_definition", "decorated_definition",
		},
		Wrappers: []string{"decorated_definition"},
	}, python.GetLanguage())

	jsDefs := []string{
		"function_declaration", "generator_function_declaration", "class_declaration",
		"method_definition", "arrow_function", "function", "function_expression",
	}
	r.register(&LanguageConfig{
		Name:        "javascript",
		Extensions:  []string{".js", ".mjs", ".cjs"},
		Definitions: jsDefs,
		Wrappers:    []string{"export_statement"},
	}, javascript.GetLanguage())
	r.register(&LanguageConfig{
		Name:        "jsx",
		Extensions:  []string{".jsx"},
		Definitions: jsDefs,
		Wrappers:    []string{"export_statement"},
	}, javascript.GetLanguage())

	tsDefs := append(append([]string(nil), jsDefs...),
		"interface_declaration", "type_alias_declaration", "abstract_class_declaration",
		"enum_declaration", "internal_module",
	)
	r.register(&LanguageConfig{
		Name:        "typescript",
		Extensions:  []string{".ts", ".mts"},
		Definitions: tsDefs,
		Wrappers:    []string{"export_statement"},
	}, typescript.GetLanguage())
	r.register(&LanguageConfig{
		Name:        "tsx",
		Extensions:  []string{".tsx"},
		Definitions: tsDefs,
		Wrappers:    []string{"export_statement"},
	}, tsx.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		Definitions: []string{
			"class_declaration", "interface_declaration", "enum_declaration", "record_declaration",
			"method_declaration", "constructor_declaration",
		},
	}, java.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		Definitions: []string{
			"function_item", "impl_item", "struct_item", "enum_item", "trait_item", "mod_item",
		},
	}, rust.GetLanguage())

	return r
}

// GetByExtension returns the configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetByName returns the configuration by language name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// ForFile picks the grammar for a file. The extension wins over the
// declared language so .tsx and .jsx files get their dialect grammars.
func (r *LanguageRegistry) ForFile(path, language string) (*LanguageConfig, bool) {
	if cfg, ok := r.GetByExtension(filepath.Ext(path)); ok {
		return cfg, true
	}
	return r.GetByName(language)
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns every extension with a grammar.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
