package search

import (
	"fmt"
	"path"
	"strings"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/store"
)

// Validate checks query and options and returns the options with defaults applied.
func Validate(query string, opts Options) (Options, error) {
	if strings.TrimSpace(query) == "" {
		return opts, errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK < 1 || opts.TopK > MaxTopK {
		return opts, errors.New(errors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be between 1 and %d, got %d", MaxTopK, opts.TopK), nil).
			WithDetail("top_k", fmt.Sprint(opts.TopK))
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return opts, errors.New(errors.ErrCodeInvalidThreshold,
			fmt.Sprintf("threshold must be between 0 and 1, got %g", opts.Threshold), nil).
			WithDetail("threshold", fmt.Sprint(opts.Threshold))
	}
	if opts.MaxGraphHops < 0 || opts.MaxGraphHops > MaxGraphHops {
		return opts, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("graph hops must be between 0 and %d, got %d", MaxGraphHops, opts.MaxGraphHops), nil).
			WithDetail("max_graph_hops", fmt.Sprint(opts.MaxGraphHops))
	}
	if opts.GraphLimit < 0 {
		return opts, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("graph limit must not be negative, got %d", opts.GraphLimit), nil)
	}
	if opts.GraphLimit == 0 {
		opts.GraphLimit = DefaultGraphLimit
	}
	return opts, nil
}

// FilterFunc reports whether a payload passes a filter.
type FilterFunc func(p *store.Payload) bool

// buildFilters returns one filter per set option. Filters combine with AND.
func buildFilters(opts Options) []FilterFunc {
	var filters []FilterFunc
	if len(opts.Extensions) > 0 {
		filters = append(filters, extensionFilter(opts.Extensions))
	}
	if opts.Language != "" {
		filters = append(filters, languageFilter(opts.Language))
	}
	if len(opts.Scopes) > 0 {
		filters = append(filters, scopeFilter(opts.Scopes))
	}
	return filters
}

func matchesAll(p *store.Payload, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(p) {
			return false
		}
	}
	return true
}

// NormalizeExtension lowercases ext and gives it a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

func extensionFilter(exts []string) FilterFunc {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if n := NormalizeExtension(e); n != "" {
			allowed[n] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(*store.Payload) bool { return true }
	}
	return func(p *store.Payload) bool {
		_, ok := allowed[strings.ToLower(path.Ext(p.RelativePath))]
		return ok
	}
}

func languageFilter(lang string) FilterFunc {
	lang = strings.ToLower(lang)
	return func(p *store.Payload) bool {
		return strings.ToLower(p.Language) == lang
	}
}

// NormalizeScope strips leading and trailing slashes.
func NormalizeScope(scope string) string {
	return strings.Trim(scope, "/")
}

// scopeFilter matches paths under any scope. "api" matches "api/x.go"
// but not "api-v2/x.go".
func scopeFilter(scopes []string) FilterFunc {
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if n := NormalizeScope(s); n != "" {
			normalized = append(normalized, n+"/")
		}
	}
	if len(normalized) == 0 {
		return func(*store.Payload) bool { return true }
	}
	return func(p *store.Payload) bool {
		rel := NormalizeScope(p.RelativePath) + "/"
		for _, scope := range normalized {
			if strings.HasPrefix(rel, scope) {
				return true
			}
		}
		return false
	}
}
