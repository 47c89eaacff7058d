package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Names registered with bleve's analysis registry.
const (
	CodeTokenizerName  = "code_tokenizer"
	CodeStopFilterName = "code_stop"
	CodeAnalyzerName   = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// BleveBM25Index implements BM25Index on bleve with the code-aware analyzer.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ BM25Index = (*BleveBM25Index)(nil)

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveBM25Index opens or creates a bleve index at path.
// An empty path creates an in-memory index. A corrupt index is cleared.
func NewBleveBM25Index(path string, _ BM25Config) (*BleveBM25Index, error) {
	m, err := newIndexMapping()
	if err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to build lexical mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to create lexical index directory", err)
		}
		if verr := validateBleveIndex(path); verr != nil {
			slog.Warn("lexical_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			_ = os.RemoveAll(path)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil {
			slog.Warn("lexical_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, errors.New(errors.ErrCodeVectorStoreOpen, "lexical index is corrupt and cannot be cleared", rerr)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to open lexical index", err).WithDetail("path", path)
	}

	return &BleveBM25Index{index: idx, path: path}, nil
}

// validateBleveIndex checks that an existing index has a readable index_meta.json.
func validateBleveIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(CodeAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     CodeTokenizerName,
		"token_filters": []string{lowercase.Name, CodeStopFilterName},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = CodeAnalyzerName
	return m, nil
}

// Index adds or replaces documents in one batch.
func (b *BleveBM25Index) Index(_ context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.StoreError("lexical index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return errors.StoreError(fmt.Sprintf("failed to index %s", doc.ID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.StoreError("failed to write lexical index", err)
	}
	return nil
}

// Search runs a match query (any term) over content. Ties break on id.
func (b *BleveBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.StoreError("lexical index is closed", nil)
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*BM25Result{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.IncludeLocations = true
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreQuery, "lexical search failed", err)
	}

	out := make([]*BM25Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &BM25Result{DocID: hit.ID, Score: hit.Score, MatchedTerms: matchedTerms(hit)})
	}
	return out, nil
}

// Delete removes documents. Unknown ids are ignored.
func (b *BleveBM25Index) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.StoreError("lexical index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.StoreError("failed to delete from lexical index", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveBM25Index) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errors.StoreError("lexical index is closed", nil)
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, errors.New(errors.ErrCodeVectorStoreQuery, "failed to count lexical documents", err)
	}
	return int(n), nil
}

// Flush is a no-op: bleve persists every batch.
func (b *BleveBM25Index) Flush() error {
	return nil
}

// Close closes the index. It is idempotent.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations["content"] {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func codeTokenizerConstructor(_ map[string]any, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

// bleveCodeTokenizer adapts TokenizeCode to bleve. Offsets point at the
// first case-insensitive occurrence after the previous token.
type bleveCodeTokenizer struct{}

func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := TokenizeCode(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		start := offset
		if at := strings.Index(lower[offset:], tok); at >= 0 {
			start = offset + at
		}
		end := min(start+len(tok), len(text))
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}

func codeStopFilterConstructor(_ map[string]any, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: BuildStopWordMap(DefaultCodeStopWords)}, nil
}

type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := f.stopWords[string(tok.Term)]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
