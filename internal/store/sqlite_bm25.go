package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// SQLiteBM25Index implements BM25Index on SQLite FTS5.
// Content is pre-tokenized with TokenizeCode so camelCase and snake_case
// identifiers match their parts.
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
}

var _ BM25Index = (*SQLiteBM25Index)(nil)

// NewSQLiteBM25Index opens or creates an FTS5 index at path.
// An empty path creates an in-memory index. A corrupt file is removed and
// recreated; the caller sees an empty index and a warning is logged.
func NewSQLiteBM25Index(path string, cfg BM25Config) (*SQLiteBM25Index, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to create lexical index directory", err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			removeSQLiteFiles(path)
		}
		dsn = path
	}

	db, err := openSQLite("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteBM25Index{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(cfg.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to initialize lexical schema", err)
	}
	return idx, nil
}

// validateSQLiteIntegrity checks an existing FTS5 file before it is opened.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table fts_content missing")
	}
	return nil
}

func removeSQLiteFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("sqlite_remove_failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

func (s *SQLiteBM25Index) initSchema() error {
	_, err := s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);`)
	return err
}

// Index adds or replaces documents.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.StoreError("lexical index is closed", nil)
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		// FTS5 has no REPLACE, so existing rows are deleted first.
		del, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
		if err != nil {
			return err
		}
		defer func() { _ = del.Close() }()

		ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = ins.Close() }()

		track, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO doc_ids(doc_id) VALUES (?)`)
		if err != nil {
			return err
		}
		defer func() { _ = track.Close() }()

		for _, doc := range docs {
			terms := FilterStopWords(TokenizeCode(doc.Content), s.stopWords)
			if _, err := del.ExecContext(ctx, doc.ID); err != nil {
				return fmt.Errorf("delete %s: %w", doc.ID, err)
			}
			if _, err := ins.ExecContext(ctx, doc.ID, strings.Join(terms, " ")); err != nil {
				return fmt.Errorf("index %s: %w", doc.ID, err)
			}
			if _, err := track.ExecContext(ctx, doc.ID); err != nil {
				return fmt.Errorf("track %s: %w", doc.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreError("failed to write lexical index", err)
	}
	return nil
}

// Search ranks documents containing any query term by FTS5 bm25().
// Scores are negated so higher is better.
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.StoreError("lexical index is closed", nil)
	}

	terms := uniqueTerms(FilterStopWords(TokenizeCode(query), s.stopWords))
	if len(terms) == 0 || limit <= 0 {
		return []*BM25Result{}, nil
	}

	// Terms are quoted so FTS5 operators in user input stay literal.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE fts_content MATCH ?
		ORDER BY score, doc_id
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreQuery, "lexical search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*BM25Result
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to scan lexical hit", err)
		}
		results = append(results, &BM25Result{DocID: id, Score: -score, MatchedTerms: terms})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreQuery, "lexical search failed", err)
	}
	return results, nil
}

// Delete removes documents. Unknown ids are ignored.
func (s *SQLiteBM25Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.StoreError("lexical index is closed", nil)
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, batch := range chunkStrings(ids, maxSQLParams) {
			in, args := inClause(batch)
			if _, err := tx.ExecContext(ctx, "DELETE FROM fts_content WHERE doc_id IN ("+in+")", args...); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM doc_ids WHERE doc_id IN ("+in+")", args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreError("failed to delete from lexical index", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *SQLiteBM25Index) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.StoreError("lexical index is closed", nil)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0, errors.New(errors.ErrCodeVectorStoreQuery, "failed to count lexical documents", err)
	}
	return n, nil
}

// Flush checkpoints the WAL into the main database file.
func (s *SQLiteBM25Index) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.path == "" {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.StoreError("failed to checkpoint lexical index", err)
	}
	return nil
}

// Close checkpoints and closes the database. It is idempotent.
func (s *SQLiteBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
