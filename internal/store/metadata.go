package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Metadata drivers. "sqlite" is the pure Go modernc driver and always
// available; "sqlite3" is mattn/go-sqlite3 and needs a cgo build.
const (
	MetadataDriverSQLite  = "sqlite"
	MetadataDriverSQLite3 = "sqlite3"
)

// metadataSchemaVersion is stored in PRAGMA user_version.
const metadataSchemaVersion = 1

const metadataSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	relative_path TEXT NOT NULL,
	start_line    INTEGER NOT NULL,
	end_line      INTEGER NOT NULL,
	language      TEXT NOT NULL,
	content       TEXT NOT NULL,
	parent_id     TEXT NOT NULL DEFAULT '',
	seq           INTEGER NOT NULL DEFAULT 0,
	kind          TEXT NOT NULL DEFAULT '',
	symbol        TEXT NOT NULL DEFAULT '',
	indexed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(relative_path);
CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_id);
CREATE INDEX IF NOT EXISTS idx_chunks_symbol ON chunks(symbol);

CREATE TABLE IF NOT EXISTS edges (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	kind   TEXT NOT NULL,
	PRIMARY KEY (source, target, kind)
);

CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

// MetadataStore keeps chunk payloads and the chunk relationship graph of one
// collection in SQLite.
type MetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	driver string
	closed bool
}

// NewMetadataStore opens or creates the payload database at path with the
// given driver ("" selects "sqlite"). An empty path opens an in-memory database.
func NewMetadataStore(path, driver string) (*MetadataStore, error) {
	if driver == "" {
		driver = MetadataDriverSQLite
	}
	if err := checkMetadataDriver(driver); err != nil {
		return nil, err
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to create payload directory", err)
		}
		dsn = path
	}

	db, err := openSQLite(driver, dsn)
	if err != nil {
		return nil, err
	}

	m := &MetadataStore{db: db, path: path, driver: driver}
	if err := m.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeVectorStoreOpen, "failed to initialize payload schema", err).
			WithDetail("path", path)
	}
	return m, nil
}

func checkMetadataDriver(driver string) error {
	switch driver {
	case MetadataDriverSQLite:
		return nil
	case MetadataDriverSQLite3:
		if !cgoSQLiteAvailable {
			return errors.ConfigError("metadata driver sqlite3 requires a cgo build", nil).
				WithSuggestion("set storage.metadata_driver to sqlite or rebuild with CGO_ENABLED=1")
		}
		return nil
	default:
		return errors.ConfigError(fmt.Sprintf("unknown metadata driver %q (valid: sqlite, sqlite3)", driver), nil)
	}
}

func (m *MetadataStore) migrate() error {
	var version int
	if err := m.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > metadataSchemaVersion {
		return fmt.Errorf("payload schema version %d is newer than supported %d", version, metadataSchemaVersion)
	}
	if _, err := m.db.Exec(metadataSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := m.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", metadataSchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Driver returns the database/sql driver name in use.
func (m *MetadataStore) Driver() string {
	return m.driver
}

// Upsert inserts or replaces the payloads of points.
func (m *MetadataStore) Upsert(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.StoreError("payload store is closed", nil)
	}

	err := withTx(ctx, m.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, relative_path, start_line, end_line, language, content,
				parent_id, seq, kind, symbol, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				relative_path = excluded.relative_path,
				start_line    = excluded.start_line,
				end_line      = excluded.end_line,
				language      = excluded.language,
				content       = excluded.content,
				parent_id     = excluded.parent_id,
				seq           = excluded.seq,
				kind          = excluded.kind,
				symbol        = excluded.symbol,
				indexed_at    = excluded.indexed_at`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range points {
			pl := p.Payload
			indexedAt := pl.IndexedAt
			if indexedAt.IsZero() {
				indexedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, p.ID, pl.RelativePath, pl.StartLine, pl.EndLine,
				pl.Language, pl.Content, pl.ParentID, pl.Seq, pl.Kind, pl.Symbol, indexedAt.UnixNano()); err != nil {
				return fmt.Errorf("upsert %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreError("failed to write payloads", err)
	}
	return nil
}

// Delete removes payloads and every edge touching them. Unknown ids are ignored.
func (m *MetadataStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.StoreError("payload store is closed", nil)
	}

	err := withTx(ctx, m.db, func(tx *sql.Tx) error {
		for _, batch := range chunkStrings(ids, maxSQLParams) {
			in, args := inClause(batch)
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id IN ("+in+")", args...); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE source IN ("+in+")", args...); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE target IN ("+in+")", args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreError("failed to delete payloads", err)
	}
	return nil
}

// Get returns the payloads of ids that exist.
func (m *MetadataStore) Get(ctx context.Context, ids []string) (map[string]*Payload, error) {
	out := make(map[string]*Payload, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.StoreError("payload store is closed", nil)
	}

	for _, batch := range chunkStrings(ids, maxSQLParams) {
		in, args := inClause(batch)
		rows, err := m.db.QueryContext(ctx, `
			SELECT id, relative_path, start_line, end_line, language, content,
				parent_id, seq, kind, symbol, indexed_at
			FROM chunks WHERE id IN (`+in+`)`, args...)
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read payloads", err)
		}
		for rows.Next() {
			var (
				id        string
				p         Payload
				indexedAt int64
			)
			if err := rows.Scan(&id, &p.RelativePath, &p.StartLine, &p.EndLine, &p.Language, &p.Content,
				&p.ParentID, &p.Seq, &p.Kind, &p.Symbol, &indexedAt); err != nil {
				_ = rows.Close()
				return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to scan payload", err)
			}
			p.IndexedAt = time.Unix(0, indexedAt)
			out[id] = &p
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read payloads", err)
		}
	}
	return out, nil
}

// SetEdges replaces the outgoing edges of every source named in edges.
func (m *MetadataStore) SetEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.StoreError("payload store is closed", nil)
	}

	var sources []string
	for _, e := range edges {
		sources = append(sources, e.Source)
	}
	slices.Sort(sources)
	sources = slices.Compact(sources)

	err := withTx(ctx, m.db, func(tx *sql.Tx) error {
		for _, batch := range chunkStrings(sources, maxSQLParams) {
			in, args := inClause(batch)
			if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE source IN ("+in+")", args...); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (source, target, kind) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, e.Source, e.Target, e.Kind); err != nil {
				return fmt.Errorf("insert edge %s->%s: %w", e.Source, e.Target, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreError("failed to write edges", err)
	}
	return nil
}

// Edges returns the edges whose source is one of ids, ordered by source,
// kind and target.
func (m *MetadataStore) Edges(ctx context.Context, ids []string) ([]Edge, error) {
	return m.queryEdges(ctx, ids, "source IN (%[1]s)")
}

// Neighbors returns the edges with either end in ids, ordered by source,
// kind and target. An edge between two ids is returned once.
func (m *MetadataStore) Neighbors(ctx context.Context, ids []string) ([]Edge, error) {
	edges, err := m.queryEdges(ctx, ids, "source IN (%[1]s) OR target IN (%[1]s)")
	if err != nil {
		return nil, err
	}
	slices.SortFunc(edges, compareEdges)
	return slices.Compact(edges), nil
}

func compareEdges(a, b Edge) int {
	switch {
	case a.Source != b.Source:
		return strings.Compare(a.Source, b.Source)
	case a.Kind != b.Kind:
		return strings.Compare(a.Kind, b.Kind)
	default:
		return strings.Compare(a.Target, b.Target)
	}
}

func (m *MetadataStore) queryEdges(ctx context.Context, ids []string, where string) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.StoreError("payload store is closed", nil)
	}

	var out []Edge
	for _, batch := range chunkStrings(ids, maxSQLParams/2) {
		in, args := inClause(batch)
		if strings.Count(where, "%[1]s") > 1 {
			args = append(args, args...)
		}
		rows, err := m.db.QueryContext(ctx,
			"SELECT source, target, kind FROM edges WHERE "+fmt.Sprintf(where, in)+" ORDER BY source, kind, target", args...)
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read edges", err)
		}
		for rows.Next() {
			var e Edge
			if err := rows.Scan(&e.Source, &e.Target, &e.Kind); err != nil {
				_ = rows.Close()
				return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to scan edge", err)
			}
			out = append(out, e)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read edges", err)
		}
	}
	return out, nil
}

// Symbols returns the named chunks whose symbol is one of names, ordered
// by symbol, path and sequence.
func (m *MetadataStore) Symbols(ctx context.Context, names []string) ([]SymbolDef, error) {
	if len(names) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.StoreError("payload store is closed", nil)
	}

	var out []SymbolDef
	for _, batch := range chunkStrings(names, maxSQLParams) {
		in, args := inClause(batch)
		rows, err := m.db.QueryContext(ctx, `
			SELECT id, symbol, language, relative_path, parent_id, seq
			FROM chunks WHERE symbol IN (`+in+`) ORDER BY symbol, relative_path, seq`, args...)
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read symbols", err)
		}
		for rows.Next() {
			var d SymbolDef
			if err := rows.Scan(&d.ID, &d.Name, &d.Language, &d.RelativePath, &d.ParentID, &d.Seq); err != nil {
				_ = rows.Close()
				return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to scan symbol", err)
			}
			out = append(out, d)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, errors.New(errors.ErrCodeVectorStoreQuery, "failed to read symbols", err)
		}
	}
	return out, nil
}

// Counts returns the number of chunks and distinct files stored.
func (m *MetadataStore) Counts(ctx context.Context) (chunks, files int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, 0, errors.StoreError("payload store is closed", nil)
	}

	err = m.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT relative_path) FROM chunks").Scan(&chunks, &files)
	if err != nil {
		return 0, 0, errors.New(errors.ErrCodeVectorStoreQuery, "failed to count payloads", err)
	}
	return chunks, files, nil
}

// Flush checkpoints the WAL into the main database file.
func (m *MetadataStore) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.path == "" {
		return nil
	}
	if _, err := m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.StoreError("failed to checkpoint payloads", err)
	}
	return nil
}

// Close closes the database. It is idempotent.
func (m *MetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.path != "" {
		_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return m.db.Close()
}
