package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// maxSQLParams keeps IN clauses under SQLite's default variable limit.
const maxSQLParams = 500

// openSQLite opens dsn with the named driver and applies the pragmas every
// store database uses. A single connection serializes writers, which SQLite
// requires anyway, and keeps ":memory:" databases from splitting per connection.
func openSQLite(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeVectorStoreOpen,
			fmt.Sprintf("failed to open %s database", driver), err).WithDetail("dsn", dsn)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.ErrCodeVectorStoreOpen,
				fmt.Sprintf("failed to configure %s database", driver), err).WithDetail("pragma", p)
		}
	}
	return db, nil
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// inClause returns "?,?,?" and the matching args.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// chunkStrings splits s into slices of at most n elements.
func chunkStrings(s []string, n int) [][]string {
	var out [][]string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
