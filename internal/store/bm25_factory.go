package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// BM25Backend names a lexical index implementation.
type BM25Backend string

const (
	// BM25BackendSQLite uses SQLite FTS5 (default). WAL mode lets other
	// processes read while an index run writes.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve uses bleve v2. Its bolt store holds an exclusive lock,
	// so only one process may open a collection at a time.
	BM25BackendBleve BM25Backend = "bleve"
)

// lexicalBase is the file name of the lexical index inside a collection directory.
const lexicalBase = "lexical"

// NewBM25Index opens the lexical index of a collection directory.
// An empty dir creates an in-memory index. When the collection already holds
// an index of the other backend, that one is opened instead so an existing
// collection keeps working after the configured backend changes.
func NewBM25Index(dir string, backend BM25Backend, cfg BM25Config) (BM25Index, error) {
	if dir != "" {
		if found := DetectBM25Backend(dir); found != "" && found != backend {
			backend = found
		}
	}

	switch backend {
	case BM25BackendSQLite, "":
		path := ""
		if dir != "" {
			path = BM25IndexPath(dir, BM25BackendSQLite)
		}
		return NewSQLiteBM25Index(path, cfg)
	case BM25BackendBleve:
		path := ""
		if dir != "" {
			path = BM25IndexPath(dir, BM25BackendBleve)
		}
		return NewBleveBM25Index(path, cfg)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown lexical backend %q (valid: sqlite, bleve)", backend), nil)
	}
}

// DetectBM25Backend reports which backend an existing collection uses,
// or "" when it has no lexical index yet.
func DetectBM25Backend(dir string) BM25Backend {
	if fileExists(BM25IndexPath(dir, BM25BackendSQLite)) {
		return BM25BackendSQLite
	}
	if dirExists(BM25IndexPath(dir, BM25BackendBleve)) {
		return BM25BackendBleve
	}
	return ""
}

// BM25IndexPath returns the lexical index path inside a collection directory.
func BM25IndexPath(dir string, backend BM25Backend) string {
	base := filepath.Join(dir, lexicalBase)
	if backend == BM25BackendBleve {
		return base + ".bleve"
	}
	return base + ".db"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
