package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// RunLock serializes indexing runs per project. An in-process registry
// rejects a second run from the same Indexer; a lock file under dir
// rejects runs from other processes. Conflicts never block.
type RunLock struct {
	dir string

	mu   sync.Mutex
	held map[string]*flock.Flock
}

// NewRunLock creates a lock registry whose lock files live in dir.
func NewRunLock(dir string) *RunLock {
	return &RunLock{dir: dir, held: make(map[string]*flock.Flock)}
}

// Path returns the lock file of a collection.
func (l *RunLock) Path(collection string) string {
	return filepath.Join(l.dir, collection+".lock")
}

// TryAcquire takes the lock for collection or returns an index-busy error.
// The returned func releases it and is safe to call more than once.
func (l *RunLock) TryAcquire(collection, projectPath string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[collection]; busy {
		return nil, busyError(projectPath, "another run in this process")
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "failed to create lock directory", err)
	}
	fl := flock.New(l.Path(collection))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "failed to acquire run lock", err).
			WithDetail("lock", fl.Path())
	}
	if !ok {
		return nil, busyError(projectPath, "another process")
	}
	l.held[collection] = fl

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, collection)
			l.mu.Unlock()
			_ = fl.Unlock()
		})
	}, nil
}

// Held reports whether this process holds the lock for collection.
func (l *RunLock) Held(collection string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[collection]
	return ok
}

func busyError(projectPath, holder string) error {
	return errors.New(errors.ErrCodeIndexBusy,
		fmt.Sprintf("indexing of %s is already running (%s)", projectPath, holder), nil).
		WithDetail("path", projectPath).
		WithSuggestion("wait for the running index to finish and retry")
}
