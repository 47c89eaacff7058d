package watcher

import (
	"time"
)

// Operation is a file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpIgnoreChange marks a changed .gitignore. The watcher reloads its
	// rules; the reindex drops newly ignored files.
	OpIgnoreChange
	// OpConfigChange marks a changed project config file.
	OpConfigChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a project-relative path.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted (default 500ms).
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode (default 5s).
	PollInterval time.Duration

	// BufferSize bounds queued batches (default 64).
	BufferSize int

	// Ignore holds git-style patterns on top of the built-in excludes.
	Ignore []string

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 5 * time.Second,
		BufferSize:   64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}
