// Package index runs the indexing pipeline: scan and diff a project against
// its snapshot, chunk what changed, embed the chunks, write them to the
// vector store, and record the new snapshot once the store accepted them.
package index

import "time"

// Stage names a pipeline phase reported to progress callbacks.
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageComplete  Stage = "complete"
)

// Progress is one progress report. Current and Total count files while
// chunking and chunks while embedding or storing.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	File    string
}

// ProgressFunc receives progress reports. It is called from the indexing
// goroutine and from embedding workers, so it must be safe for concurrent use.
type ProgressFunc func(Progress)

// Options configures one run.
type Options struct {
	// Force re-chunks and re-embeds every file, still honoring ignores.
	Force bool

	// Ignore holds extra git-style patterns for this run.
	Ignore []string

	// Progress is optional.
	Progress ProgressFunc
}

// Stats summarizes a run.
type Stats struct {
	// IndexedFiles counts files chunked and stored by this run.
	IndexedFiles int

	// TotalChunks is the number of chunks recorded in the saved snapshot.
	TotalChunks int

	Added    int
	Removed  int
	Modified int

	// Skipped counts unreadable files. They keep their previous record.
	Skipped int

	// Failed counts files left out because embedding failed. They keep
	// their previous record so the next run retries them.
	Failed int

	// StoredChunks and DeletedChunks count vector store writes.
	StoredChunks  int
	DeletedChunks int

	Duration time.Duration
}
