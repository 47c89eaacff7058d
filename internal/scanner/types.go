// Package scanner discovers indexable source files under a project root.
// It honors built-in excludes, caller and config ignore patterns and the
// project's .gitignore files, and reports each file with the metadata the
// synchronizer needs for its size/mtime pre-filter.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// File is a discovered source file.
type File struct {
	Path     string    // project-relative, slash separated
	AbsPath  string    // absolute path on disk
	Size     int64     // bytes
	ModTime  time.Time // last modification
	Language string    // go, python, typescript, ...
}

// Options configures a scan.
type Options struct {
	// Root is the project directory.
	Root string

	// Ignore holds extra git-style patterns (caller and config supplied).
	Ignore []string

	// RespectGitignore loads .gitignore files found during the walk.
	RespectGitignore bool

	// IncludeHidden keeps dot-prefixed files and directories.
	IncludeHidden bool

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks indexes symlinked files instead of skipping them.
	FollowSymlinks bool
}

// Result is streamed from Scan. Exactly one of File and Err is set.
type Result struct {
	File *File
	Err  error
}

// DefaultMaxFileSize is the default per-file size limit (1MB).
const DefaultMaxFileSize = 1 << 20

// languageByExt lists the extensions considered source code.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".mts":   "typescript",
	".java":  "java",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".rb":    "ruby",
	".swift": "swift",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",
}

// DetectLanguage returns the language for a path, or "" when the
// extension is not a supported source type.
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// IsSupported reports whether a path has a source-code extension.
func IsSupported(path string) bool {
	return DetectLanguage(path) != ""
}

// Extensions returns every supported extension.
func Extensions() []string {
	exts := make([]string, 0, len(languageByExt))
	for ext := range languageByExt {
		exts = append(exts, ext)
	}
	return exts
}

// DefaultExcludes are always applied before user patterns.
var DefaultExcludes = []string{
	"node_modules/",
	"vendor/",
	"__pycache__/",
	"dist/",
	"build/",
	"target/",
	"*.min.js",
	"*.pb.go",
	"*_generated.go",
}

// sensitivePatterns are never indexed, even when re-included by negation.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*credentials*",
	"*secrets*",
	"id_rsa",
	"id_ed25519",
}
