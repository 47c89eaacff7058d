// Package chunk splits source files into retrievable chunks along syntax
// boundaries. Sibling definitions are packed up to a size limit, oversized
// definitions are split at their nested definitions or, failing that, into
// overlapping line windows linked by continuation edges.
package chunk

// Size defaults, in characters.
const (
	DefaultMaxChunkSize = 2500
	DefaultOverlap      = 300
)

// UnknownLanguage is recorded when neither a grammar nor an extension
// identifies the language.
const UnknownLanguage = "unknown"

// Chunk is a retrievable unit of a source file.
type Chunk struct {
	ID            string // hex xxhash64(filePath, content hash, sequence index)
	FilePath      string // relative to project root
	StartLine     int    // 1-indexed
	EndLine       int    // inclusive
	Language      string
	Content       string
	SequenceIndex int // position within the file, contiguous from 0
	Kind          string
	Symbol        string
	// ParentID identifies the oversized unit a force-split run came from.
	// Every piece of the run shares it; other chunks leave it empty.
	ParentID string
	// Refs are the names the chunk calls or mentions, in source order.
	Refs []Ref
}

// Ref is a name mentioned by a chunk. Call is set for call sites.
type Ref struct {
	Name string
	Call bool
}

// EdgeKind labels a relationship between two chunks.
type EdgeKind string

const (
	// EdgeParentOf links the chunk holding a definition's header to the
	// chunks of its nested definitions.
	EdgeParentOf EdgeKind = "PARENT_OF"
	// EdgeContinues links consecutive pieces of a force-split unit.
	EdgeContinues EdgeKind = "CONTINUES"
	// EdgeCalls links a chunk to the definition of a function it calls.
	EdgeCalls EdgeKind = "CALLS"
	// EdgeUses links a chunk to the definition of another name it mentions.
	EdgeUses EdgeKind = "USES"
)

// Edge is a directed relationship between chunk ids.
type Edge struct {
	Source string
	Target string
	Kind   EdgeKind
}

// Options configures a Chunker.
type Options struct {
	MaxChunkSize int
	Overlap      int
}

// Tree represents a parsed AST
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	Named      bool
	HasError   bool
}

// Point represents a position in the source code
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported grammar.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Definitions are node types that may hold nested definitions worth
	// splitting at when their parent is too large.
	Definitions []string

	// Wrappers are node types whose name lives on an inner definition.
	Wrappers []string
}
