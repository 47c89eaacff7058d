// Package embed turns chunk text into dense vectors.
//
// An Embedder talks to one provider. The Orchestrator sits in front of it
// and owns batching, bounded parallelism, retries and the query cache.
package embed

import (
	"context"
	"math"
	"time"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Defaults shared by the HTTP providers and the orchestrator.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32

	// DefaultParallelism bounds the number of requests in flight.
	DefaultParallelism = 4

	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the width of vectors produced by the static embedder.
	StaticDimensions = 256

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Vector is a dense embedding.
type Vector = []float32

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width, or 0 while still unknown.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider answers.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
