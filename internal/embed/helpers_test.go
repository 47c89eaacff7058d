package embed

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// fakeEmbedder is a test double. embedFn decides per call; by default every
// text maps to a one-hot vector derived from its length.
type fakeEmbedder struct {
	dims    int
	calls   atomic.Int64
	texts   atomic.Int64
	embedFn func(call int64, texts []string) ([][]float32, error)

	mu     sync.Mutex
	closed bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	call := f.calls.Add(1)
	f.texts.Add(int64(len(texts)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.embedFn != nil {
		return f.embedFn(call, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dims)
		v[len(t)%f.dims] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return f.dims }
func (f *fakeEmbedder) ModelName() string                { return "fake-model" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
