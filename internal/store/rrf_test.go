package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func denseResults(ids ...string) []*VectorResult {
	out := make([]*VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &VectorResult{ID: id}
	}
	return out
}

func lexicalResults(ids ...string) []*BM25Result {
	out := make([]*BM25Result, len(ids))
	for i, id := range ids {
		out[i] = &BM25Result{DocID: id}
	}
	return out
}

func hitIDs(hits []*Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestRRFFusion_Scores(t *testing.T) {
	// Given: dense [A B C] and lexical [C A D]
	f := NewRRFFusion(60)

	// When: fusing without threshold or limit
	hits := f.Fuse(denseResults("A", "B", "C"), lexicalResults("C", "A", "D"), 0, 0)

	// Then: scores are the sum of 1/(60+rank) over the legs that found each chunk
	require.Len(t, hits, 4)
	byID := map[string]*Hit{}
	for _, h := range hits {
		byID[h.ID] = h
	}
	assert.InDelta(t, 1.0/61+1.0/62, byID["A"].Score, 1e-12)
	assert.InDelta(t, 1.0/62, byID["B"].Score, 1e-12)
	assert.InDelta(t, 1.0/63+1.0/61, byID["C"].Score, 1e-12)
	assert.InDelta(t, 1.0/63, byID["D"].Score, 1e-12)

	assert.Equal(t, 1, byID["A"].DenseRank)
	assert.Equal(t, 2, byID["A"].LexicalRank)
	assert.Equal(t, 0, byID["B"].LexicalRank)
	assert.Equal(t, 0, byID["D"].DenseRank)

	// And: order is by score descending
	assert.Equal(t, []string{"A", "C", "B", "D"}, hitIDs(hits))
}

func TestRRFFusion_TiesBreakOnID(t *testing.T) {
	f := NewRRFFusion(60)

	hits := f.Fuse(denseResults("z"), lexicalResults("a"), 0, 0)

	assert.Equal(t, []string{"a", "z"}, hitIDs(hits))
}

func TestRRFFusion_ThresholdThenTopK(t *testing.T) {
	f := NewRRFFusion(60)
	dense := denseResults("A", "B", "C")
	lexical := lexicalResults("A", "B")

	// Threshold keeps only chunks found by both legs.
	hits := f.Fuse(dense, lexical, 1.0/63+0.0001, 0)
	assert.Equal(t, []string{"A", "B"}, hitIDs(hits))

	hits = f.Fuse(dense, lexical, 0, 1)
	assert.Equal(t, []string{"A"}, hitIDs(hits))

	// No fused score reaches 0.99.
	assert.Empty(t, f.Fuse(dense, lexical, 0.99, 5))
}

func TestRRFFusion_SingleLegAndEmpty(t *testing.T) {
	f := NewRRFFusion(0)
	assert.Equal(t, DefaultRRFConstant, f.K)

	hits := f.Fuse(nil, lexicalResults("x", "y"), 0, 10)
	assert.Equal(t, []string{"x", "y"}, hitIDs(hits))

	assert.Empty(t, f.Fuse(nil, nil, 0, 10))
}

func TestRRFFusion_DuplicateInLegCountsOnce(t *testing.T) {
	f := NewRRFFusion(60)

	hits := f.Fuse(denseResults("A", "A"), nil, 0, 0)

	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0/61, hits[0].Score, 1e-12)
}
