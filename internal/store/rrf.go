package store

import (
	"cmp"
	"slices"
)

// DefaultRRFConstant is the reciprocal-rank-fusion smoothing constant k.
const DefaultRRFConstant = 60

// RRFFusion merges the dense and lexical rankings of a hybrid query.
//
//	score(d) = Σ 1 / (k + rank_i(d))
//
// Ranks are 1-based. A chunk found by one leg only gets that leg's term.
// Scores are not normalized, so a chunk ranked first by both legs scores 2/(k+1).
type RRFFusion struct {
	K int
}

// NewRRFFusion returns a fusion with constant k, or DefaultRRFConstant when k <= 0.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines both legs, sorted by score descending then id ascending.
// Hits scoring below threshold are dropped, then the list is cut to topK
// (topK <= 0 keeps everything).
func (f *RRFFusion) Fuse(dense []*VectorResult, lexical []*BM25Result, threshold float64, topK int) []*Hit {
	hits := make(map[string]*Hit, len(dense)+len(lexical))
	get := func(id string) *Hit {
		h, ok := hits[id]
		if !ok {
			h = &Hit{ID: id}
			hits[id] = h
		}
		return h
	}

	for i, r := range dense {
		h := get(r.ID)
		if h.DenseRank != 0 {
			continue
		}
		h.DenseRank = i + 1
		h.Score += 1.0 / float64(f.K+i+1)
	}
	for i, r := range lexical {
		h := get(r.DocID)
		if h.LexicalRank != 0 {
			continue
		}
		h.LexicalRank = i + 1
		h.Score += 1.0 / float64(f.K+i+1)
	}

	out := make([]*Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b *Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
