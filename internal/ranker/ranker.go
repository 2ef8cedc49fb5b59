// Package ranker scores stored embeddings against a query vector.
//
// Ranking is an exact scan over every stored vector, O(store size) per query.
// That is the scaling boundary of this package: an approximate index would
// trade away exact top-N results and is deliberately not used here.
package ranker

import (
	"container/heap"
	"math"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

// ErrInvalidN is returned when fewer than one result is requested.
var ErrInvalidN = &domain.InvalidInputError{Reason: "result count must be at least 1"}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// A zero-magnitude vector has similarity 0 with everything.
func Cosine(a, b domain.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, &domain.DimensionMismatchError{Expected: len(b), Actual: len(a)}
	}
	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push identical vectors just past 1
	return math.Max(-1, math.Min(1, s)), nil
}

// Rank returns the n entries of store most similar to query, by descending
// score. Equal scores keep store order. An empty store yields no results.
func Rank(query domain.Embedding, store *vectorstore.Store, n int) ([]domain.RankedResult, error) {
	if n < 1 {
		return nil, ErrInvalidN
	}
	if store == nil || store.Len() == 0 {
		return []domain.RankedResult{}, nil
	}
	if len(query) != store.Dimension() {
		return nil, &domain.DimensionMismatchError{Expected: store.Dimension(), Actual: len(query)}
	}

	entries := store.All()
	h := make(topN, 0, min(n, len(entries))+1)
	for i, e := range entries {
		score, err := Cosine(query, e.Embedding)
		if err != nil {
			return nil, err
		}
		c := candidate{index: i, score: score}
		if len(h) < n {
			heap.Push(&h, c)
			continue
		}
		if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	out := make([]domain.RankedResult, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		out[i] = domain.RankedResult{Record: entries[c.index].Record, Score: c.score}
	}
	return out, nil
}

type candidate struct {
	index int
	score float64
}

// worse reports whether a ranks below b: lower score, or equal score and later in the store.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.index > b.index
}

// topN is a min-heap whose root is the weakest kept candidate.
type topN []candidate

func (h topN) Len() int           { return len(h) }
func (h topN) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h topN) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topN) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *topN) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}
