package ranker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

func newStore(t *testing.T, vecs map[string]domain.Embedding, order ...string) *vectorstore.Store {
	t.Helper()
	entries := make([]domain.Entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, domain.Entry{
			Record:    domain.Record{ID: id, Title: id, CombinedText: id},
			Embedding: vecs[id],
		})
	}
	s, err := vectorstore.New("", entries)
	require.NoError(t, err)
	return s
}

func ids(results []domain.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.ID
	}
	return out
}

func TestCosine(t *testing.T) {
	sim, err := Cosine(domain.Embedding{1, 0}, domain.Embedding{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	sim, err = Cosine(domain.Embedding{3, 4}, domain.Embedding{6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = Cosine(domain.Embedding{1, 2}, domain.Embedding{-1, -2})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	sim, err = Cosine(domain.Embedding{0, 0}, domain.Embedding{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	_, err = Cosine(domain.Embedding{1}, domain.Embedding{1, 2})
	assert.ErrorIs(t, err, domain.ErrModelSkew)
}

func TestRank_CourseScenario(t *testing.T) {
	query := domain.Embedding{1, 0.2, 0}
	s := newStore(t, map[string]domain.Embedding{
		"Pottery Studio":            {0, 0, 1},
		"Intro to Machine Learning": {1, 0.25, 0},
		"Linear Algebra":            {1, 1, 0.5},
	}, "Pottery Studio", "Intro to Machine Learning", "Linear Algebra")

	got, err := Rank(query, s, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro to Machine Learning", "Linear Algebra"}, ids(got))
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRank_IdenticalVectorScoresOne(t *testing.T) {
	v := domain.Embedding{0.12, -0.4, 0.33, 0.9}
	s := newStore(t, map[string]domain.Embedding{"same": v, "other": {1, 0, 0, 0}}, "other", "same")

	got, err := Rank(v, s, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "same", got[0].Record.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestRank_TiesKeepStoreOrder(t *testing.T) {
	s := newStore(t, map[string]domain.Embedding{
		"a": {1, 0}, "b": {2, 0}, "c": {0, 1}, "d": {5, 0},
	}, "c", "a", "b", "d")

	got, err := Rank(domain.Embedding{1, 0}, s, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, ids(got))

	got, err = Rank(domain.Embedding{1, 0}, s, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(got))
}

func TestRank_EmptyStore(t *testing.T) {
	s, err := vectorstore.New("", nil)
	require.NoError(t, err)

	got, err := Rank(domain.Embedding{1, 2, 3}, s, 7)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRank_Errors(t *testing.T) {
	s := newStore(t, map[string]domain.Embedding{"a": {1, 0}}, "a")

	_, err := Rank(domain.Embedding{1, 0, 0}, s, 1)
	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	_, err = Rank(domain.Embedding{1, 0}, s, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRank_BoundedAndSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vecs := map[string]domain.Embedding{}
	var order []string
	for i := 0; i < 200; i++ {
		id := string(rune('A'+i%26)) + string(rune('a'+i/26))
		v := make(domain.Embedding, 16)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vecs[id] = v
		order = append(order, id)
	}
	s := newStore(t, vecs, order...)
	query := vecs[order[42]]

	for _, n := range []int{1, 7, 50, 200, 500} {
		got, err := Rank(query, s, n)
		require.NoError(t, err)
		assert.Len(t, got, min(n, 200))
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
		assert.Equal(t, order[42], got[0].Record.ID)
	}
}
