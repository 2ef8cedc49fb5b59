package vectorstore_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
	"cysearch/internal/vectorstore/memory"
)

func entry(id string, vec ...float32) domain.Entry {
	return domain.Entry{
		Record:    domain.Record{ID: id, Title: id, CombinedText: "text of " + id},
		Embedding: vec,
	}
}

type failingSource struct{ err error }

func (f failingSource) Name() string { return "broken" }

func (f failingSource) Read(context.Context) (*vectorstore.Batch, error) { return nil, f.err }

type staticSource struct{ batch vectorstore.Batch }

func (s staticSource) Name() string { return "static" }

func (s staticSource) Read(context.Context) (*vectorstore.Batch, error) { return &s.batch, nil }

func TestLoad_KeepsInsertionOrder(t *testing.T) {
	src := memory.NewSource("m1")
	require.NoError(t, src.Upsert(entry("b", 1, 0), entry("a", 0, 1), entry("c", 1, 1)))

	s, err := vectorstore.Load(context.Background(), src, vectorstore.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Dimension())
	assert.Equal(t, "m1", s.Model())
	var ids []string
	for _, e := range s.All() {
		ids = append(ids, e.Record.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.Embedding{0, 1}, got.Embedding)
}

func TestLoad_EmptySourceIsValid(t *testing.T) {
	s, err := vectorstore.Load(context.Background(), memory.NewSource(""), vectorstore.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dimension())
}

func TestLoad_RejectsInvalidBatches(t *testing.T) {
	nan := float32(math.NaN())
	cases := map[string][]domain.Entry{
		"dimension mismatch": {entry("a", 1, 0), entry("b", 1, 0, 0)},
		"duplicate id":       {entry("a", 1, 0), entry("a", 0, 1)},
		"missing id":         {entry("", 1, 0)},
		"missing embedding":  {entry("a")},
		"non-finite value":   {entry("a", nan, 1)},
		"missing text": {{
			Record:    domain.Record{ID: "a"},
			Embedding: domain.Embedding{1},
		}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := vectorstore.Load(context.Background(), staticSource{vectorstore.Batch{Entries: entries}}, vectorstore.LoadOptions{})
			assert.Nil(t, s)
			require.ErrorIs(t, err, domain.ErrLoad)
			var le *domain.LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, "static", le.Source)
		})
	}
}

func TestLoad_DimensionMismatchIsReported(t *testing.T) {
	_, err := vectorstore.Load(context.Background(), staticSource{vectorstore.Batch{
		Entries: []domain.Entry{entry("a", 1, 0), entry("b", 1)},
	}}, vectorstore.LoadOptions{})

	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 1, dm.Actual)
}

func TestLoad_RejectsForeignModel(t *testing.T) {
	src := memory.NewSource("ada-002")
	require.NoError(t, src.Upsert(entry("a", 1)))

	_, err := vectorstore.Load(context.Background(), src, vectorstore.LoadOptions{Model: "text-embedding-3-small"})
	require.ErrorIs(t, err, domain.ErrLoad)
	assert.ErrorIs(t, err, domain.ErrModelSkew)
}

func TestLoad_UnreadableSource(t *testing.T) {
	cause := errors.New("disk gone")
	_, err := vectorstore.Load(context.Background(), failingSource{cause}, vectorstore.LoadOptions{})
	require.ErrorIs(t, err, domain.ErrLoad)
	assert.ErrorIs(t, err, cause)
}

func TestLoad_RowErrorNamesSource(t *testing.T) {
	rowErr := &domain.LoadError{Row: 3, RecordID: "COMS 474", Err: errors.New("malformed embedding")}
	_, err := vectorstore.Load(context.Background(), failingSource{rowErr}, vectorstore.LoadOptions{})

	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "broken", le.Source)
	assert.Equal(t, 3, le.Row)
	assert.Contains(t, err.Error(), "broken")
}

func TestVersionsAreUnique(t *testing.T) {
	a, err := vectorstore.New("", nil)
	require.NoError(t, err)
	b, err := vectorstore.New("", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), b.Version())
}

func TestHolder_SwapIsAtomic(t *testing.T) {
	first, err := vectorstore.New("", []domain.Entry{entry("a", 1)})
	require.NoError(t, err)
	second, err := vectorstore.New("", []domain.Entry{entry("b", 1), entry("c", 1)})
	require.NoError(t, err)

	h := vectorstore.NewHolder(first)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s := h.Current()
				n := s.Len()
				assert.True(t, n == 1 || n == 2)
				assert.Len(t, s.All(), n)
			}
		}()
	}
	prev := h.Swap(second)
	wg.Wait()

	assert.Same(t, first, prev)
	assert.Same(t, second, h.Current())
}

func TestHolder_NilServesEmptyStore(t *testing.T) {
	h := vectorstore.NewHolder(nil)
	require.NotNil(t, h.Current())
	assert.Equal(t, 0, h.Current().Len())
}
