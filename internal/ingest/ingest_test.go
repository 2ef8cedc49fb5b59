package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cysearch/internal/domain"
	"cysearch/internal/embedding"
	"cysearch/internal/embedding/hashed"
	"cysearch/internal/ranker"
	"cysearch/internal/vectorstore"
	"cysearch/internal/vectorstore/csvfile"
	"cysearch/internal/vectorstore/sqlite"
)

const courses = `subject,course_code,course_title,credit_number,semester,prereq,course_info,link
Computer Science,COMS 474,Introduction to Machine Learning,3,Fall,COMS 311,Supervised and unsupervised machine learning algorithms.,https://catalog/coms
Mathematics,MATH 207,Matrices and Linear Transformations,3,"Fall, Spring",,Systems of linear equations and matrix algebra.,https://catalog/math
Art and Design,ARTIS 230,Ceramics,3,Spring,,Wheel throwing and hand building pottery.,https://catalog/art
Art and Design,ARTIS 490,Independent Study,1-3,,,,https://catalog/art
`

func newBuilder(t *testing.T) (*Builder, *hashed.Provider) {
	t.Helper()
	p := hashed.New(128)
	svc := embedding.NewService(p, embedding.Config{Model: p.ModelName()})
	return NewBuilder(svc, Options{Workers: 2}), p
}

func readCourses(t *testing.T) []domain.Record {
	t.Helper()
	recs, err := csvfile.ReadCourses(context.Background(), strings.NewReader(courses))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	return recs
}

func TestBuild_CSVArtifactIsSearchable(t *testing.T) {
	b, p := newBuilder(t)
	path := filepath.Join(t.TempDir(), "course_w_embeddings.csv")
	ctx := context.Background()

	built, err := b.Build(ctx, readCourses(t), csvfile.NewWriter(path))
	require.NoError(t, err)
	assert.Equal(t, 3, built.Len())

	loaded, err := vectorstore.Load(ctx, csvfile.NewSource(path), vectorstore.LoadOptions{Model: p.ModelName()})
	require.NoError(t, err)
	assert.Equal(t, p.ModelName(), loaded.Model())
	assert.Equal(t, 128, loaded.Dimension())

	// a record's own combined text ranks it first with score 1
	self := loaded.All()[2]
	q, err := p.Embed(ctx, self.Record.CombinedText, "")
	require.NoError(t, err)
	res, err := ranker.Rank(q, loaded, 3)
	require.NoError(t, err)
	assert.Equal(t, "ARTIS 230", res[0].Record.ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

func TestBuild_SQLiteArtifact(t *testing.T) {
	b, _ := newBuilder(t)
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "courses.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = b.Build(context.Background(), readCourses(t), db)
	require.NoError(t, err)

	loaded, err := vectorstore.Load(context.Background(), db, vectorstore.LoadOptions{})
	require.NoError(t, err)
	var ids []string
	for _, e := range loaded.All() {
		ids = append(ids, e.Record.ID)
	}
	assert.Equal(t, []string{"COMS 474", "MATH 207", "ARTIS 230"}, ids)
}

type recordingWriter struct{ called bool }

func (w *recordingWriter) Write(context.Context, *vectorstore.Batch) error {
	w.called = true
	return nil
}

func TestBuild_EmbeddingFailureWritesNothing(t *testing.T) {
	b, _ := newBuilder(t)
	recs := readCourses(t)
	// only stopwords: the hashed provider cannot embed it
	recs[1].CombinedText = "the and of"
	w := &recordingWriter{}

	_, err := b.Build(context.Background(), recs, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATH 207")
	assert.False(t, w.called)
}

func TestBuild_DuplicateIDsRejected(t *testing.T) {
	b, _ := newBuilder(t)
	recs := readCourses(t)
	recs[2].ID = recs[0].ID
	w := &recordingWriter{}

	_, err := b.Build(context.Background(), recs, w)
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.False(t, w.called)
}
