package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cysearch/internal/config"
	"cysearch/internal/vectorstore/csvfile"
	"cysearch/internal/vectorstore/qdrant"
	"cysearch/internal/vectorstore/sqlite"
)

func TestNewEmbedder_Hashed(t *testing.T) {
	emb, err := NewEmbedder(config.EmbedderConfig{Type: "hashed", Hashed: &config.HashedEmbedderConfig{Dimension: 32}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hashed-32", emb.Model())

	vec, err := emb.Embed(context.Background(), "intro to algorithms")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestNewEmbedder_OpenAIKey(t *testing.T) {
	t.Setenv("CYSEARCH_TEST_KEY", "")
	_, err := NewEmbedder(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "CYSEARCH_TEST_KEY"}}, nil)
	assert.Error(t, err)

	t.Setenv("CYSEARCH_TEST_KEY", "sk-test")
	emb, err := NewEmbedder(config.EmbedderConfig{Type: "openai", Model: "text-embedding-ada-002", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "CYSEARCH_TEST_KEY"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-ada-002", emb.Model())
}

func TestNewEmbedder_Unknown(t *testing.T) {
	_, err := NewEmbedder(config.EmbedderConfig{Type: "word2vec"}, nil)
	assert.ErrorContains(t, err, "unknown embedder")
}

func TestOpenArtifact(t *testing.T) {
	dir := t.TempDir()

	art, err := OpenArtifact(config.StoreConfig{Type: "csv", Path: filepath.Join(dir, "a.csv")}, "")
	require.NoError(t, err)
	assert.IsType(t, &csvfile.Source{}, art.Source)
	assert.NoError(t, art.Close())

	dbPath := filepath.Join(dir, "out.db")
	art, err = OpenArtifact(config.StoreConfig{Type: "csv"}, dbPath)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, art.Source)
	assert.Equal(t, dbPath, art.Path)
	assert.NoError(t, art.Close())

	art, err = OpenArtifact(config.StoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333", Collection: "course_info"}}, "")
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, art.Source)
	assert.Empty(t, art.Path)

	_, err = OpenArtifact(config.StoreConfig{Type: "qdrant"}, "")
	assert.Error(t, err)
	_, err = OpenArtifact(config.StoreConfig{Type: "parquet", Path: "x"}, "")
	assert.ErrorContains(t, err, "unknown vector store")
}
