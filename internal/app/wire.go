// Package app assembles configured components for the command binaries.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"cysearch/internal/config"
	"cysearch/internal/embedding"
	"cysearch/internal/embedding/hashed"
	"cysearch/internal/embedding/openai"
	"cysearch/internal/vectorstore"
	"cysearch/internal/vectorstore/csvfile"
	"cysearch/internal/vectorstore/qdrant"
	"cysearch/internal/vectorstore/sqlite"
)

// NewEmbedder builds the configured provider wrapped in the retrying embedder.
func NewEmbedder(cfg config.EmbedderConfig, logger *slog.Logger) (*embedding.Service, error) {
	var provider embedding.Provider
	model := cfg.Model
	switch cfg.Type {
	case "openai", "":
		oc := config.OpenAIEmbedderConfig{}
		if cfg.OpenAI != nil {
			oc = *cfg.OpenAI
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			AllowNoKey: oc.AllowNoKey,
			Timeout:    cfg.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		provider = client
	case "hashed":
		dim := 0
		if cfg.Hashed != nil {
			dim = cfg.Hashed.Dimension
		}
		p := hashed.New(dim)
		if model == "" {
			model = p.ModelName()
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if cfg.BreakerFailures > 0 {
		provider = embedding.NewBreakerProvider(provider, embedding.BreakerConfig{
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
			OpenTimeout:         time.Duration(cfg.BreakerOpenSecs) * time.Second,
			Logger:              logger,
		})
	}
	return embedding.NewService(provider, embedding.Config{
		Model:           model,
		MaxTokens:       cfg.MaxTokens,
		Timeout:         cfg.Timeout(),
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialBackoff(),
		MaxInterval:     cfg.MaxBackoff(),
		Logger:          logger,
	}), nil
}

// Artifact is an opened artifact location. Close releases any handle it holds.
type Artifact struct {
	Source vectorstore.Source
	Writer vectorstore.Writer
	// Path is the local file backing the artifact, empty for remote stores.
	Path  string
	close func() error
}

func (a *Artifact) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// OpenArtifact opens the store described by cfg. A non-empty path overrides
// cfg.Path, and for a local path its extension picks csv or sqlite.
func OpenArtifact(cfg config.StoreConfig, path string) (*Artifact, error) {
	typ := cfg.Type
	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".db", ".sqlite", ".sqlite3":
			typ = "sqlite"
		case ".csv":
			typ = "csv"
		}
	} else {
		path = cfg.Path
	}
	switch typ {
	case "csv", "":
		if path == "" {
			return nil, fmt.Errorf("csv store path missing")
		}
		return &Artifact{Source: csvfile.NewSource(path), Writer: csvfile.NewWriter(path), Path: path}, nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite store path missing")
		}
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return &Artifact{Source: st, Writer: st, Path: path, close: st.Close}, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		st := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
			PageSize:   cfg.Qdrant.PageSize,
		})
		return &Artifact{Source: st, Writer: st}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", typ)
	}
}
