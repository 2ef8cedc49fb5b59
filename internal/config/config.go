package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	AllowNoKey bool   `yaml:"allow_no_key"`
}

// HashedEmbedderConfig configures the offline feature-hashing embedder.
type HashedEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type             string                `yaml:"type"`
	Model            string                `yaml:"model"`
	MaxTokens        int                   `yaml:"max_tokens"`
	TimeoutSecs      int                   `yaml:"timeout_secs"`
	MaxRetries       int                   `yaml:"max_retries"`
	InitialBackoffMs int                   `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int                   `yaml:"max_backoff_ms"`
	BreakerFailures  int                   `yaml:"breaker_failures"`
	BreakerOpenSecs  int                   `yaml:"breaker_open_secs"`
	OpenAI           *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Hashed           *HashedEmbedderConfig `yaml:"hashed,omitempty"`
}

// Timeout is the per-attempt provider timeout.
func (c EmbedderConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

func (c EmbedderConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

func (c EmbedderConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// StoreConfig selects where the embeddings artifact lives.
type StoreConfig struct {
	Type   string        `yaml:"type"`
	Path   string        `yaml:"path"`
	Watch  bool          `yaml:"watch"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	PageSize    int    `yaml:"page_size"`
}

// SearchConfig tunes the query pipeline.
type SearchConfig struct {
	DefaultN  int `yaml:"default_n"`
	CacheSize int `yaml:"cache_size"`
}

// IngestConfig tunes artifact building.
type IngestConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/cysearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/cysearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cysearch", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "openai"},
		Store:    StoreConfig{Type: "csv"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "openai"
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 8000
	}
	if e.TimeoutSecs == 0 {
		e.TimeoutSecs = 30
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.InitialBackoffMs == 0 {
		e.InitialBackoffMs = 200
	}
	if e.MaxBackoffMs == 0 {
		e.MaxBackoffMs = 5000
	}
	if e.BreakerFailures == 0 {
		e.BreakerFailures = 10
	}
	if e.BreakerOpenSecs == 0 {
		e.BreakerOpenSecs = 30
	}
	switch e.Type {
	case "openai":
		if e.OpenAI == nil {
			e.OpenAI = &OpenAIEmbedderConfig{}
		}
		if e.OpenAI.BaseURL == "" {
			e.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if e.OpenAI.APIKeyEnv == "" {
			e.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if e.Model == "" {
			e.Model = "text-embedding-ada-002"
		}
	case "hashed":
		if e.Hashed == nil {
			e.Hashed = &HashedEmbedderConfig{}
		}
		if e.Hashed.Dimension == 0 {
			e.Hashed.Dimension = 256
		}
	}

	s := &cfg.Store
	if s.Type == "" {
		s.Type = "csv"
	}
	if s.Path == "" {
		switch s.Type {
		case "sqlite":
			s.Path = "data/course_w_embeddings.db"
		case "csv":
			s.Path = "data/course_w_embeddings.csv"
		}
	}
	if s.Type == "qdrant" && s.Qdrant != nil {
		if s.Qdrant.URL == "" {
			s.Qdrant.URL = "http://localhost:6333"
		}
		if s.Qdrant.Collection == "" {
			s.Qdrant.Collection = "course_info"
		}
		if s.Qdrant.TimeoutSecs == 0 {
			s.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Search.DefaultN == 0 {
		cfg.Search.DefaultN = 7
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 256
	}
	if cfg.Ingest.RequestsPerSecond == 0 {
		cfg.Ingest.RequestsPerSecond = 5
	}
	if cfg.Ingest.Burst == 0 {
		cfg.Ingest.Burst = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
