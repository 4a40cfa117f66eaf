// Package config loads docrag settings from a YAML or TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/docrag/ai"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// StoreConfig selects the document store.
type StoreConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
}

// AIConfig configures the embedding and page description services.
type AIConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"`
	EmbeddingHost     string  `yaml:"embedding_host" toml:"embedding_host"`
	EmbeddingModel    string  `yaml:"embedding_model" toml:"embedding_model"`
	DescriberHost     string  `yaml:"describer_host" toml:"describer_host"`
	DescriberModel    string  `yaml:"describer_model" toml:"describer_model"`
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	// FallbackCooldownSecs skips the remote embedder for this long after it fails.
	FallbackCooldownSecs int `yaml:"fallback_cooldown_secs" toml:"fallback_cooldown_secs"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	ChunkTokens   int `yaml:"chunk_tokens" toml:"chunk_tokens"`
	MaxPages      int `yaml:"max_pages" toml:"max_pages"`
	BatchSize     int `yaml:"batch_size" toml:"batch_size"`
	HeartbeatSecs int `yaml:"heartbeat_secs" toml:"heartbeat_secs"`
	Concurrency   int `yaml:"concurrency" toml:"concurrency"`
}

// SearchConfig tunes query results.
type SearchConfig struct {
	PreviewLength int `yaml:"preview_length" toml:"preview_length"`
}

// ObjectsConfig configures access to s3:// sources. Credentials come from
// the AWS default chain.
type ObjectsConfig struct {
	Region   string `yaml:"region" toml:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

// Config is the root configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	AI        AIConfig        `yaml:"ai" toml:"ai"`
	Ingestion IngestionConfig `yaml:"ingestion" toml:"ingestion"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Objects   ObjectsConfig   `yaml:"objects" toml:"objects"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Backend: BackendBadger,
			Path:    defaultStorePath(),
		},
		AI: AIConfig{
			Provider:             aiDefaults.Provider,
			EmbeddingHost:        aiDefaults.EmbeddingHost,
			EmbeddingModel:       aiDefaults.EmbeddingModel,
			DescriberHost:        aiDefaults.DescriberHost,
			DescriberModel:       aiDefaults.DescriberModel,
			TimeoutSecs:          int(aiDefaults.Timeout / time.Second),
			MaxRetries:           aiDefaults.MaxRetries,
			FallbackCooldownSecs: 30,
		},
		Ingestion: IngestionConfig{
			ChunkTokens:   500,
			MaxPages:      100,
			BatchSize:     10,
			HeartbeatSecs: 2,
			Concurrency:   2,
		},
		Search: SearchConfig{
			PreviewLength: 1000,
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docrag"
	}
	return filepath.Join(home, ".docrag", "db")
}

// Load reads a config file over the defaults. The format follows the
// extension: .toml for TOML, anything else for YAML. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in the format of its extension, creating
// directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBadger, BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store path is required for %s", ErrInvalidConfig, c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"chunk_tokens", c.Ingestion.ChunkTokens},
		{"max_pages", c.Ingestion.MaxPages},
		{"batch_size", c.Ingestion.BatchSize},
		{"concurrency", c.Ingestion.Concurrency},
	} {
		if f.value < 1 {
			return fmt.Errorf("%w: ingestion %s must be positive", ErrInvalidConfig, f.name)
		}
	}
	if c.Ingestion.HeartbeatSecs < 0 || c.AI.FallbackCooldownSecs < 0 || c.AI.TimeoutSecs < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.Search.PreviewLength < 1 {
		return fmt.Errorf("%w: preview_length must be positive", ErrInvalidConfig)
	}
	if err := c.ToAI().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ToAI converts the AI section into an ai.Config.
func (c *Config) ToAI() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithDescriberHost(c.AI.DescriberHost),
		ai.WithDescriberModel(c.AI.DescriberModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTimeout(time.Duration(c.AI.TimeoutSecs)*time.Second),
		ai.WithMaxRetries(c.AI.MaxRetries),
		ai.WithRequestsPerSecond(c.AI.RequestsPerSecond),
	)
}

// Heartbeat returns the ingestion heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Ingestion.HeartbeatSecs) * time.Second
}

// FallbackCooldown returns how long the remote embedder is skipped after
// a failure.
func (c *Config) FallbackCooldown() time.Duration {
	return time.Duration(c.AI.FallbackCooldownSecs) * time.Second
}
