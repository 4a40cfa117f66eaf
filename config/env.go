package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvProvider       = "DOCRAG_PROVIDER"
	EnvEmbeddingHost  = "DOCRAG_EMBEDDING_HOST"
	EnvEmbeddingModel = "DOCRAG_EMBEDDING_MODEL"
	EnvDescriberHost  = "DOCRAG_DESCRIBER_HOST"
	EnvDescriberModel = "DOCRAG_DESCRIBER_MODEL"
	EnvAPIKey         = "DOCRAG_API_KEY"
	EnvStoreBackend   = "DOCRAG_STORE_BACKEND"
	EnvDBPath         = "DOCRAG_DB_PATH"
	EnvLogLevel       = "DOCRAG_LOG_LEVEL"
	EnvS3Region       = "DOCRAG_S3_REGION"
	EnvS3Endpoint     = "DOCRAG_S3_ENDPOINT"
	EnvChunkTokens    = "DOCRAG_CHUNK_TOKENS"
	EnvMaxPages       = "DOCRAG_MAX_PAGES"
)

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given, without overriding variables already set. Missing files are
// skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with DOCRAG_* variables from the process
// environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, s := range []struct {
		key string
		dst *string
	}{
		{EnvProvider, &c.AI.Provider},
		{EnvEmbeddingHost, &c.AI.EmbeddingHost},
		{EnvEmbeddingModel, &c.AI.EmbeddingModel},
		{EnvDescriberHost, &c.AI.DescriberHost},
		{EnvDescriberModel, &c.AI.DescriberModel},
		{EnvAPIKey, &c.AI.APIKey},
		{EnvStoreBackend, &c.Store.Backend},
		{EnvDBPath, &c.Store.Path},
		{EnvLogLevel, &c.LogLevel},
		{EnvS3Region, &c.Objects.Region},
		{EnvS3Endpoint, &c.Objects.Endpoint},
	} {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{EnvChunkTokens, &c.Ingestion.ChunkTokens},
		{EnvMaxPages, &c.Ingestion.MaxPages},
	} {
		v, ok := lookup(n.key)
		if !ok || v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, n.key, v)
		}
		*n.dst = i
	}
	return nil
}

// ParseLevel parses a log level name: debug, info, warn or error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, name)
	}
}
