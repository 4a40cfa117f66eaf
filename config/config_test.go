package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, 500, cfg.Ingestion.ChunkTokens)
	assert.Equal(t, 100, cfg.Ingestion.MaxPages)
	assert.Equal(t, 10, cfg.Ingestion.BatchSize)
	assert.Equal(t, 1000, cfg.Search.PreviewLength)
	assert.Equal(t, "embeddinggemma", cfg.AI.EmbeddingModel)
	assert.Equal(t, 2*time.Second, cfg.Heartbeat())
	assert.Equal(t, 30*time.Second, cfg.FallbackCooldown())
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "docrag.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: sqlite
  path: /tmp/docs.db
ai:
  provider: gemini
  api_key: secret
  embedding_model: text-embedding-004
ingestion:
  chunk_tokens: 250
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, cfg.Store.Backend)
		assert.Equal(t, "/tmp/docs.db", cfg.Store.Path)
		assert.Equal(t, ai.ProviderGemini, cfg.AI.Provider)
		assert.Equal(t, 250, cfg.Ingestion.ChunkTokens)
		assert.Equal(t, 100, cfg.Ingestion.MaxPages, "unset values keep defaults")
		require.NoError(t, cfg.Validate())
	})

	t.Run("toml", func(t *testing.T) {
		path := filepath.Join(dir, "docrag.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[store]
backend = "memory"

[ingestion]
max_pages = 40
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
		assert.Equal(t, 40, cfg.Ingestion.MaxPages)
		assert.Equal(t, 500, cfg.Ingestion.ChunkTokens)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o600))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Ingestion.ChunkTokens = 321
			cfg.AI.RequestsPerSecond = 2.5
			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"missing path", func(c *Config) { c.Store.Path = "" }},
		{"zero chunk tokens", func(c *Config) { c.Ingestion.ChunkTokens = 0 }},
		{"zero max pages", func(c *Config) { c.Ingestion.MaxPages = 0 }},
		{"zero concurrency", func(c *Config) { c.Ingestion.Concurrency = 0 }},
		{"negative heartbeat", func(c *Config) { c.Ingestion.HeartbeatSecs = -1 }},
		{"zero preview", func(c *Config) { c.Search.PreviewLength = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "acme" }},
		{"gemini without key", func(c *Config) { c.AI.Provider = ai.ProviderGemini }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = BackendMemory
		cfg.Store.Path = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestToAI(t *testing.T) {
	cfg := Default()
	cfg.AI.EmbeddingHost = "http://embed:8080"
	cfg.AI.TimeoutSecs = 5
	cfg.AI.RequestsPerSecond = 3

	aiCfg := cfg.ToAI()
	assert.Equal(t, "http://embed:8080", aiCfg.EmbeddingHost)
	assert.Equal(t, 5*time.Second, aiCfg.Timeout)
	assert.Equal(t, 3.0, aiCfg.RequestsPerSecond)
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://embed:8080/v1", aiCfg.EmbeddingHost)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEmbeddingModel: "nomic-embed-text",
		EnvDBPath:         "/data/docrag",
		EnvChunkTokens:    "200",
		EnvLogLevel:       "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "nomic-embed-text", cfg.AI.EmbeddingModel)
	assert.Equal(t, "/data/docrag", cfg.Store.Path)
	assert.Equal(t, 200, cfg.Ingestion.ChunkTokens)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)

	env[EnvMaxPages] = "many"
	assert.ErrorIs(t, Default().applyEnv(lookup), ErrInvalidConfig)

	t.Run("process environment", func(t *testing.T) {
		t.Setenv(EnvStoreBackend, BackendMemory)
		cfg := Default()
		require.NoError(t, cfg.ApplyEnv())
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOCRAG_API_KEY=from-file\n"), 0o600))
	t.Setenv(EnvAPIKey, "")
	os.Unsetenv(EnvAPIKey)

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv(EnvAPIKey))

	t.Setenv(EnvAPIKey, "from-process")
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-process", os.Getenv(EnvAPIKey), "existing variables win")
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
