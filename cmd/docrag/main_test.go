package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %s not found", name)
	return nil
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("config has default value", func(t *testing.T) {
		var configFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "config" {
				configFlag = f
				break
			}
		}
		require.NotNil(t, configFlag)
		assert.Equal(t, "docrag.yaml", configFlag.Value)
		assert.Contains(t, configFlag.Aliases, "c")
	})

	t.Run("log-level has no default value", func(t *testing.T) {
		var levelFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "log-level" {
				levelFlag = f
				break
			}
		}
		require.NotNil(t, levelFlag)
		assert.Empty(t, levelFlag.Value)
		assert.Empty(t, levelFlag.EnvVars)
	})

	t.Run("top-k defaults to the search default", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		var topKFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "top-k" {
				topKFlag = f
				break
			}
		}
		require.NotNil(t, topKFlag)
		assert.Equal(t, search.DefaultTopK, topKFlag.Value)
	})

	t.Run("reembed flags have defaults", func(t *testing.T) {
		cmd := findCommand(t, app, "reembed")
		values := make(map[string]int)
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok {
				values[f.Name] = f.Value
			}
		}
		assert.Equal(t, 16, values["batch-size"])
		assert.Equal(t, 16, values["report-interval"])
		assert.Equal(t, 3, values["max-retries"])
	})
}

func TestParsePages(t *testing.T) {
	tests := []struct {
		in         string
		start, end int
		wantErr    bool
	}{
		{in: "3", start: 3, end: 3},
		{in: "1-50", start: 1, end: 50},
		{in: " 2 - 4 ", start: 2, end: 4},
		{in: "a-4", wantErr: true},
		{in: "2-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, err := parsePages(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

type runner struct {
	t    *testing.T
	base []string
}

func newRunner(t *testing.T) *runner {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvProvider, "local")
	return &runner{
		t: t,
		base: []string{
			"docrag",
			"--config", filepath.Join(dir, "missing.yaml"),
			"--backend", "sqlite",
			"--db", filepath.Join(dir, "db"),
			"--log-level", "error",
		},
	}
}

func (r *runner) run(args ...string) (string, string, error) {
	r.t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append(append([]string{}, r.base...), args...))
	return stdout.String(), stderr.String(), err
}

func TestSetup(t *testing.T) {
	t.Run("invalid log level", func(t *testing.T) {
		r := newRunner(t)
		r.base[len(r.base)-1] = "loud"
		_, _, err := r.run("list")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("unknown backend", func(t *testing.T) {
		r := newRunner(t)
		r.base[4] = "flatfile"
		_, _, err := r.run("list")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchard.txt")
	text := "Apples grow in orchards across the valley. " +
		"Pears ripen late in the autumn season. " +
		"Volcanoes erupt molten rock from deep underground."
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	r := newRunner(t)

	out, _, err := r.run("index", "--id", "orchard", "--title", "Orchard", path)
	require.NoError(t, err)
	assert.Equal(t, "orchard\n", out)

	t.Run("index again is a no-op", func(t *testing.T) {
		out, _, err := r.run("index", "--id", "orchard", path)
		require.NoError(t, err)
		assert.Equal(t, "orchard\n", out)
	})

	t.Run("list", func(t *testing.T) {
		out, _, err := r.run("list")
		require.NoError(t, err)
		assert.Contains(t, out, "orchard")
		assert.Contains(t, out, "Orchard")
		assert.Contains(t, out, "local-hash-384")
	})

	t.Run("list json", func(t *testing.T) {
		out, _, err := r.run("list", "--json")
		require.NoError(t, err)
		var docs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 1)
		assert.Equal(t, "orchard", docs[0]["ID"])
	})

	t.Run("load", func(t *testing.T) {
		out, _, err := r.run("load", "orchard")
		require.NoError(t, err)
		assert.Equal(t, "orchard loaded\n", out)
	})

	t.Run("search json", func(t *testing.T) {
		out, _, err := r.run("search", "--json", "-k", "20", "orchard", "apples", "orchards")
		require.NoError(t, err)
		var resp search.SearchResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "orchard", resp.DocumentID)
		assert.Equal(t, "apples orchards", resp.Query)
		assert.Empty(t, resp.Error)
		assert.NotEmpty(t, resp.Results)
		assert.LessOrEqual(t, len(resp.Results), search.MaxTopK)
	})

	t.Run("search text", func(t *testing.T) {
		out, _, err := r.run("search", "orchard", "molten", "rock")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "Found "))
		assert.Contains(t, out, "1. [")
	})

	t.Run("search requires a query", func(t *testing.T) {
		_, _, err := r.run("search", "orchard")
		require.Error(t, err)
	})

	t.Run("text", func(t *testing.T) {
		out, _, err := r.run("text", "orchard")
		require.NoError(t, err)
		assert.Contains(t, out, "Pears ripen late in the autumn season.")
		assert.NotContains(t, out, search.PageMarker(1))
	})

	t.Run("text with markers", func(t *testing.T) {
		out, _, err := r.run("text", "--markers", "orchard")
		require.NoError(t, err)
		assert.Contains(t, out, search.PageMarker(1))
	})

	t.Run("stats", func(t *testing.T) {
		out, _, err := r.run("stats")
		require.NoError(t, err)
		assert.Contains(t, out, "orchard")
		assert.Contains(t, out, "Total: ")
	})

	t.Run("reembed needs a remote provider", func(t *testing.T) {
		_, _, err := r.run("reembed")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reembedding failed")
	})

	t.Run("reembed validates flags", func(t *testing.T) {
		_, _, err := r.run("reembed", "--batch-size", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size")
	})

	t.Run("delete", func(t *testing.T) {
		out, _, err := r.run("delete", "orchard")
		require.NoError(t, err)
		assert.Equal(t, "orchard deleted\n", out)

		_, _, err = r.run("delete", "orchard")
		require.Error(t, err)

		_, _, err = r.run("text", "orchard")
		require.Error(t, err)
	})
}

func TestIndexCommandErrors(t *testing.T) {
	r := newRunner(t)

	t.Run("no sources", func(t *testing.T) {
		_, _, err := r.run("index")
		require.Error(t, err)
	})

	t.Run("id with several sources", func(t *testing.T) {
		_, _, err := r.run("index", "--id", "x", "a.txt", "b.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "single source")
	})

	t.Run("bad page range", func(t *testing.T) {
		_, _, err := r.run("index", "--pages", "one", "a.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page range")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := r.run("index", filepath.Join(t.TempDir(), "absent.txt"))
		require.Error(t, err)
	})

	t.Run("several sources report failures", func(t *testing.T) {
		dir := t.TempDir()
		good := filepath.Join(dir, "good.txt")
		require.NoError(t, os.WriteFile(good, []byte("Bananas are yellow when ripe."), 0o600))

		out, stderr, err := r.run("index", good, filepath.Join(dir, "absent.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 sources failed")
		assert.NotEmpty(t, strings.TrimSpace(out))
		assert.Contains(t, stderr, "absent.txt")
	})
}
