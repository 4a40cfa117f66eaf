// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/acquire"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/reembed"
	"github.com/poiesic/docrag/search"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	reembedDefaults := reembed.DefaultConfig()
	return &cli.App{
		Name:  "docrag",
		Usage: "Index documents and search them by meaning",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				Value:   "docrag.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the document database",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Document store backend (badger, sqlite, memory)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index documents from files, URLs or s3://bucket/key references",
				ArgsUsage: "SOURCE...",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Document id (single source only)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (single source only)",
					},
					&cli.StringFlag{
						Name:  "pages",
						Usage: "Page range to index, e.g. 1-50",
					},
					&cli.IntFlag{
						Name:  "chunk-tokens",
						Usage: "Approximate tokens per chunk",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List indexed documents",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
			},
			{
				Name:      "load",
				Usage:     "Check that a document can be loaded",
				ArgsUsage: "ID",
				Action:    loadCommand,
			},
			{
				Name:      "search",
				Usage:     "Search a document",
				ArgsUsage: "ID QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   fmt.Sprintf("Number of passages to return, at most %d", search.MaxTopK),
						Value:   search.DefaultTopK,
					},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
			},
			{
				Name:      "text",
				Usage:     "Print the full text of a document",
				ArgsUsage: "ID",
				Action:    textCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "markers", Usage: "Insert a marker before each page"},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document",
				ArgsUsage: "ID",
				Action:    deleteCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show storage usage",
				Action: statsCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Repair chunks embedded locally or not at all",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Reembed every chunk, e.g. after changing the embedding model",
					},
					&cli.BoolFlag{
						Name:  "skip-local",
						Usage: "Only repair chunks without an embedding",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request",
						Value: reembedDefaults.BatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: reembedDefaults.ReportInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: reembedDefaults.MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: reembedDefaults.RetryDelay,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve search tools for every indexed document over MCP stdio",
				Action: serveCommand,
			},
		},
	}
}

// setup loads configuration and installs the logger.
func setup(c *cli.Context) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("backend") {
		cfg.Store.Backend = c.String("backend")
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	c.App.Metadata = map[string]any{configKey: cfg}
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openLibrary opens the configured library. sources are inspected so an S3
// client is only created when an s3:// source is indexed.
func openLibrary(c *cli.Context, sources []core.Source, opts ...docrag.Option) (*docrag.Library, error) {
	cfg := loadedConfig(c)
	for _, src := range sources {
		if src.Kind != core.SourceObject {
			continue
		}
		client, err := acquire.NewS3Client(c.Context, acquire.S3Config{
			Region:   cfg.Objects.Region,
			Endpoint: cfg.Objects.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, docrag.WithAcquirer(acquire.NewFetcher(acquire.WithObjectClient(client))))
		break
	}

	start := time.Now()
	lib, err := docrag.NewLibraryFromConfig(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	slog.Debug("opened library", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "elapsed", time.Since(start))
	return lib, nil
}
