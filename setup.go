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

package docrag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/gemini"
	"github.com/poiesic/docrag/ai/openai"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/search"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/poiesic/docrag/storage/memory"
	"github.com/poiesic/docrag/storage/sqlite"
)

// OpenStore opens the document store named by backend at path.
func OpenStore(backend, path string, logger *slog.Logger) (storage.DocumentStore, error) {
	switch backend {
	case config.BackendBadger, "":
		return badger.Open(path, path == "", logger)
	case config.BackendSQLite:
		return sqlite.NewStore(path, logger)
	case config.BackendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// NewProvider creates the AI provider selected by cfg.Provider. The local
// provider has no remote services and yields nil.
func NewProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg)
	case ai.ProviderLocal:
		return nil, nil
	default:
		return openai.NewProvider(cfg)
	}
}

// NewLibraryFromConfig opens the configured store and provider and builds a
// Library that owns both.
func NewLibraryFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Library, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg.Store.Backend, cfg.Store.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	provider, err := NewProvider(ctx, cfg.ToAI())
	if err != nil {
		store.Close()
		return nil, err
	}

	base := []Option{
		WithStore(store, true),
		WithProvider(provider, true),
		WithConcurrency(cfg.Ingestion.Concurrency),
		WithFallbackCooldown(cfg.FallbackCooldown()),
		WithPipelineOptions(ingestionOptions(cfg)...),
		WithSearchOptions(searchOptions(cfg)...),
	}
	lib, err := NewLibrary(append(base, opts...)...)
	if err != nil {
		if provider != nil {
			provider.Close()
		}
		store.Close()
		return nil, err
	}
	return lib, nil
}

func ingestionOptions(cfg *config.Config) []ingestion.Option {
	return []ingestion.Option{
		ingestion.WithChunkTokens(cfg.Ingestion.ChunkTokens),
		ingestion.WithMaxPages(cfg.Ingestion.MaxPages),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithHeartbeat(cfg.Heartbeat()),
	}
}

func searchOptions(cfg *config.Config) []search.Option {
	return []search.Option{search.WithPreviewLength(cfg.Search.PreviewLength)}
}
