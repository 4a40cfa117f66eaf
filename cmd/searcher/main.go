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

// Command searcher runs one query against every indexed document and prints
// the best passages across all of them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/search"
)

func init() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

type hit struct {
	documentID string
	result     search.Result
}

func main() {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load(os.Getenv("DOCRAG_CONFIG"))
	if err != nil {
		panic(err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		panic(err)
	}

	ctx := context.Background()
	lib, err := docrag.NewLibraryFromConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer lib.Close()

	query := "lantern"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	docs, err := lib.List(ctx)
	if err != nil {
		panic(err)
	}
	var hits []hit
	for _, doc := range docs {
		resp := lib.Search(ctx, doc.ID, query, search.DefaultTopK)
		if resp.Error != "" {
			slog.Warn("search failed", "document", doc.ID, "err", resp.Error)
			continue
		}
		for _, r := range resp.Results {
			hits = append(hits, hit{documentID: doc.ID, result: r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].result.Similarity > hits[j].result.Similarity
	})
	if len(hits) > search.DefaultTopK {
		hits = hits[:search.DefaultTopK]
	}

	fmt.Printf("Found %d hits in %d documents\n", len(hits), len(docs))
	for i, h := range hits {
		fmt.Printf("%d: %s#%d '%s' %v[%0.3f]\n", i, h.documentID, h.result.ChunkIndex, h.result.Text,
			h.result.PageReferences, h.result.Similarity)
	}
}
