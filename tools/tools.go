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

// Package tools describes callable actions that let an agent query indexed
// documents, and registries that expose them.
package tools

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/poiesic/docrag/search"
)

// MaxNameLength bounds tool names.
const MaxNameLength = 64

// Handler runs a tool. args holds the decoded JSON arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, described action with a JSON Schema for its arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     Handler
}

// Validate checks that the tool can be registered.
func (t Tool) Validate() error {
	if t.Name == "" || len(t.Name) > MaxNameLength {
		return fmt.Errorf("%w: name %q", ErrInvalidTool, t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, t.Name)
	}
	return nil
}

// Registry exposes tools to an agent framework.
type Registry interface {
	// Register adds t, replacing any tool with the same name.
	Register(t Tool) error

	// Unregister removes the named tool.
	// Returns ErrUnknownTool if no such tool is registered.
	Unregister(name string) error
}

// DocumentSearcher answers per-document queries.
type DocumentSearcher interface {
	Search(ctx context.Context, id, query string, topK int) *search.SearchResponse
	FullText(ctx context.Context, id string, includePageMarkers bool) *search.FullTextResponse
}

// SearchToolName names the search tool of document id.
func SearchToolName(id string) string {
	return toolName("search_", id)
}

// FullTextToolName names the full-text tool of document id.
func FullTextToolName(id string) string {
	return toolName("fulltext_", id)
}

// DocumentToolNames returns the names of every tool of document id.
func DocumentToolNames(id string) []string {
	return []string{SearchToolName(id), FullTextToolName(id)}
}

// nameHashLength is the length of the hex suffix that keeps rewritten names
// distinct.
const nameHashLength = 8

// toolName lowercases id and replaces characters outside [a-z0-9_-] with '_'.
// When that rewrites id, or the name would exceed MaxNameLength, the name is
// cut short and suffixed with a hash of id so distinct ids keep distinct names.
func toolName(prefix, id string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else if r >= 'A' && r <= 'Z' {
			b.WriteRune(r + 'a' - 'A')
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == prefix+id && len(name) <= MaxNameLength {
		return name
	}

	h, _ := blake2b.New(nameHashLength/2, nil)
	h.Write([]byte(id))
	suffix := "_" + hex.EncodeToString(h.Sum(nil))
	return name[:min(len(name), MaxNameLength-len(suffix))] + suffix
}

// DocumentTools builds the search and full-text tools of one document.
func DocumentTools(id, title string, s DocumentSearcher) []Tool {
	if title == "" {
		title = id
	}
	return []Tool{
		{
			Name: SearchToolName(id),
			Description: fmt.Sprintf("Search the document %q for passages relevant to a query. "+
				"Returns up to %d passages with their page numbers and similarity.", title, search.MaxTopK),
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "What to look for in the document"},
					"topK": {Type: "integer", Description: fmt.Sprintf(
						"Number of passages to return, 1 to %d (default %d)", search.MaxTopK, search.DefaultTopK)},
				},
				Required: []string{"query"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				query, err := stringArg(args, "query")
				if err != nil {
					return nil, err
				}
				topK, err := intArg(args, "topK")
				if err != nil {
					return nil, err
				}
				return s.Search(ctx, id, query, topK), nil
			},
		},
		{
			Name:        FullTextToolName(id),
			Description: fmt.Sprintf("Get the complete text of the document %q.", title),
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"includePageMarkers": {Type: "boolean", Description: "Insert a page marker before each page"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				markers, err := boolArg(args, "includePageMarkers")
				if err != nil {
					return nil, err
				}
				return s.FullText(ctx, id, markers), nil
			},
		},
	}
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArguments, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArguments, name)
	}
	return s, nil
}

// intArg returns 0 for a missing argument. JSON numbers decode as float64.
func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidArguments, name)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArguments, name)
	}
}

func boolArg(args map[string]any, name string) (bool, error) {
	switch v := args[name].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArguments, name)
	}
}
