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

// Package ai provides abstractions for the AI services used by docrag.
//
// The package defines three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - PageDescriber: Describes rendered page images for scanned or visual pages
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, vLLM, LocalAI, OpenAI)
//   - ai/gemini: Google Gemini embeddings
//   - ai/local: Deterministic 384-dimension hashing embedder, no network
//   - ai/fallback: Remote-first embedder that degrades to ai/local
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors return interface types. Test constructors in ai/mock
// return concrete types so tests can inject behavior and count calls.
//
// # Usage Example
//
//	cfg := ai.DefaultConfig()
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder := fallback.New(provider.Embedder())
//	vec, err := embedder.EmbedText(ctx, "Hello world")
package ai
