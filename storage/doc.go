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

// Package storage provides the storage abstraction layer for docrag.
//
// This package defines the DocumentStore interface that decouples storage
// from ingestion and retrieval. Three backends implement it and can be
// selected at construction time:
//
//   - storage/badger: persistent BadgerDB store, or in-memory for tests
//   - storage/sqlite: persistent SQLite store
//   - storage/memory: map-backed store
//
// # Layout
//
// Each document owns three groups of records:
//
//   - metadata: one DocumentMetadata record
//   - content: the canonical text (core.ContentTypeText) and the page
//     records (core.ContentTypePages)
//   - chunks: one record per chunk index
//
// The canonical text is the only copy of the document text. Chunk and page
// records hold byte offsets into it, and stores rebuild their text on read
// with AttachChunkText and DecodePages.
//
// # Serialization
//
// Records are encoded with mus-go. Chunk records place the embedding last so
// StorageStats can separate vector bytes from chunk metadata bytes.
//
// # Thread Safety
//
// All implementations must be thread-safe. Writes to one document are
// serialized with a DocumentLocks instance so chunk offsets always resolve
// against the canonical text currently stored.
package storage
