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

// Package search answers similarity and full-text queries against indexed documents.
//
// Rank orders chunks by cosine similarity between the query embedding and
// each chunk embedding. Chunks without an embedding sort last with similarity
// 0. Ties keep chunk order.
//
// Searcher loads documents into a DocumentCache and reports failures inside
// its response values rather than as Go errors, because its main caller is a
// tool-invocation layer that always needs a well-formed answer.
package search
