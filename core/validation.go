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

package core

import "fmt"

// MaxDocumentIDLength bounds document ids so they fit store keys and tool names.
const MaxDocumentIDLength = 200

// ValidateMetadata validates DocumentMetadata according to domain rules.
//
// Validation rules:
//   - ID must not be empty or longer than MaxDocumentIDLength
//   - counts must not be negative
//   - PagesProcessed must not exceed PageCount
//   - PageRange, when set, must be a valid range
func ValidateMetadata(meta *DocumentMetadata) error {
	if meta == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidMetadata)
	}
	if meta.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, ErrEmptyDocumentID)
	}
	if len(meta.ID) > MaxDocumentIDLength {
		return fmt.Errorf("%w: id longer than %d bytes", ErrInvalidMetadata, MaxDocumentIDLength)
	}
	if meta.PageCount < 0 || meta.PagesProcessed < 0 || meta.ChunkCount < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidMetadata)
	}
	if meta.PagesProcessed > meta.PageCount {
		return fmt.Errorf("%w: %d pages processed of %d", ErrInvalidMetadata, meta.PagesProcessed, meta.PageCount)
	}
	if meta.PageRange != nil {
		if err := ValidatePageRange(*meta.PageRange, meta.PageCount); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
		}
	}
	return nil
}

// ValidateChunk validates a Chunk against the length of its canonical text.
//
// Validation rules:
//   - DocumentID must not be empty
//   - ChunkIndex must not be negative
//   - 0 <= TextStart < TextEnd <= textLen
//
// NOT validated:
//   - Embedding (nil for degraded chunks)
func ValidateChunk(chunk *Chunk, textLen int) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}
	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.ChunkIndex)
	}
	if chunk.TextStart < 0 || chunk.TextStart >= chunk.TextEnd || chunk.TextEnd > textLen {
		return fmt.Errorf("%w: %w: [%d,%d) of %d", ErrInvalidChunk, ErrInvalidOffsets, chunk.TextStart, chunk.TextEnd, textLen)
	}
	return nil
}

// ValidatePageRange checks r against a document of pageCount pages.
func ValidatePageRange(r PageRange, pageCount int) error {
	if r.Start < 1 || r.End < r.Start {
		return fmt.Errorf("%w: %s", ErrRange, r)
	}
	if r.End > pageCount {
		return fmt.Errorf("%w: %s exceeds %d pages", ErrRange, r, pageCount)
	}
	return nil
}

// ValidateSource checks that the fields required by s.Kind are set.
func ValidateSource(s Source) error {
	switch s.Kind {
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidSource)
		}
	case SourceURL:
		if s.URL == "" {
			return fmt.Errorf("%w: empty url", ErrInvalidSource)
		}
	case SourceBytes:
		if len(s.Data) == 0 {
			return fmt.Errorf("%w: no data", ErrInvalidSource)
		}
	case SourceObject:
		if s.Bucket == "" || s.Key == "" {
			return fmt.Errorf("%w: bucket and key are required", ErrInvalidSource)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidSource, s.Kind)
	}
	return nil
}
