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

import "errors"

// Ingestion and retrieval error taxonomy.
var (
	// ErrAcquisition indicates the source could not be read or fetched.
	ErrAcquisition = errors.New("acquisition failed")

	// ErrExtraction indicates page text could not be extracted.
	ErrExtraction = errors.New("extraction failed")

	// ErrPasswordProtected indicates the document is encrypted.
	ErrPasswordProtected = errors.New("document is password-protected")

	// ErrCorruptDocument indicates the document bytes could not be parsed.
	ErrCorruptDocument = errors.New("document is corrupt or unreadable")

	// ErrRange indicates an invalid or over-limit page range.
	ErrRange = errors.New("invalid page range")

	// ErrStorage indicates a document store failure.
	ErrStorage = errors.New("storage failure")

	// ErrQuotaExceeded indicates the store ran out of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrNotFound indicates an unknown document id.
	ErrNotFound = errors.New("document not found")

	// ErrCorruption indicates metadata exists but no chunks are retrievable.
	ErrCorruption = errors.New("document index is corrupt")
)

// Domain validation errors
var (
	// ErrInvalidMetadata indicates DocumentMetadata failed validation.
	ErrInvalidMetadata = errors.New("invalid document metadata")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidSource indicates a Source failed validation.
	ErrInvalidSource = errors.New("invalid source")

	// ErrEmptyDocumentID indicates the document ID is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidOffsets indicates chunk offsets do not describe a non-empty span.
	ErrInvalidOffsets = errors.New("chunk offsets out of bounds")
)

// Describe renders err as a message naming its likely cause.
// Unknown errors are returned verbatim.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPasswordProtected):
		return "The document is password-protected. Remove the password and try again: " + err.Error()
	case errors.Is(err, ErrCorruptDocument):
		return "The document appears to be corrupt or is not a supported format: " + err.Error()
	case errors.Is(err, ErrQuotaExceeded):
		return "Storage quota exceeded. Delete indexed documents to free space: " + err.Error()
	case errors.Is(err, ErrRange):
		return "The requested page range is invalid or too large: " + err.Error()
	case errors.Is(err, ErrNotFound):
		return "No indexed document with that id: " + err.Error()
	case errors.Is(err, ErrCorruption):
		return "The stored index for this document is damaged. Delete and re-index it: " + err.Error()
	case errors.Is(err, ErrAcquisition):
		return "The document could not be read: " + err.Error()
	case errors.Is(err, ErrExtraction):
		return "Text could not be extracted from the document: " + err.Error()
	case errors.Is(err, ErrStorage):
		return "The document store failed: " + err.Error()
	default:
		return err.Error()
	}
}
