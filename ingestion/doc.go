// Package ingestion turns a document source into a stored, searchable
// document.
//
// A Pipeline runs one document at a time through the states
// Acquiring → Extracting → Chunking → Embedding → Persisting → Ready, moving
// to Failed on the first unrecoverable error:
//   - Acquisition, extraction, page range and storage failures abort the run
//     and remove anything partially written.
//   - A chunk whose embedding fails is stored without one and the run
//     continues.
//
// Documents whose metadata already exists are not processed again; Index
// returns the stored metadata instead. Progress is reported as a fraction in
// [0, 1] on a separate goroutine so slow callbacks never stall ingestion.
package ingestion
