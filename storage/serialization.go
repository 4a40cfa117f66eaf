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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docrag/core"
)

// float32Size is the at-rest size of one embedding component.
const float32Size = 4

// MarshalMetadata serializes DocumentMetadata to bytes.
func MarshalMetadata(meta *core.DocumentMetadata) []byte {
	buf := make([]byte, sizeMetadata(meta))
	n := ord.String.Marshal(meta.ID, buf)
	n += ord.String.Marshal(meta.Title, buf[n:])
	n += varint.Int.Marshal(meta.PageCount, buf[n:])
	n += varint.Int.Marshal(meta.PagesProcessed, buf[n:])
	n += ord.Bool.Marshal(meta.PageRange != nil, buf[n:])
	if meta.PageRange != nil {
		n += varint.Int.Marshal(meta.PageRange.Start, buf[n:])
		n += varint.Int.Marshal(meta.PageRange.End, buf[n:])
	}
	n += varint.Int.Marshal(meta.ChunkCount, buf[n:])
	n += varint.Int.Marshal(meta.ChunkTokenBudget, buf[n:])
	n += ord.String.Marshal(meta.EmbeddingModel, buf[n:])
	n += varint.Int.Marshal(meta.EstimatedTokenCount, buf[n:])
	varint.Int64.Marshal(meta.ProcessedAt.UnixMicro(), buf[n:])
	return buf
}

func sizeMetadata(meta *core.DocumentMetadata) int {
	size := ord.String.Size(meta.ID) +
		ord.String.Size(meta.Title) +
		varint.Int.Size(meta.PageCount) +
		varint.Int.Size(meta.PagesProcessed) +
		ord.Bool.Size(meta.PageRange != nil) +
		varint.Int.Size(meta.ChunkCount) +
		varint.Int.Size(meta.ChunkTokenBudget) +
		ord.String.Size(meta.EmbeddingModel) +
		varint.Int.Size(meta.EstimatedTokenCount) +
		varint.Int64.Size(meta.ProcessedAt.UnixMicro())
	if meta.PageRange != nil {
		size += varint.Int.Size(meta.PageRange.Start) + varint.Int.Size(meta.PageRange.End)
	}
	return size
}

// UnmarshalMetadata deserializes DocumentMetadata from bytes.
func UnmarshalMetadata(data []byte) (*core.DocumentMetadata, error) {
	d := decoder{bs: data}
	meta := &core.DocumentMetadata{}
	meta.ID = d.string()
	meta.Title = d.string()
	meta.PageCount = d.int()
	meta.PagesProcessed = d.int()
	if d.bool() {
		meta.PageRange = &core.PageRange{Start: d.int(), End: d.int()}
	}
	meta.ChunkCount = d.int()
	meta.ChunkTokenBudget = d.int()
	meta.EmbeddingModel = d.string()
	meta.EstimatedTokenCount = d.int()
	meta.ProcessedAt = time.UnixMicro(d.int64()).UTC()
	if d.err != nil {
		return nil, d.err
	}
	return meta, nil
}

// MarshalChunk serializes a Chunk to bytes. DocumentID and Text are not
// encoded; the document id is part of the record key and the text is
// reconstructed from the canonical text. Only the image context of the
// embedding text is stored. The embedding is written last.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, sizeChunk(chunk))
	n := varint.Int.Marshal(chunk.ChunkIndex, buf)
	n += varint.Int.Marshal(chunk.TextStart, buf[n:])
	n += varint.Int.Marshal(chunk.TextEnd, buf[n:])
	n += varint.Int.Marshal(len(chunk.PageReferences), buf[n:])
	for _, p := range chunk.PageReferences {
		n += varint.Int.Marshal(p, buf[n:])
	}
	n += ord.String.Marshal(chunk.ImageContext, buf[n:])
	n += ord.String.Marshal(chunk.EmbeddingModel, buf[n:])
	n += varint.Int.Marshal(len(chunk.Embedding), buf[n:])
	for _, f := range chunk.Embedding {
		n += raw.Float32.Marshal(f, buf[n:])
	}
	return buf
}

func sizeChunk(chunk *core.Chunk) int {
	size := varint.Int.Size(chunk.ChunkIndex) +
		varint.Int.Size(chunk.TextStart) +
		varint.Int.Size(chunk.TextEnd) +
		varint.Int.Size(len(chunk.PageReferences)) +
		ord.String.Size(chunk.ImageContext) +
		ord.String.Size(chunk.EmbeddingModel) +
		varint.Int.Size(len(chunk.Embedding)) +
		len(chunk.Embedding)*float32Size
	for _, p := range chunk.PageReferences {
		size += varint.Int.Size(p)
	}
	return size
}

// UnmarshalChunk deserializes a Chunk belonging to documentID.
// Text is left empty; see AttachChunkText.
func UnmarshalChunk(documentID string, data []byte) (*core.Chunk, error) {
	d := decoder{bs: data}
	chunk := &core.Chunk{DocumentID: documentID}
	chunk.ChunkIndex = d.int()
	chunk.TextStart = d.int()
	chunk.TextEnd = d.int()
	if refs := d.length(1); refs > 0 {
		chunk.PageReferences = make([]int, refs)
		for i := range chunk.PageReferences {
			chunk.PageReferences[i] = d.int()
		}
	}
	chunk.ImageContext = d.string()
	chunk.EmbeddingModel = d.string()
	if dims := d.length(float32Size); dims > 0 {
		chunk.Embedding = make([]float32, dims)
		for i := range chunk.Embedding {
			chunk.Embedding[i] = d.float32()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return chunk, nil
}

// MarshalPages serializes page records. Page text is not encoded; only its
// offsets into the canonical text and any image descriptions.
func MarshalPages(pages []core.PageRecord) []byte {
	size := varint.Int.Size(len(pages))
	for i := range pages {
		size += sizePage(&pages[i])
	}
	buf := make([]byte, size)
	n := varint.Int.Marshal(len(pages), buf)
	for i := range pages {
		p := &pages[i]
		n += varint.Int.Marshal(p.PageNumber, buf[n:])
		n += varint.Int.Marshal(p.Start, buf[n:])
		n += varint.Int.Marshal(p.End, buf[n:])
		n += varint.Int.Marshal(len(p.ImageDescriptions), buf[n:])
		for _, desc := range p.ImageDescriptions {
			n += ord.String.Marshal(desc, buf[n:])
		}
	}
	return buf
}

func sizePage(p *core.PageRecord) int {
	size := varint.Int.Size(p.PageNumber) +
		varint.Int.Size(p.Start) +
		varint.Int.Size(p.End) +
		varint.Int.Size(len(p.ImageDescriptions))
	for _, desc := range p.ImageDescriptions {
		size += ord.String.Size(desc)
	}
	return size
}

// UnmarshalPages deserializes page records without their text.
func UnmarshalPages(data []byte) ([]core.PageRecord, error) {
	d := decoder{bs: data}
	count := d.length(3)
	pages := make([]core.PageRecord, 0, count)
	for range count {
		p := core.PageRecord{
			PageNumber: d.int(),
			Start:      d.int(),
			End:        d.int(),
		}
		if descs := d.length(1); descs > 0 {
			p.ImageDescriptions = make([]string, descs)
			for i := range p.ImageDescriptions {
				p.ImageDescriptions[i] = d.string()
			}
		}
		pages = append(pages, p)
	}
	if d.err != nil {
		return nil, d.err
	}
	return pages, nil
}

// DecodePages deserializes page records and slices their text from the
// canonical text.
func DecodePages(data []byte, text string) ([]core.PageRecord, error) {
	pages, err := UnmarshalPages(data)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		p := &pages[i]
		if p.Start < 0 || p.Start > p.End || p.End > len(text) {
			return nil, fmt.Errorf("%w: page %d offsets [%d,%d) outside text of %d bytes",
				ErrSerializationFailed, p.PageNumber, p.Start, p.End, len(text))
		}
		p.Text = text[p.Start:p.End]
	}
	return pages, nil
}

// decoder walks a mus-encoded buffer, remembering the first error.
type decoder struct {
	bs  []byte
	off int
	err error
}

func (d *decoder) advance(n int, err error) {
	if err != nil {
		d.err = fmt.Errorf("%w: offset %d: %w", ErrSerializationFailed, d.off, err)
		return
	}
	d.off += n
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.off:])
	d.advance(n, err)
	return v
}

// length reads a collection length and rejects values that cannot fit in the
// remaining bytes given the minimum encoded size of one element.
func (d *decoder) length(minElemSize int) int {
	l := d.int()
	if d.err != nil {
		return 0
	}
	if l < 0 || l*minElemSize > len(d.bs)-d.off {
		d.err = fmt.Errorf("%w: length %d at offset %d", ErrTruncatedData, l, d.off)
		return 0
	}
	return l
}
