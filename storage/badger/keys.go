package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/docrag/core"
)

// Key prefixes for different data types
const (
	metadataPrefix = "docmeta"
	contentPrefix  = "doccont"
	chunkPrefix    = "docchnk"
)

// makeDocPrefix builds prefix:len(id):id. The length keeps ids that share a
// prefix ("doc", "doc-2") from overlapping in prefix scans.
func makeDocPrefix(prefix, id string) []byte {
	buf := make([]byte, 0, len(prefix)+1+2+len(id))
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(id)))
	buf = append(buf, id...)
	return buf
}

// makeMetadataKey generates a key for a document's metadata record.
func makeMetadataKey(id string) []byte {
	return makeDocPrefix(metadataPrefix, id)
}

// makeContentKey generates a key for a content record.
// Format: prefix:len:id:type
func makeContentKey(id string, contentType core.ContentType) []byte {
	key := makeDocPrefix(contentPrefix, id)
	key = append(key, ':')
	return append(key, contentType...)
}

// makeChunkKey generates a key for a chunk record.
// Format: prefix:len:id:index
func makeChunkKey(id string, index int) []byte {
	key := makePartialChunkKey(id)
	// Write in BigEndian order so lexicographic sort works correctly
	return binary.BigEndian.AppendUint32(key, uint32(index))
}

// makePartialChunkKey generates the prefix shared by all chunks of id.
func makePartialChunkKey(id string) []byte {
	key := makeDocPrefix(chunkPrefix, id)
	return append(key, ':')
}

// makePartialContentKey generates the prefix shared by all content of id.
func makePartialContentKey(id string) []byte {
	key := makeDocPrefix(contentPrefix, id)
	return append(key, ':')
}

// contentTypeFromKey extracts the content type from a content key of id.
func contentTypeFromKey(id string, key []byte) core.ContentType {
	return core.ContentType(bytes.TrimPrefix(key, makePartialContentKey(id)))
}
