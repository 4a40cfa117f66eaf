package core

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// SourceKind discriminates Source variants.
type SourceKind int

const (
	SourceFile SourceKind = iota + 1
	SourceURL
	SourceBytes
	SourceObject
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceURL:
		return "url"
	case SourceBytes:
		return "bytes"
	case SourceObject:
		return "object"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Source identifies where a document comes from. Exactly one variant's
// fields are meaningful, selected by Kind. Construct with the helper functions.
type Source struct {
	Kind   SourceKind
	Path   string // SourceFile
	URL    string // SourceURL
	Name   string // SourceBytes; optional
	Data   []byte // SourceBytes
	Bucket string // SourceObject
	Key    string // SourceObject
}

// FileSource reads a document from the local filesystem.
func FileSource(p string) Source {
	return Source{Kind: SourceFile, Path: p}
}

// URLSource fetches a document over HTTP(S).
func URLSource(u string) Source {
	return Source{Kind: SourceURL, URL: u}
}

// BytesSource ingests in-memory bytes. name may be empty.
func BytesSource(name string, data []byte) Source {
	return Source{Kind: SourceBytes, Name: name, Data: data}
}

// ObjectSource reads an object from S3-compatible storage.
func ObjectSource(bucket, key string) Source {
	return Source{Kind: SourceObject, Bucket: bucket, Key: key}
}

// ParseSource resolves a command-line style reference into a Source.
// s3://bucket/key and http(s):// references are recognized; anything else is a file path.
func ParseSource(ref string) (Source, error) {
	switch {
	case ref == "":
		return Source{}, fmt.Errorf("%w: empty reference", ErrInvalidSource)
	case strings.HasPrefix(ref, "s3://"):
		rest := strings.TrimPrefix(ref, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Source{}, fmt.Errorf("%w: malformed object reference %q", ErrInvalidSource, ref)
		}
		return ObjectSource(bucket, key), nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return URLSource(ref), nil
	default:
		return FileSource(ref), nil
	}
}

// BaseName returns the base name used for id derivation and titles.
func (s Source) BaseName() string {
	switch s.Kind {
	case SourceFile:
		return filepath.Base(s.Path)
	case SourceURL:
		u := s.URL
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
		u = strings.TrimRight(u, "/")
		if i := strings.Index(u, "://"); i >= 0 {
			u = u[i+3:]
		}
		return path.Base(u)
	case SourceBytes:
		return s.Name
	case SourceObject:
		return path.Base(s.Key)
	default:
		return ""
	}
}

func (s Source) String() string {
	switch s.Kind {
	case SourceFile:
		return s.Path
	case SourceURL:
		return s.URL
	case SourceBytes:
		if s.Name != "" {
			return s.Name
		}
		return fmt.Sprintf("<%d bytes>", len(s.Data))
	case SourceObject:
		return "s3://" + s.Bucket + "/" + s.Key
	default:
		return s.Kind.String()
	}
}

// DocumentIDFromName derives a stable document id from a file or URL base name.
// The extension is dropped, the rest lowercased and runs of other characters
// collapsed to '-'. Returns "" when nothing usable remains.
func DocumentIDFromName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// DocumentIDFromBytes derives an id for nameless content.
func DocumentIDFromBytes(data []byte) string {
	return "doc-" + IDFromBytes(data).Hex()
}

// TitleFromName turns a base name into a display title.
func TitleFromName(name string) string {
	t := strings.TrimSuffix(name, path.Ext(name))
	if t == "" {
		return name
	}
	return t
}
