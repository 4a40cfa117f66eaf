package docrag

import "errors"

var (
	// ErrClosed is returned by operations on a closed Library.
	ErrClosed = errors.New("library is closed")

	// ErrNoRemoteEmbedder is returned by Reembed when only the local embedder
	// is configured.
	ErrNoRemoteEmbedder = errors.New("no remote embedder configured")

	// ErrUnknownBackend is returned by OpenStore for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)
