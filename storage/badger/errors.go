package badger

import "errors"

// ErrBackendRequired is returned when a store is constructed without a backend.
var ErrBackendRequired = errors.New("badger backend is required")
