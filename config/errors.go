package config

import "errors"

// ErrInvalidConfig indicates a config file or value that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")
