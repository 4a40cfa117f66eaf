package tools

import "errors"

var (
	// ErrUnknownTool indicates no tool is registered under the name.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidTool indicates a tool without a name or handler.
	ErrInvalidTool = errors.New("invalid tool")

	// ErrInvalidArguments indicates tool arguments of the wrong shape.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
