package params

import "errors"

var (
	// ErrIO is returned when a parameters location cannot be opened or read
	// completely.
	ErrIO = errors.New("parameters i/o error")
	// ErrFormat is returned when the parameter bytes do not decode into valid
	// key material for the requested circuit.
	ErrFormat = errors.New("invalid parameters format")
)
