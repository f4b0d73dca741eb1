package adapter

import "errors"

var (
	errAlreadyOpen = errors.New("device already open")
	errNotOpen     = errors.New("device not open")
	errShortWrite  = errors.New("device accepted zero bytes")
)

// ErrNoPrinter is returned when no USB printer matches the requested name.
var ErrNoPrinter = errors.New("cannot find printer")
