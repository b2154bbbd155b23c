package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrClosed       = errors.New("event bus closed")
	ErrBackpressure = errors.New("event bus queue full")
	ErrHandlerPanic = errors.New("event handler panicked")
	ErrNilHandler   = errors.New("nil event handler")
)
