package model

import "errors"

// Sentinel kinds for model validation.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrUnknownTaskKind  = errors.New("unknown task kind")
	ErrInvalidConfig    = errors.New("invalid distribution config")
)
