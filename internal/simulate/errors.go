package simulate

import "errors"

var (
	ErrUnhealthy        = errors.New("service is not healthy")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrInvalidConfig    = errors.New("invalid simulation config")
)
