package config

import "errors"

// Sentinels returned by Load, LoadFile, Validate and Watch.
var (
	ErrInvalidConfig = errors.New("autodist config invalid")
	ErrLoadConfig    = errors.New("autodist config could not be read")
	ErrWatchConfig   = errors.New("autodist config cannot be watched")
)
