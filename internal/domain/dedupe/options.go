package dedupe

// Option configures the in-memory deduper.
type Option func(*window)

// WithMaxSize sets how many ids are remembered.
// If maxSize > 0 the oldest id is evicted once the window is full.
// If maxSize <= 0 the window is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *window) {
		d.maxSize = maxSize
	}
}
