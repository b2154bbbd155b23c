package bus

import (
	"time"

	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithQueueSize bounds the number of pending deliveries.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.workerCount = n
		}
	}
}

// WithOutcomeBuffer bounds the Outcomes channel.
func WithOutcomeBuffer(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.outcomeBuffer = n
		}
	}
}

// WithAllOutcomes publishes successful deliveries too, not only failures.
func WithAllOutcomes(v bool) Option {
	return func(b *Bus) {
		b.allOutcomes = v
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics records bus throughput and dropped outcomes.
func WithMetrics(m *metrics.Manager) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}
