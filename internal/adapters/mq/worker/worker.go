// Package worker runs event bus deliveries taken off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/autodist/internal/adapters/mq/queue"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how workers receive deliveries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Delivery
	Len(ctx context.Context) int
}

// Worker runs deliveries until the queue closes or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	name    string
	handled *atomic.Int64

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger  logger.Logger
	metrics *metrics.Manager
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		handled:  &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run executes deliveries until the queue is closed and drained, ctx is
// cancelled or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case d, ok := <-items:
			if !ok {
				return
			}
			w.run(ctx, d)
		}
	}
}

// run executes one delivery. Deliveries recover their own panics; this is
// the last line so a worker never dies.
func (w *InMemoryWorker) run(ctx context.Context, d queue.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.RecordError("worker", "panic")
			w.logger.Error(ctx, "delivery panicked", logger.Any("panic", r))
		}
		w.handled.Add(1)
		w.queue.Len(ctx)
	}()
	d.Deliver(ctx)
}

// Shutdown stops the worker without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	handled atomic.Int64

	logger  logger.Logger
	metrics *metrics.Manager
}

// NewPool creates a pool of workerCount workers. Counts below one default to
// a multiple of the CPU count.
func NewPool(workerCount int, q Queue, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.NewNop(),
	}
	base := InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(&base)
	}
	p.logger = base.logger.Named("worker-pool")
	p.metrics = base.metrics

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
		w.handled = &p.handled
		p.workers[i] = w
	}
	p.metrics.UpdateBusWorkers(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Handled returns the number of deliveries the pool has executed.
func (p *Pool) Handled() int64 {
	return p.handled.Load()
}

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it and waits for them. If
// ctx expires first the remaining workers are stopped without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.stop()
		}
	}
	p.metrics.UpdateBusWorkers(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
	}
	return nil
}
