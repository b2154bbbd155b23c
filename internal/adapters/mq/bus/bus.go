// Package bus is the in-process event bus.
//
// Emit stamps an event and enqueues one delivery per subscribed handler; a
// worker pool runs the deliveries, so the emitter never waits for handlers.
// Every handler runs in isolation: a returned error or a panic is logged and
// published as an Outcome, and never reaches other handlers or the emitter.
// Nothing survives a process restart.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/autodist/internal/adapters/mq/queue"
	"github.com/okian/autodist/internal/adapters/mq/worker"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

const (
	defaultQueueSize     = 4096
	defaultWorkerCount   = 8
	defaultOutcomeBuffer = 256
)

// Handler consumes an event.
type Handler func(ctx context.Context, ev model.Event) error

// SubscriptionID identifies a registered handler.
type SubscriptionID string

// Outcome is the result of one handler run.
type Outcome struct {
	SubscriptionID SubscriptionID
	Event          model.Event
	Err            error
	Duration       time.Duration
}

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an explicit registry of subscribers plus its dispatch machinery.
type Bus struct {
	mu     sync.RWMutex
	global []subscription
	typed  map[model.EventType][]subscription

	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	outcomes chan Outcome

	started atomic.Bool
	closed  atomic.Bool
	// outMu guards sends on outcomes against its close.
	outMu        sync.RWMutex
	outcomesDone bool

	queueSize     int
	workerCount   int
	outcomeBuffer int
	allOutcomes   bool

	now     func() time.Time
	log     logger.Logger
	metrics *metrics.Manager
}

// New creates a Bus. Call Start to begin dispatching.
func New(opts ...Option) *Bus {
	b := &Bus{
		typed:         make(map[model.EventType][]subscription),
		queueSize:     defaultQueueSize,
		workerCount:   defaultWorkerCount,
		outcomeBuffer: defaultOutcomeBuffer,
		now:           time.Now,
		log:           logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("bus")
	b.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(b.queueSize),
		queue.WithMetrics(b.metrics),
	)
	b.pool = worker.NewPool(b.workerCount, b.queue,
		worker.WithLogger(b.log),
		worker.WithMetrics(b.metrics),
	)
	b.outcomes = make(chan Outcome, b.outcomeBuffer)
	return b
}

// Start launches the dispatch workers. Deliveries emitted earlier wait in
// the queue until then.
func (b *Bus) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.pool.Start(ctx)
	b.log.Info(ctx, "event bus started",
		logger.Int("workers", b.pool.Size()),
		logger.Int("queue_size", b.queueSize))
}

// Close stops accepting events, drains queued deliveries and closes the
// Outcomes channel.
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if b.started.Load() {
		err = b.pool.Shutdown(ctx)
	} else {
		err = b.queue.Close()
	}
	b.outMu.Lock()
	b.outcomesDone = true
	close(b.outcomes)
	b.outMu.Unlock()
	b.log.Info(ctx, "event bus closed")
	return err
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) (SubscriptionID, error) {
	if handler == nil {
		return "", ErrNilHandler
	}
	sub := subscription{id: SubscriptionID(uuid.NewString()), handler: handler}
	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()
	return sub.id, nil
}

// SubscribeToAll registers handler for every event.
func (b *Bus) SubscribeToAll(handler Handler) (SubscriptionID, error) {
	if handler == nil {
		return "", ErrNilHandler
	}
	sub := subscription{id: SubscriptionID(uuid.NewString()), handler: handler}
	b.mu.Lock()
	b.global = append(b.global, sub)
	b.mu.Unlock()
	return sub.id, nil
}

// Unsubscribe removes a handler. It reports whether id was registered.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := remove(b.global, id); ok {
		b.global = subs
		return true
	}
	for et, list := range b.typed {
		if subs, ok := remove(list, id); ok {
			if len(subs) == 0 {
				delete(b.typed, et)
			} else {
				b.typed[et] = subs
			}
			return true
		}
	}
	return false
}

func remove(list []subscription, id SubscriptionID) ([]subscription, bool) {
	for i, s := range list {
		if s.id == id {
			out := make([]subscription, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}

// Outcomes returns the channel handler outcomes are published on. Sends
// never block; outcomes are dropped when the buffer is full.
func (b *Bus) Outcomes() <-chan Outcome {
	return b.outcomes
}

// Emit stamps and dispatches an event without waiting for handlers. When
// some deliveries could not be queued the event is still returned along with
// an error wrapping ErrBackpressure.
func (b *Bus) Emit(ctx context.Context, eventType model.EventType, payload model.Payload) (model.Event, error) {
	ev := b.stamp(eventType, payload)
	if b.closed.Load() {
		return ev, ErrClosed
	}
	b.metrics.RecordEventEmitted(string(eventType))

	dropped := 0
	for _, sub := range b.snapshot(eventType) {
		d := delivery{bus: b, sub: sub, event: ev}
		if b.queue.Enqueue(ctx, d) {
			continue
		}
		if b.queue.IsClosed() {
			return ev, ErrClosed
		}
		dropped++
		b.metrics.RecordDelivery(metrics.DeliveryBackpressure, 0)
		b.log.Warn(ctx, "delivery dropped, queue full",
			logger.String("subscription_id", string(sub.id)),
			logger.String("event_type", string(eventType)))
		b.publish(Outcome{SubscriptionID: sub.id, Event: ev, Err: ErrBackpressure})
	}
	if dropped > 0 {
		return ev, fmt.Errorf("%d deliveries dropped: %w", dropped, ErrBackpressure)
	}
	return ev, nil
}

// EmitSync runs every handler concurrently and waits for all of them.
// Outcomes are returned in subscription order.
func (b *Bus) EmitSync(ctx context.Context, eventType model.EventType, payload model.Payload) (model.Event, []Outcome) {
	ev := b.stamp(eventType, payload)
	if b.closed.Load() {
		return ev, nil
	}
	b.metrics.RecordEventEmitted(string(eventType))

	subs := b.snapshot(eventType)
	out := make([]Outcome, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = b.run(ctx, sub, ev)
		}()
	}
	wg.Wait()
	return ev, out
}

func (b *Bus) stamp(eventType model.EventType, payload model.Payload) model.Event {
	return model.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}
}

// snapshot copies global then type-scoped subscriptions.
func (b *Bus) snapshot(eventType model.EventType) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	typed := b.typed[eventType]
	out := make([]subscription, 0, len(b.global)+len(typed))
	out = append(out, b.global...)
	return append(out, typed...)
}

// run executes one handler and records its outcome.
func (b *Bus) run(ctx context.Context, sub subscription, ev model.Event) (o Outcome) {
	start := time.Now()
	o = Outcome{SubscriptionID: sub.id, Event: ev}
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		o.Duration = time.Since(start)
		b.finish(ctx, o)
	}()
	o.Err = sub.handler(ctx, ev)
	return o
}

func (b *Bus) finish(ctx context.Context, o Outcome) {
	ms := float64(o.Duration.Microseconds()) / 1000
	switch {
	case o.Err == nil:
		b.metrics.RecordDelivery(metrics.DeliveryOK, ms)
		if b.allOutcomes {
			b.publish(o)
		}
		return
	case errors.Is(o.Err, ErrHandlerPanic):
		b.metrics.RecordDelivery(metrics.DeliveryPanic, ms)
	default:
		b.metrics.RecordDelivery(metrics.DeliveryFailed, ms)
	}
	b.log.Error(ctx, "event handler failed",
		logger.String("subscription_id", string(o.SubscriptionID)),
		logger.String("event_type", string(o.Event.Type)),
		logger.String("event_id", o.Event.ID),
		logger.Error(o.Err))
	b.publish(o)
}

func (b *Bus) publish(o Outcome) {
	b.outMu.RLock()
	defer b.outMu.RUnlock()
	if b.outcomesDone {
		return
	}
	select {
	case b.outcomes <- o:
	default:
		b.metrics.RecordOutcomeDropped()
	}
}

// delivery is one queued handler invocation.
type delivery struct {
	bus   *Bus
	sub   subscription
	event model.Event
}

func (d delivery) Deliver(ctx context.Context) {
	d.bus.run(ctx, d.sub, d.event)
}
