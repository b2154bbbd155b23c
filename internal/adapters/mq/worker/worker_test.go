package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/autodist/internal/adapters/mq/queue"
	worker "github.com/okian/autodist/internal/adapters/mq/worker"
	"github.com/okian/autodist/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

type funcDelivery func(ctx context.Context)

func (f funcDelivery) Deliver(ctx context.Context) { f(ctx) }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		w := worker.NewInMemoryWorker(q, worker.WithName("test"))
		go w.Run(ctx)

		convey.Convey("When deliveries are enqueued", func() {
			var ran atomic.Int64
			for i := 0; i < 3; i++ {
				q.Enqueue(ctx, funcDelivery(func(context.Context) { ran.Add(1) }))
			}

			convey.Convey("Then each runs once", func() {
				convey.So(waitFor(func() bool { return ran.Load() == 3 }), convey.ShouldBeTrue)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a delivery panics", func() {
			var after atomic.Bool
			q.Enqueue(ctx, funcDelivery(func(context.Context) { panic("boom") }))
			q.Enqueue(ctx, funcDelivery(func(context.Context) { after.Store(true) }))

			convey.Convey("Then the worker survives and keeps going", func() {
				convey.So(waitFor(after.Load), convey.ShouldBeTrue)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue closes", func() {
			_ = q.Close()

			convey.Convey("Then the worker exits on its own", func() {
				sctx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx := context.Background()
		m := metrics.NewManager()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithMetrics(m))
		p := worker.NewPool(4, q, worker.WithMetrics(m))
		p.Start(ctx)

		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When deliveries are queued and the pool shuts down", func() {
			var ran atomic.Int64
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, funcDelivery(func(context.Context) {
					time.Sleep(time.Millisecond)
					ran.Add(1)
				})), convey.ShouldBeTrue)
			}
			err := p.Shutdown(ctx)

			convey.Convey("Then every queued delivery is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ran.Load(), convey.ShouldEqual, 50)
				convey.So(p.Handled(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool stuck on a delivery", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		p := worker.NewPool(1, q)
		p.Start(ctx)
		release := make(chan struct{})
		defer close(release)
		q.Enqueue(ctx, funcDelivery(func(context.Context) { <-release }))

		convey.Convey("Then shutdown honours its deadline", func() {
			sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			convey.So(p.Shutdown(sctx), convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a pool with no explicit size", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue())
		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
