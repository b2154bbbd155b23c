package keylock_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/autodist/pkg/keylock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocker(t *testing.T) {
	Convey("Given a keyed locker", t, func() {
		l := keylock.New()

		Convey("When many goroutines contend on the same key", func() {
			var inside, maxInside atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock := l.Lock("worker-1")
					defer unlock()
					n := inside.Add(1)
					for {
						m := maxInside.Load()
						if n <= m || maxInside.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					inside.Add(-1)
				}()
			}
			wg.Wait()

			Convey("Then only one holds it at a time and the entry is released", func() {
				So(maxInside.Load(), ShouldEqual, 1)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When different keys are locked", func() {
			unlockA := l.Lock("a")
			done := make(chan struct{})
			go func() {
				unlockB := l.Lock("b")
				unlockB()
				close(done)
			}()

			Convey("Then they do not block each other", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("lock on b blocked behind a")
				}
				unlockA()
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When unlock is called twice", func() {
			unlock := l.Lock("a")
			unlock()

			Convey("Then the second call is a no-op", func() {
				So(unlock, ShouldNotPanic)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When using Do", func() {
			want := errors.New("boom")
			err := l.Do("a", func() error { return want })

			Convey("Then the function error is returned and the key released", func() {
				So(err, ShouldEqual, want)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When using the zero value", func() {
			var zero keylock.Locker
			unlock := zero.Lock("k")
			unlock()

			Convey("Then it works without New", func() {
				So(zero.Len(), ShouldEqual, 0)
			})
		})
	})
}
