package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/arenagrade/internal/domain/dedupe"
)

func TestInFlightGuard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new guard", t, func() {
		g := dedupe.NewInFlightGuard()
		So(g.Size(), ShouldEqual, 0)

		Convey("When a submission is acquired", func() {
			So(g.Acquire(ctx, "sub-1"), ShouldBeNil)

			Convey("Then it is held", func() {
				So(g.Held("sub-1"), ShouldBeTrue)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("Then a second acquire is rejected", func() {
				So(g.Acquire(ctx, "sub-1"), ShouldEqual, dedupe.ErrInFlight)
			})

			Convey("Then release makes it available again", func() {
				g.Release(ctx, "sub-1")
				So(g.Held("sub-1"), ShouldBeFalse)
				So(g.Size(), ShouldEqual, 0)
				So(g.Acquire(ctx, "sub-1"), ShouldBeNil)
			})
		})

		Convey("Releasing an unknown id does nothing", func() {
			g.Release(ctx, "ghost")
			So(g.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded guard", t, func() {
		g := dedupe.NewInFlightGuard(dedupe.WithMaxSize(2))
		So(g.Acquire(ctx, "a"), ShouldBeNil)
		So(g.Acquire(ctx, "b"), ShouldBeNil)

		Convey("A third submission is over capacity", func() {
			So(g.Acquire(ctx, "c"), ShouldEqual, dedupe.ErrCapacity)
		})

		Convey("Capacity frees up on release", func() {
			g.Release(ctx, "a")
			So(g.Acquire(ctx, "c"), ShouldBeNil)
		})
	})

	Convey("Concurrent acquires of one id succeed exactly once", t, func() {
		g := dedupe.NewInFlightGuard()
		var wins atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if g.Acquire(ctx, "hot") == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		So(wins.Load(), ShouldEqual, 1)
	})

	Convey("Distinct ids do not interfere", t, func() {
		g := dedupe.NewInFlightGuard()
		for i := 0; i < 100; i++ {
			So(g.Acquire(ctx, fmt.Sprintf("sub-%d", i)), ShouldBeNil)
		}
		So(g.Size(), ShouldEqual, 100)
	})
}
