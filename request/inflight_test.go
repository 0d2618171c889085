package request

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestReadTracker_SecondReadTurnedAway(t *testing.T) {
	tracker := NewReadTracker()

	done, ok := tracker.TryBegin("u1")
	if !ok {
		t.Fatal("first read must be admitted")
	}
	if _, ok := tracker.TryBegin("u1"); ok {
		t.Fatal("second read for same key must be refused while first is in flight")
	}
	if _, ok := tracker.TryBegin("u2"); !ok {
		t.Fatal("different key must be admitted")
	}

	done()
	if tracker.InFlight("u1") {
		t.Fatal("entry must be cleared after done")
	}
	if _, ok := tracker.TryBegin("u1"); !ok {
		t.Fatal("key must be reusable after done")
	}
}

func TestReadTracker_DoneIdempotent(t *testing.T) {
	tracker := NewReadTracker()

	done, _ := tracker.TryBegin("u1")
	done()

	// A new read is now in flight; a stale second done() call from the
	// previous read must not clear it.
	if _, ok := tracker.TryBegin("u1"); !ok {
		t.Fatal("expected re-admission")
	}
	done()
	if !tracker.InFlight("u1") {
		t.Fatal("stale done() must not clear the successor entry")
	}
}

func TestReadTracker_ConcurrentAdmitsExactlyOne(t *testing.T) {
	tracker := NewReadTracker()

	const callers = 16
	var admitted atomic.Int32
	release := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			done, ok := tracker.TryBegin("hot-user")
			if !ok {
				return nil
			}
			admitted.Add(1)
			<-release
			done()
			return nil
		})
	}

	// Give every goroutine a chance to race on TryBegin before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}

	if got := admitted.Load(); got != 1 {
		t.Fatalf("expected exactly one admitted caller, got %d", got)
	}
	if tracker.Len() != 0 {
		t.Fatalf("tracker must be empty after all callers finish, len=%d", tracker.Len())
	}
}
