package request

import "sync"

// ReadTracker records which per-user list reads are currently being served so
// a second identical read can be turned away instead of re-running the query.
// It is process-local and best-effort: it sheds load, it does not enforce any
// correctness invariant, and it provides no guarantee across processes.
type ReadTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewReadTracker() *ReadTracker {
	return &ReadTracker{inflight: make(map[string]struct{})}
}

// TryBegin marks key as in flight. It returns false when a read for key is
// already being served. On success the caller must invoke the returned done
// function on every exit path; done clears the entry and is safe to call once.
func (t *ReadTracker) TryBegin(key string) (done func(), ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.inflight[key]; busy {
		return nil, false
	}
	t.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.inflight, key)
			t.mu.Unlock()
		})
	}, true
}

// InFlight reports whether a read for key is currently tracked.
func (t *ReadTracker) InFlight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.inflight[key]
	return busy
}

// Len returns the number of tracked reads.
func (t *ReadTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
