// Package inflight deduplicates concurrent fetches for the same cache key and
// owns the cancellation handle of each running fetch.
package inflight

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned to waiters of a call that was cancelled because a
// newer call for the same key was started. Callers treat it as an abort.
var ErrSuperseded = errors.New("inflight: superseded by a newer request")

// ErrCleared is returned to waiters of a call cancelled by SupersedeAll. Unlike
// ErrSuperseded there is no newer call to join.
var ErrCleared = errors.New("inflight: cancelled by cache clear")

// Tracker coalesces concurrent calls for the same key so that fn runs at most
// once per key at any time.
//
//   - The first caller for a key starts fn in its own goroutine, under a context
//     owned by the tracker (it keeps the caller's values but not its deadline).
//   - Later callers join and observe the same result.
//   - A caller whose ctx ends leaves the call; when the last caller leaves, the
//     call's context is cancelled and the registration removed.
//   - Supersede cancels the call immediately and unregisters it; SupersedeAll
//     does so for every key.
type Tracker[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed once val/err are published
	val     V
	err     error
	cancel  context.CancelFunc
	waiters int
	abort   error // set under the tracker lock when the call is unregistered
}

func New[V any]() *Tracker[V] {
	return &Tracker[V]{calls: make(map[string]*call[V])}
}

// Do starts or joins the call for key. commit runs under the tracker lock with a
// successful result, but only if the call is still the registered one for key
// when it completes; a superseded or abandoned call never commits.
func (t *Tracker[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error), commit func(V)) (V, error) {
	t.mu.Lock()
	c, ok := t.calls[key]
	if !ok {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{done: make(chan struct{}), cancel: cancel}
		t.calls[key] = c
		go t.run(cctx, key, c, fn, commit)
	}
	c.waiters++
	t.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		t.leave(key, c)
		var zero V
		return zero, ctx.Err()
	}
}

// Supersede cancels and unregisters the running call for key, if any. Its
// waiters receive ErrSuperseded and its result is never committed.
func (t *Tracker[V]) Supersede(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[key]
	if !ok {
		return false
	}
	delete(t.calls, key)
	c.abort = ErrSuperseded
	c.cancel()
	return true
}

// SupersedeAll cancels and unregisters every running call. Their waiters receive
// ErrCleared and none of them commits. It returns the number of calls cancelled.
func (t *Tracker[V]) SupersedeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.calls)
	for key, c := range t.calls {
		delete(t.calls, key)
		c.abort = ErrCleared
		c.cancel()
	}
	return n
}

// Pending reports whether a call for key is in flight.
func (t *Tracker[V]) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[key]
	return ok
}

// Waiters returns how many callers are waiting on the call for key.
func (t *Tracker[V]) Waiters(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// Len returns the number of in-flight calls.
func (t *Tracker[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *Tracker[V]) run(ctx context.Context, key string, c *call[V], fn func(ctx context.Context) (V, error), commit func(V)) {
	v, err := fn(ctx)

	t.mu.Lock()
	if t.calls[key] == c {
		delete(t.calls, key)
		if err == nil && commit != nil {
			commit(v)
		}
	} else if err == nil || errors.Is(err, context.Canceled) {
		// cancelled through Supersede(All) or by the last waiter leaving
		var zero V
		v, err = zero, ErrSuperseded
		if c.abort != nil {
			err = c.abort
		}
	}
	c.val, c.err = v, err
	t.mu.Unlock()

	close(c.done)
	c.cancel()
}

func (t *Tracker[V]) leave(key string, c *call[V]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}
	if t.calls[key] == c {
		delete(t.calls, key)
	}
	c.cancel()
}
