package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/inflight"
	"github.com/IsaacDSC/gquery/internal/querykey"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
)

// Query is one consumer of a cached resource. It moves through
// idle -> loading -> success | error, and success -> success(revalidating) ->
// success when a stale hit is refreshed in the background.
//
// Every key change starts a new generation. Work started by an older generation
// is cancelled and can no longer change the state; after Close nothing can.
type Query[T any] struct {
	ctrl *Controller
	opts queryOptions

	// emitMu serialises state changes with subscriber delivery so subscribers
	// observe transitions in order.
	emitMu sync.Mutex

	mu      sync.Mutex
	path    string
	params  any
	key     string
	state   State[T]
	gen     uint64
	genCtx  context.Context
	cancel  context.CancelFunc
	closed  bool
	subs    map[int]func(State[T])
	nextSub int

	wg sync.WaitGroup
}

func NewQuery[T any](ctrl *Controller, path string, opts ...Option) *Query[T] {
	o := queryOptions{Defaults: ctrl.defaults}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Query[T]{
		ctrl:   ctrl,
		opts:   o,
		path:   path,
		params: o.params,
		key:    querykey.Build(path, o.params),
		state:  State[T]{Status: StatusIdle},
		subs:   make(map[int]func(State[T])),
	}
	q.genCtx, q.cancel = q.newGenContext()
	return q
}

func (q *Query[T]) newGenContext() (context.Context, context.CancelFunc) {
	ctx := ctxlogger.WithLogger(context.Background(), q.ctrl.logger.With("query", q.key))
	return context.WithCancel(ctx)
}

// Key returns the cache key the query currently resolves.
func (q *Query[T]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// State returns a snapshot of the current state.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Subscribe registers fn for every state transition. fn runs synchronously and
// must not call Fetch, Refetch, SetKey or Close on the same query.
func (q *Query[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

type snapshot struct {
	gen    uint64
	key    string
	path   string
	params any
	ctx    context.Context
}

func (q *Query[T]) snapshot() (snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot{gen: q.gen, key: q.key, path: q.path, params: q.params, ctx: q.genCtx}, !q.closed
}

// Fetch resolves the current key:
//   - fresh entry: success, no network call;
//   - stale entry: success with IsRevalidating while a background refetch runs,
//     or a blocking fetch with the stale data retained when stale-while-revalidate
//     is disabled;
//   - no entry: loading, then a deduplicated fetch with retry.
//
// Fetch blocks until the state is settled for this call and returns it. Aborts
// (ctx cancelled, key changed, Close) leave the state untouched.
func (q *Query[T]) Fetch(ctx context.Context) State[T] {
	snap, ok := q.snapshot()
	if !ok {
		return q.State()
	}

	if entry, hit := q.ctrl.store.Get(snap.key); hit {
		var data T
		if err := json.Unmarshal(entry.Value, &data); err != nil {
			ctxlogger.GetLogger(ctx).Warn("evicting undecodable cache entry", "key", snap.key, "error", err)
			q.ctrl.store.Delete(snap.key)
		} else {
			now := q.ctrl.clock.Now()
			switch {
			case entry.Fresh(now, q.opts.StaleTime):
				q.update(snap.gen, func(s *State[T]) {
					*s = State[T]{Status: StatusSuccess, Data: data, HasData: true, UpdatedAt: entry.Timestamp, RevalidateErr: s.RevalidateErr}
				})
				return q.State()

			case q.opts.StaleWhileRevalidate:
				if q.update(snap.gen, func(s *State[T]) {
					*s = State[T]{Status: StatusSuccess, Data: data, HasData: true, UpdatedAt: entry.Timestamp, IsRevalidating: true, RevalidateErr: s.RevalidateErr}
				}) {
					q.revalidate(snap)
				}
				return q.State()

			default:
				q.update(snap.gen, func(s *State[T]) {
					*s = State[T]{Status: StatusLoading, Data: data, HasData: true, UpdatedAt: entry.Timestamp}
				})
				return q.load(ctx, snap, false)
			}
		}
	}

	q.update(snap.gen, func(s *State[T]) {
		s.Status = StatusLoading
		s.Err = nil
	})
	return q.load(ctx, snap, false)
}

// Refetch forces a network call for the current key, superseding any in-flight
// call for it, and updates the cache on success.
func (q *Query[T]) Refetch(ctx context.Context) State[T] {
	snap, ok := q.snapshot()
	if !ok {
		return q.State()
	}

	q.update(snap.gen, func(s *State[T]) {
		if s.Status == StatusSuccess {
			s.IsRevalidating = true
			return
		}
		s.Status = StatusLoading
		s.Err = nil
	})
	return q.load(ctx, snap, true)
}

// SetKey points the query at a new path and params. The old key's request is
// abandoned and the new key is resolved with Fetch.
func (q *Query[T]) SetKey(ctx context.Context, path string, params any) State[T] {
	q.mu.Lock()
	if q.closed {
		st := q.state
		q.mu.Unlock()
		return st
	}
	q.cancel()
	q.gen++
	q.path = path
	q.params = params
	q.key = querykey.Build(path, params)
	q.state = State[T]{Status: StatusIdle}
	q.genCtx, q.cancel = q.newGenContext()
	q.mu.Unlock()

	return q.Fetch(ctx)
}

// Close tears the query down. In-flight work for it is abandoned and no state
// transition is emitted once Close returns.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancel()
	q.subs = nil
	q.mu.Unlock()

	// wait for an emission that passed the closed check
	q.emitMu.Lock()
	q.emitMu.Unlock()
	q.wg.Wait()
}

// revalidate refreshes a stale hit in the background. The goroutine is
// registered under mu so Close never waits on a WaitGroup that is still growing.
func (q *Query[T]) revalidate(snap snapshot) {
	q.mu.Lock()
	if q.closed || q.gen != snap.gen {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		data, err := q.run(snap.ctx, snap, false)
		if errors.Is(err, inflight.ErrCleared) {
			q.update(snap.gen, func(s *State[T]) {
				s.IsRevalidating = false
			})
			return
		}
		if apierr.IsAborted(err) {
			return
		}
		if err != nil {
			ctxlogger.GetLogger(snap.ctx).Debug("background revalidation failed", "key", snap.key, "error", err)
			q.ctrl.metrics.Revalidation(false)
			q.update(snap.gen, func(s *State[T]) {
				s.IsRevalidating = false
				s.RevalidateErr = err
			})
			return
		}

		q.ctrl.metrics.Revalidation(true)
		q.update(snap.gen, func(s *State[T]) {
			s.Status = StatusSuccess
			s.Data = data
			s.HasData = true
			s.Err = nil
			s.IsRevalidating = false
			s.RevalidateErr = nil
			s.UpdatedAt = q.ctrl.clock.Now()
		})
	}()
}

func (q *Query[T]) load(ctx context.Context, snap snapshot, force bool) State[T] {
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(snap.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	data, err := q.run(runCtx, snap, force)
	if apierr.IsAborted(err) {
		return q.State()
	}
	if err != nil {
		q.update(snap.gen, func(s *State[T]) {
			s.Status = StatusError
			s.Err = err
			s.IsRevalidating = false
		})
		return q.State()
	}

	q.update(snap.gen, func(s *State[T]) {
		*s = State[T]{Status: StatusSuccess, Data: data, HasData: true, UpdatedAt: q.ctrl.clock.Now()}
	})
	return q.State()
}

// run performs the network fetch and decodes the payload. A waiter whose call
// was superseded by another consumer of the same key joins the newer call.
func (q *Query[T]) run(ctx context.Context, snap snapshot, force bool) (T, error) {
	var zero T
	r := q.ctrl.request(snap.key, snap.path, snap.params, q.opts)

	var (
		body []byte
		err  error
	)
	if force {
		body, err = q.ctrl.refetch(ctx, r)
	} else {
		body, err = q.ctrl.fetch(ctx, r)
	}
	for errors.Is(err, inflight.ErrSuperseded) && ctx.Err() == nil && q.current(snap.gen) {
		body, err = q.ctrl.fetch(ctx, r)
	}
	if err != nil {
		return zero, err
	}

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		q.ctrl.store.Delete(snap.key)
		return zero, fmt.Errorf("decode %s: %w", snap.key, err)
	}
	return data, nil
}

func (q *Query[T]) current(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && q.gen == gen
}

// update applies fn to the state if gen is still current and notifies
// subscribers with the result.
func (q *Query[T]) update(gen uint64, fn func(*State[T])) bool {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	q.mu.Lock()
	if q.closed || q.gen != gen {
		q.mu.Unlock()
		return false
	}
	fn(&q.state)
	st := q.state
	subs := make([]func(State[T]), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return true
}
