// Package mutation implements the write path: JSON requests with optional retry,
// success/error callbacks and per-row pending tracking through correlation ids.
//
// A mutation never touches the query cache. Callers invalidate the reads a
// write affects.
package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/IsaacDSC/gquery/internal/apiclient"
	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/retrier"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/juju/clock"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type State[D any] struct {
	Status Status
	Data   D
	Err    error
}

// Target resolves the request path from the mutation variables.
type Target[V any] func(vars V) string

// Path targets a fixed path.
func Path[V any](p string) Target[V] {
	return func(V) string { return p }
}

// PathFunc derives the path from the variables, e.g. "/users/" + id.
func PathFunc[V any](fn func(vars V) string) Target[V] {
	return Target[V](fn)
}

type Config[V, D any] struct {
	// Method defaults to POST.
	Method  string
	Headers map[string]string
	// Retry is the number of retries after the first attempt. nil means the
	// default (0 here, the configured mutation retry through querycache).
	Retry      *int
	RetryDelay time.Duration
	OnSuccess  func(data D, vars V)
	OnError    func(err error, vars V)
	Clock      clock.Clock
	Observer   retrier.Observer
}

// Retries returns n as a Config.Retry value. Retries(0) disables retrying even
// when a non-zero default is configured.
func Retries(n int) *int {
	return &n
}

type callOptions struct {
	correlationID string
}

type CallOption func(*callOptions)

// WithCorrelationID marks the call with id so IsPendingID(id) reports true while
// it is in flight.
func WithCorrelationID(id string) CallOption {
	return func(o *callOptions) {
		o.correlationID = id
	}
}

type Mutation[V, D any] struct {
	api     apiclient.Requester
	target  Target[V]
	conf    Config[V, D]
	retries int

	mu      sync.Mutex
	state   State[D]
	pending map[string]int
	subs    map[int]func(State[D])
	nextSub int
}

func New[V, D any](api apiclient.Requester, target Target[V], conf Config[V, D]) *Mutation[V, D] {
	if conf.Method == "" {
		conf.Method = http.MethodPost
	}
	retries := 0
	if conf.Retry != nil {
		retries = max(*conf.Retry, 0)
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = retrier.DefaultDelay
	}
	if conf.Clock == nil {
		conf.Clock = clock.WallClock
	}
	conf.Headers = maps.Clone(conf.Headers)

	return &Mutation[V, D]{
		api:     api,
		target:  target,
		conf:    conf,
		retries: retries,
		state:   State[D]{Status: StatusIdle},
		pending: make(map[string]int),
		subs:    make(map[int]func(State[D])),
	}
}

// Mutate sends vars as the JSON body (omitted for DELETE). On success the data
// is stored and OnSuccess runs; once retries are exhausted the state moves to
// error, OnError runs and the error is returned. An aborted call returns its
// error without moving the state to error.
func (m *Mutation[V, D]) Mutate(ctx context.Context, vars V, opts ...CallOption) (D, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	prev := m.begin(o.correlationID)

	policy := retrier.Policy{
		Retries:  m.retries,
		Delay:    m.conf.RetryDelay,
		Clock:    m.conf.Clock,
		Observer: m.conf.Observer,
	}
	data, err := retrier.Do(ctx, policy, func(ctx context.Context) (D, error) {
		var out D
		body, err := m.api.Do(ctx, apiclient.Request{
			Method:  m.conf.Method,
			Path:    m.target(vars),
			Body:    vars,
			Headers: m.conf.Headers,
		})
		if err != nil {
			return out, err
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return out, fmt.Errorf("%w: %v", apierr.ErrMalformedResponse, err)
		}
		return out, nil
	})

	switch {
	case err == nil:
		m.finish(o.correlationID, func(s *State[D]) {
			*s = State[D]{Status: StatusSuccess, Data: data}
		})
		if m.conf.OnSuccess != nil {
			m.conf.OnSuccess(data, vars)
		}
		return data, nil

	case apierr.IsAborted(err):
		m.finish(o.correlationID, func(s *State[D]) {
			if s.Status == StatusLoading {
				*s = prev
			}
		})
		return data, err

	default:
		ctxlogger.GetLogger(ctx).Warn("mutation failed", "method", m.conf.Method, "path", m.target(vars), "error", err)
		m.finish(o.correlationID, func(s *State[D]) {
			*s = State[D]{Status: StatusError, Err: err}
		})
		if m.conf.OnError != nil {
			m.conf.OnError(err, vars)
		}
		return data, err
	}
}

// IsPendingID reports whether a call carrying id is in flight.
func (m *Mutation[V, D]) IsPendingID(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[id] > 0
}

// IsPending reports whether any call is in flight.
func (m *Mutation[V, D]) IsPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.pending {
		if n > 0 {
			return true
		}
	}
	return false
}

// Reset returns the state to idle. In-flight calls are not affected and still
// report their outcome.
func (m *Mutation[V, D]) Reset() {
	m.update(func(s *State[D]) {
		*s = State[D]{Status: StatusIdle}
	})
}

func (m *Mutation[V, D]) State() State[D] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[V, D]) Subscribe(fn func(State[D])) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Mutation[V, D]) begin(id string) State[D] {
	var prev State[D]
	m.update(func(s *State[D]) {
		prev = *s
		s.Status = StatusLoading
		s.Err = nil
		// the empty id is tracked too so IsPending covers anonymous calls
		m.pending[id]++
	})
	return prev
}

func (m *Mutation[V, D]) finish(id string, fn func(*State[D])) {
	m.update(func(s *State[D]) {
		if m.pending[id]--; m.pending[id] <= 0 {
			delete(m.pending, id)
		}
		fn(s)
	})
}

func (m *Mutation[V, D]) update(fn func(*State[D])) {
	m.mu.Lock()
	fn(&m.state)
	st := m.state
	subs := make([]func(State[D]), 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub(st)
	}
}
