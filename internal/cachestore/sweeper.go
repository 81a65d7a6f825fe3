package cachestore

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"gopkg.in/tomb.v2"
)

// Sweeper periodically purges entries older than maxAge. It is an explicit
// lifecycle object: nothing runs until Start, and Stop waits for the loop to exit.
type Sweeper struct {
	store    *Store
	clock    clock.Clock
	interval time.Duration
	maxAge   time.Duration

	mu   sync.Mutex
	tomb *tomb.Tomb
}

// NewSweeper returns a stopped sweeper. interval defaults to DefaultStaleTime and
// maxAge to 12x interval when non-positive.
func NewSweeper(store *Store, clk clock.Clock, interval, maxAge time.Duration) *Sweeper {
	if clk == nil {
		clk = clock.WallClock
	}
	if interval <= 0 {
		interval = DefaultStaleTime
	}
	if maxAge <= 0 {
		maxAge = 12 * interval
	}
	return &Sweeper{
		store:    store,
		clock:    clk,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tomb != nil {
		return
	}
	t := &tomb.Tomb{}
	s.tomb = t
	t.Go(func() error {
		return s.loop(t)
	})
}

// Stop ends the loop and waits for it. A stopped sweeper may be started again.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	t := s.tomb
	s.tomb = nil
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Kill(nil)
	return t.Wait()
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tomb != nil
}

func (s *Sweeper) loop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case <-s.clock.After(s.interval):
			s.store.SweepExpired(s.maxAge)
		}
	}
}
