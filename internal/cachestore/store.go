// Package cachestore holds the process-wide mapping from cache key to the last
// successfully fetched payload.
//
// Entries are raw JSON payloads stamped with the time they were stored. The store
// is bounded in two ways: by entry count (oldest timestamp evicted first, earlier
// write first on a tie) and by age (entries older than a max age are purged by a
// periodic sweep).
// All methods are safe for concurrent use.
package cachestore

import (
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
)

const (
	DefaultMaxSize   = 100
	DefaultStaleTime = 5 * time.Minute
)

// Entry is one cached payload.
type Entry struct {
	Value     []byte
	Timestamp time.Time

	seq uint64 // write order, breaks timestamp ties
}

// Age returns how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Fresh reports whether now - Timestamp < staleTime.
func (e Entry) Fresh(now time.Time, staleTime time.Duration) bool {
	return e.Age(now) < staleTime
}

// Options configures a Store. Zero values are replaced with defaults in New.
type Options struct {
	// MaxSize is the entry count limit (default 100).
	MaxSize int
	// Clock stamps entries; nil => clock.WallClock.
	Clock clock.Clock
	// Metrics receives hit/miss/evict/size signals; nil => NoopMetrics.
	Metrics Metrics
}

type Store struct {
	mu        sync.Mutex
	entries   map[string]Entry
	maxSize   int
	lastSweep time.Time
	seq       uint64

	clock   clock.Clock
	metrics Metrics
}

func New(opt Options) *Store {
	if opt.MaxSize <= 0 {
		opt.MaxSize = DefaultMaxSize
	}
	if opt.Clock == nil {
		opt.Clock = clock.WallClock
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	return &Store{
		entries:   make(map[string]Entry),
		maxSize:   opt.MaxSize,
		lastSweep: opt.Clock.Now(),
		clock:     opt.Clock,
		metrics:   opt.Metrics,
	}
}

// Get returns the entry for key and whether it was present.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.metrics.Miss()
		return Entry{}, false
	}
	s.metrics.Hit()
	return e, true
}

// Set stores value under key stamped with the current time, replacing any prior
// entry, then trims the store back to MaxSize.
func (s *Store) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.entries[key] = Entry{Value: value, Timestamp: s.clock.Now(), seq: s.seq}
	s.enforceCapacityLocked(s.maxSize)
	s.metrics.Size(len(s.entries))
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(key)
}

// Invalidate removes key because something outside the store knows it is stale,
// typically a mutation.
func (s *Store) Invalidate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(key) {
		return false
	}
	s.metrics.Evict(EvictInvalidated)
	return true
}

// Clear drops every entry regardless of freshness.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]Entry)
	for i := 0; i < n; i++ {
		s.metrics.Evict(EvictCleared)
	}
	s.metrics.Size(0)
}

// Len returns the number of resident entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the resident keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SweepExpired removes every entry older than maxAge and returns how many were removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(maxAge)
}

// MaybeSweep runs SweepExpired only if the previous sweep is older than interval.
// It is called after successful fetches so expiry does not depend solely on the
// background Sweeper.
func (s *Store) MaybeSweep(maxAge, interval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock.Now().Sub(s.lastSweep) < interval {
		return 0
	}
	return s.sweepLocked(maxAge)
}

// EnforceCapacity evicts the oldest entries until at most maxSize remain and
// returns how many were evicted.
func (s *Store) EnforceCapacity(maxSize int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.enforceCapacityLocked(maxSize)
	s.metrics.Size(len(s.entries))
	return n
}

// ---- internals (mu held) ----

func (s *Store) deleteLocked(key string) bool {
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.metrics.Size(len(s.entries))
	return true
}

func (s *Store) sweepLocked(maxAge time.Duration) int {
	now := s.clock.Now()
	s.lastSweep = now

	removed := 0
	for k, e := range s.entries {
		if e.Age(now) > maxAge {
			delete(s.entries, k)
			s.metrics.Evict(EvictExpired)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.Size(len(s.entries))
	}
	return removed
}

func (s *Store) enforceCapacityLocked(maxSize int) int {
	excess := len(s.entries) - maxSize
	if excess <= 0 {
		return 0
	}

	type aged struct {
		key string
		ts  time.Time
		seq uint64
	}
	all := make([]aged, 0, len(s.entries))
	for k, e := range s.entries {
		all = append(all, aged{key: k, ts: e.Timestamp, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ts.Equal(all[j].ts) {
			return all[i].seq < all[j].seq
		}
		return all[i].ts.Before(all[j].ts)
	})

	for _, a := range all[:excess] {
		delete(s.entries, a.key)
		s.metrics.Evict(EvictCapacity)
	}
	return excess
}
