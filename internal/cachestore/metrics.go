package cachestore

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictCapacity: removed to get back under MaxSize.
	EvictCapacity EvictReason = iota
	// EvictExpired: older than the max age when a sweep ran.
	EvictExpired
	// EvictInvalidated: removed explicitly through Invalidate.
	EvictInvalidated
	// EvictCleared: dropped by Clear (logout).
	EvictCleared
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictInvalidated:
		return "invalidated"
	case EvictCleared:
		return "cleared"
	default:
		return "capacity"
	}
}

// Metrics exposes store-level observability hooks.
// Calls happen under the store lock; keep implementations lightweight.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}

var _ Metrics = NoopMetrics{}
