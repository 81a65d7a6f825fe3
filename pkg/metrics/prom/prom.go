// Package prom exports the query cache signals as Prometheus metrics.
package prom

import (
	"time"

	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cachestore.Metrics, fetcher.Metrics and authn.Metrics.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	evicts       *prometheus.CounterVec
	sizeEnt      prometheus.Gauge
	requests     *prometheus.HistogramVec
	retries      prometheus.Counter
	revalidation *prometheus.CounterVec
	refresh      *prometheus.CounterVec
}

// New constructs the adapter and registers its collectors.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		requests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fetch_duration_seconds",
				Help:        "Duration of deduplicated network fetches, retries included",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "retries_total",
			Help:        "Failed attempts that were retried",
			ConstLabels: constLabels,
		}),
		revalidation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "revalidations_total",
				Help:        "Background revalidations of stale entries by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		refresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "token_refreshes_total",
				Help:        "Access token refreshes by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.requests, a.retries, a.revalidation, a.refresh)
	return a
}

func (a *Adapter) Hit() { a.hits.Inc() }

func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cachestore.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

func (a *Adapter) Request(elapsed time.Duration, err error) {
	a.requests.WithLabelValues(outcome(err == nil)).Observe(elapsed.Seconds())
}

func (a *Adapter) Retry(int, error) { a.retries.Inc() }

func (a *Adapter) Revalidation(ok bool) {
	a.revalidation.WithLabelValues(outcome(ok)).Inc()
}

func (a *Adapter) Refresh(ok bool) {
	a.refresh.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

var (
	_ cachestore.Metrics = (*Adapter)(nil)
	_ fetcher.Metrics    = (*Adapter)(nil)
	_ authn.Metrics      = (*Adapter)(nil)
)
