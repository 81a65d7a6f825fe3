package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "gquery", "cache", prometheus.Labels{"app": "test"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cachestore.EvictCapacity)
	a.Evict(cachestore.EvictInvalidated)
	a.Evict(cachestore.EvictInvalidated)
	a.Size(7)
	a.Retry(1, errors.New("x"))
	a.Request(20*time.Millisecond, nil)
	a.Request(time.Second, errors.New("x"))
	a.Revalidation(false)
	a.Refresh(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("capacity")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("invalidated")))
	assert.Equal(t, 7.0, testutil.ToFloat64(a.sizeEnt))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.revalidation.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.refresh.WithLabelValues("success")))

	n, err := testutil.GatherAndCount(reg, "gquery_cache_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per outcome")
}

func TestAdapter_WiredIntoStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "gquery", "cache", nil)
	s := cachestore.New(cachestore.Options{MaxSize: 1, Metrics: a})

	s.Set("a", []byte(`1`))
	s.Set("b", []byte(`2`))
	s.Get("b")
	s.Get("a")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.sizeEnt))
}
