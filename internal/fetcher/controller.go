// Package fetcher implements the read path: cache lookup, stale-while-revalidate,
// request deduplication and retry with exponential backoff.
package fetcher

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/IsaacDSC/gquery/internal/apiclient"
	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/IsaacDSC/gquery/internal/inflight"
	"github.com/IsaacDSC/gquery/internal/querykey"
	"github.com/IsaacDSC/gquery/internal/retrier"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/juju/clock"
)

type Config struct {
	Store    *cachestore.Store
	Tracker  *inflight.Tracker[[]byte]
	API      apiclient.Requester
	Clock    clock.Clock
	Defaults Defaults
	// MaxAge and SweepInterval drive the opportunistic sweep after each
	// successful fetch. Zero disables it.
	MaxAge        time.Duration
	SweepInterval time.Duration
	Metrics       Metrics
	Logger        *logs.Logger
}

// Controller is the state shared by every query: the cache store, the
// in-flight tracker and the API client.
type Controller struct {
	store    *cachestore.Store
	tracker  *inflight.Tracker[[]byte]
	api      apiclient.Requester
	clock    clock.Clock
	defaults Defaults
	maxAge   time.Duration
	interval time.Duration
	metrics  Metrics
	logger   *logs.Logger
}

func NewController(conf Config) *Controller {
	if conf.Clock == nil {
		conf.Clock = clock.WallClock
	}
	if conf.Store == nil {
		conf.Store = cachestore.New(cachestore.Options{Clock: conf.Clock})
	}
	if conf.Tracker == nil {
		conf.Tracker = inflight.New[[]byte]()
	}
	if conf.Defaults == (Defaults{}) {
		conf.Defaults = DefaultOptions()
	}
	if conf.Defaults.StaleTime <= 0 {
		conf.Defaults.StaleTime = DefaultStaleTime
	}
	if conf.Defaults.RetryDelay <= 0 {
		conf.Defaults.RetryDelay = DefaultRetryDelay
	}
	if conf.Metrics == nil {
		conf.Metrics = NoopMetrics{}
	}
	if conf.Logger == nil {
		conf.Logger = logs.Default()
	}

	return &Controller{
		store:    conf.Store,
		tracker:  conf.Tracker,
		api:      conf.API,
		clock:    conf.Clock,
		defaults: conf.Defaults,
		maxAge:   conf.MaxAge,
		interval: conf.SweepInterval,
		metrics:  conf.Metrics,
		logger:   conf.Logger,
	}
}

func (c *Controller) Store() *cachestore.Store { return c.store }

func (c *Controller) Tracker() *inflight.Tracker[[]byte] { return c.tracker }

func (c *Controller) Defaults() Defaults { return c.defaults }

// InvalidateQuery removes the cache entry for path and params. Queries reading
// that key refetch on their next Fetch.
func (c *Controller) InvalidateQuery(path string, params any) bool {
	key := querykey.Build(path, params)
	ok := c.store.Invalidate(key)
	c.logger.Debug("query invalidated", "key", key, "found", ok)
	return ok
}

// ClearCache empties the whole store regardless of freshness. Fetches already
// in flight are cancelled first so none of them repopulates the store.
func (c *Controller) ClearCache() {
	cancelled := c.tracker.SupersedeAll()
	c.store.Clear()
	c.logger.Info("query cache cleared", "cancelled_fetches", cancelled)
}

type fetchRequest struct {
	key     string
	path    string
	params  any
	headers map[string]string
	policy  retrier.Policy
}

func (c *Controller) request(key, path string, params any, o queryOptions) fetchRequest {
	return fetchRequest{
		key:     key,
		path:    path,
		params:  params,
		headers: maps.Clone(o.headers),
		policy: retrier.Policy{
			Retries:  o.Retry,
			Delay:    o.RetryDelay,
			Clock:    c.clock,
			Observer: c.metrics,
		},
	}
}

// fetch starts or joins the network call for r.key. The payload is written to
// the store only if the call is still the current one for the key when it
// completes.
func (c *Controller) fetch(ctx context.Context, r fetchRequest) ([]byte, error) {
	return c.tracker.Do(ctx, r.key, func(ctx context.Context) ([]byte, error) {
		start := c.clock.Now()
		body, err := retrier.Do(ctx, r.policy, func(ctx context.Context) ([]byte, error) {
			return c.api.Do(ctx, apiclient.Request{
				Method:  http.MethodGet,
				Path:    r.path,
				Query:   querykey.Values(r.params),
				Headers: r.headers,
			})
		})
		if !apierr.IsAborted(err) {
			c.metrics.Request(c.clock.Now().Sub(start), err)
		}
		if err != nil {
			ctxlogger.GetLogger(ctx).Debug("query fetch failed", "key", r.key, "error", err)
		}
		return body, err
	}, func(body []byte) {
		c.store.Set(r.key, body)
		if c.maxAge > 0 && c.interval > 0 {
			c.store.MaybeSweep(c.maxAge, c.interval)
		}
	})
}

// refetch supersedes any in-flight call for the key before fetching, so the
// result of an older call can never overwrite this one.
func (c *Controller) refetch(ctx context.Context, r fetchRequest) ([]byte, error) {
	c.tracker.Supersede(r.key)
	return c.fetch(ctx, r)
}
