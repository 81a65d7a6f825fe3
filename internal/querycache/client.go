// Package querycache wires the cache store, in-flight tracker, authentication
// interceptor, API client and fetch controller into one Client. It is the only
// place those shared objects are constructed.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/IsaacDSC/gquery/internal/apiclient"
	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/internal/inflight"
	"github.com/IsaacDSC/gquery/internal/mutation"
	"github.com/IsaacDSC/gquery/internal/tokenstore"
	"github.com/IsaacDSC/gquery/pkg/httpclient"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/juju/clock"
)

// Metrics is everything the client reports. pkg/metrics/prom implements it.
type Metrics interface {
	cachestore.Metrics
	fetcher.Metrics
	authn.Metrics
}

type options struct {
	tokens           authn.TokenStore
	clock            clock.Clock
	transport        http.RoundTripper
	metrics          Metrics
	onSessionExpired func(ctx context.Context, loginURL string)
	logger           *logs.Logger
}

type Option func(*options)

// WithTokenStore overrides the store selected by the auth config.
func WithTokenStore(s authn.TokenStore) Option {
	return func(o *options) { o.tokens = s }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTransport sets the base transport under the auth and logging layers.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSessionExpired registers the hook run when a token refresh fails and the
// stored credentials have been cleared.
func WithSessionExpired(fn func(ctx context.Context, loginURL string)) Option {
	return func(o *options) { o.onSessionExpired = fn }
}

func WithLogger(l *logs.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Client struct {
	conf    cfg.Config
	logger  *logs.Logger
	clock   clock.Clock
	metrics Metrics

	store   *cachestore.Store
	sweeper *cachestore.Sweeper
	tracker *inflight.Tracker[[]byte]

	tokens       authn.TokenStore
	tokensCloser io.Closer
	auth         *authn.Interceptor
	api          *apiclient.Client
	queries      *fetcher.Controller
}

// New builds a stopped client; call Start to run the background sweep.
func New(conf cfg.Config, opts ...Option) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logs.New(
			logs.WithLevel(logs.ParseLevel(conf.Log.Level)),
			logs.WithJSONFormat(conf.Log.JSON),
		)
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.transport == nil {
		o.transport = httpclient.NewDefaultTransport()
	}

	c := &Client{
		conf:    conf,
		logger:  o.logger,
		clock:   o.clock,
		metrics: o.metrics,
	}

	var storeMetrics cachestore.Metrics
	var fetchMetrics fetcher.Metrics
	var authMetrics authn.Metrics
	if o.metrics != nil {
		storeMetrics, fetchMetrics, authMetrics = o.metrics, o.metrics, o.metrics
	}

	c.tokens, c.tokensCloser = o.tokens, nopCloser{}
	if c.tokens == nil {
		store, closer, err := tokenstore.FromConfig(conf.Auth)
		if err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
		c.tokens, c.tokensCloser = store, closer
	}

	c.store = cachestore.New(cachestore.Options{
		MaxSize: conf.Cache.MaxSize,
		Clock:   o.clock,
		Metrics: storeMetrics,
	})
	c.sweeper = cachestore.NewSweeper(c.store, o.clock, conf.EffectiveSweepInterval(), conf.EffectiveMaxAge())
	c.tracker = inflight.New[[]byte]()

	// the refresh call goes through the logging layer but not through auth
	logged := httpclient.NewLoggingTransport(o.transport, conf.API.LogBodies)
	refreshURL := apiclient.New(conf.API.BaseURL, conf.API.Prefix, nil).URL(conf.API.RefreshPath, nil)
	c.auth = authn.New(c.tokens, authn.Config{
		RefreshURL:       refreshURL,
		LoginURL:         conf.Auth.LoginURL,
		ExpirySkew:       conf.Auth.ExpirySkew.Std(),
		Clock:            o.clock,
		Base:             logged,
		OnSessionExpired: c.sessionExpired(o.onSessionExpired),
		Metrics:          authMetrics,
	})
	c.api = apiclient.New(conf.API.BaseURL, conf.API.Prefix, &http.Client{Transport: c.auth})

	c.queries = fetcher.NewController(fetcher.Config{
		Store:   c.store,
		Tracker: c.tracker,
		API:     c.api,
		Clock:   o.clock,
		Defaults: fetcher.Defaults{
			Retry:                conf.Query.Retry,
			RetryDelay:           conf.Query.RetryDelay.Std(),
			StaleTime:            conf.Query.StaleTime.Std(),
			StaleWhileRevalidate: conf.Query.StaleWhileRevalidate,
		},
		MaxAge:        conf.EffectiveMaxAge(),
		SweepInterval: conf.EffectiveSweepInterval(),
		Metrics:       fetchMetrics,
		Logger:        o.logger,
	})

	return c, nil
}

func (c *Client) sessionExpired(hook func(context.Context, string)) func(context.Context, string) {
	return func(ctx context.Context, loginURL string) {
		c.logger.Warn("session expired, login required", "login_url", loginURL)
		if hook != nil {
			hook(ctx, loginURL)
		}
	}
}

// Start launches the background sweep.
func (c *Client) Start() {
	c.sweeper.Start()
	c.logger.Info("query cache started",
		"max_size", c.conf.Cache.MaxSize,
		"stale_time", c.conf.Query.StaleTime.String(),
		"sweep_interval", c.conf.EffectiveSweepInterval().String(),
	)
}

// Close stops the sweep and releases the token store backend.
func (c *Client) Close() error {
	return errors.Join(c.sweeper.Stop(), c.tokensCloser.Close())
}

func (c *Client) API() *apiclient.Client { return c.api }

func (c *Client) Queries() *fetcher.Controller { return c.queries }

func (c *Client) Tokens() authn.TokenStore { return c.tokens }

// Query creates a read of path bound to the client's shared cache.
func Query[T any](c *Client, path string, opts ...fetcher.Option) *fetcher.Query[T] {
	return fetcher.NewQuery[T](c.queries, path, opts...)
}

// Mutation creates a write bound to the client's API. A nil Retry and zero
// RetryDelay and Clock take the client's configuration.
func Mutation[V, D any](c *Client, target mutation.Target[V], conf mutation.Config[V, D]) *mutation.Mutation[V, D] {
	if conf.Retry == nil {
		conf.Retry = mutation.Retries(c.conf.Mutation.Retry)
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = c.conf.Mutation.RetryDelay.Std()
	}
	if conf.Clock == nil {
		conf.Clock = c.clock
	}
	if conf.Observer == nil && c.metrics != nil {
		conf.Observer = c.metrics
	}
	return mutation.New(c.api, target, conf)
}

func (c *Client) InvalidateQuery(path string, params any) bool {
	return c.queries.InvalidateQuery(path, params)
}

func (c *Client) ClearCache() {
	c.queries.ClearCache()
}

// Login stores a fresh credential pair.
func (c *Client) Login(ctx context.Context, t authn.Tokens) error {
	if err := c.tokens.SetTokens(ctx, t); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Logout clears the stored credentials, then every cache entry along with the
// fetches still running under the old session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.tokens.ClearTokens(ctx)
	c.queries.ClearCache()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

type Stats struct {
	Entries        int      `json:"entries"`
	Keys           []string `json:"keys"`
	InFlight       int      `json:"in_flight"`
	SweeperRunning bool     `json:"sweeper_running"`
}

func (c *Client) Stats() Stats {
	return Stats{
		Entries:        c.store.Len(),
		Keys:           c.store.Keys(),
		InFlight:       c.tracker.Len(),
		SweeperRunning: c.sweeper.Running(),
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
