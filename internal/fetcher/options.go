package fetcher

import (
	"maps"
	"time"
)

const (
	DefaultRetry      = 3
	DefaultRetryDelay = time.Second
	DefaultStaleTime  = 5 * time.Minute
)

// Defaults are the controller-wide query options every Query starts from.
type Defaults struct {
	Retry                int
	RetryDelay           time.Duration
	StaleTime            time.Duration
	StaleWhileRevalidate bool
}

func DefaultOptions() Defaults {
	return Defaults{
		Retry:                DefaultRetry,
		RetryDelay:           DefaultRetryDelay,
		StaleTime:            DefaultStaleTime,
		StaleWhileRevalidate: true,
	}
}

type queryOptions struct {
	Defaults
	params  any
	headers map[string]string
}

type Option func(*queryOptions)

// WithParams sets the query parameters. They are part of the cache key and
// are sent as the query string.
func WithParams(params any) Option {
	return func(o *queryOptions) {
		o.params = params
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(o *queryOptions) {
		o.headers = maps.Clone(headers)
	}
}

// WithRetry sets the number of retries after the first attempt.
func WithRetry(n int) Option {
	return func(o *queryOptions) {
		o.Retry = n
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *queryOptions) {
		o.RetryDelay = d
	}
}

func WithStaleTime(d time.Duration) Option {
	return func(o *queryOptions) {
		o.StaleTime = d
	}
}

func WithStaleWhileRevalidate(enabled bool) Option {
	return func(o *queryOptions) {
		o.StaleWhileRevalidate = enabled
	}
}
