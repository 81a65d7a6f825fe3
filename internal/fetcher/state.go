package fetcher

import "time"

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is what a query consumer renders.
type State[T any] struct {
	Status Status
	Data   T
	// HasData is true once Data holds a decoded payload, including while
	// loading with stale data retained.
	HasData bool
	// Err is the last error after retries were exhausted. Cleared on success.
	Err error
	// IsRevalidating is set while a background refetch of a stale hit runs.
	IsRevalidating bool
	// RevalidateErr records the last background refetch failure. It never
	// changes Status.
	RevalidateErr error
	// UpdatedAt is the timestamp of the cache entry Data came from.
	UpdatedAt time.Time
}

func (s State[T]) IsLoading() bool { return s.Status == StatusLoading }
func (s State[T]) IsSuccess() bool { return s.Status == StatusSuccess }
func (s State[T]) IsError() bool   { return s.Status == StatusError }
