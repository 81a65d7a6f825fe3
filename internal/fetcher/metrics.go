package fetcher

import (
	"time"

	"github.com/IsaacDSC/gquery/internal/retrier"
)

// Metrics observes the network side of the read path.
type Metrics interface {
	retrier.Observer
	// Request is called once per deduplicated network fetch, after retries.
	Request(elapsed time.Duration, err error)
	Revalidation(ok bool)
}

type NoopMetrics struct{}

func (NoopMetrics) Retry(int, error)             {}
func (NoopMetrics) Request(time.Duration, error) {}
func (NoopMetrics) Revalidation(bool)            {}

var _ Metrics = NoopMetrics{}
