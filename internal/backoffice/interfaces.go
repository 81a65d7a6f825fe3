package backoffice

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/internal/querycache"
)

// Reader reads a backend resource through the shared cache.
type Reader interface {
	Read(ctx context.Context, path string, params url.Values, refetch bool) fetcher.State[json.RawMessage]
}

// Cache is the administrative surface of the query cache.
type Cache interface {
	InvalidateQuery(path string, params any) bool
	ClearCache()
	Login(ctx context.Context, t authn.Tokens) error
	Logout(ctx context.Context) error
	Stats() querycache.Stats
}
