package backoffice

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/internal/querycache"
	"github.com/IsaacDSC/gquery/internal/querykey"
)

// Queries keeps one mounted query per key so background revalidations outlive
// the request that started them. At most limit queries stay mounted; the oldest
// is closed first.
type Queries struct {
	client *querycache.Client
	limit  int

	mu    sync.Mutex
	byKey map[string]*fetcher.Query[json.RawMessage]
	order []string
}

func NewQueries(client *querycache.Client, limit int) *Queries {
	if limit <= 0 {
		limit = 1
	}
	return &Queries{
		client: client,
		limit:  limit,
		byKey:  make(map[string]*fetcher.Query[json.RawMessage]),
	}
}

func (q *Queries) Read(ctx context.Context, path string, params url.Values, refetch bool) fetcher.State[json.RawMessage] {
	query := q.mount(path, params)
	if refetch {
		return query.Refetch(ctx)
	}
	return query.Fetch(ctx)
}

func (q *Queries) mount(path string, params url.Values) *fetcher.Query[json.RawMessage] {
	key := querykey.Build(path, params)

	q.mu.Lock()
	defer q.mu.Unlock()

	if query, ok := q.byKey[key]; ok {
		return query
	}

	query := querycache.Query[json.RawMessage](q.client, path, fetcher.WithParams(params))
	q.byKey[key] = query
	q.order = append(q.order, key)

	for len(q.order) > q.limit {
		oldest := q.order[0]
		q.order = q.order[1:]
		if old, ok := q.byKey[oldest]; ok {
			delete(q.byKey, oldest)
			go old.Close()
		}
	}

	return query
}

func (q *Queries) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byKey)
}

// Close unmounts every query.
func (q *Queries) Close() {
	q.mu.Lock()
	queries := q.byKey
	q.byKey = make(map[string]*fetcher.Query[json.RawMessage])
	q.order = nil
	q.mu.Unlock()

	for _, query := range queries {
		query.Close()
	}
}
