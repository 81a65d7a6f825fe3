package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IsaacDSC/gquery/internal/apiclient"
	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/mocks/mockapiclient"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type fixture struct {
	api   *mockapiclient.MockRequester
	clock *testclock.Clock
	store *cachestore.Store
	ctrl  *fetcher.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mc := gomock.NewController(t)
	clk := testclock.NewClock(epoch)
	store := cachestore.New(cachestore.Options{Clock: clk})
	api := mockapiclient.NewMockRequester(mc)

	return &fixture{
		api:   api,
		clock: clk,
		store: store,
		ctrl: fetcher.NewController(fetcher.Config{
			Store:  store,
			API:    api,
			Clock:  clk,
			Logger: logs.Discard(),
			Defaults: fetcher.Defaults{
				Retry:                0,
				RetryDelay:           time.Second,
				StaleTime:            5 * time.Minute,
				StaleWhileRevalidate: true,
			},
		}),
	}
}

// recordStatuses subscribes to q and returns every emitted status.
func recordStatuses[T any](q *fetcher.Query[T]) func() []fetcher.Status {
	var mu sync.Mutex
	var seen []fetcher.Status
	q.Subscribe(func(s fetcher.State[T]) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Status)
	})
	return func() []fetcher.Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]fetcher.Status(nil), seen...)
	}
}

func TestQuery_FreshHitMakesNoNetworkCall(t *testing.T) {
	f := newFixture(t)
	f.store.Set("users", []byte(`[{"id":1,"name":"u1"}]`))
	f.clock.Advance(4 * time.Minute)

	q := fetcher.NewQuery[[]user](f.ctrl, "users")
	defer q.Close()

	st := q.Fetch(context.Background())

	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 1, Name: "u1"}}, st.Data)
	assert.False(t, st.IsRevalidating)
	assert.Equal(t, epoch, st.UpdatedAt)
}

func TestQuery_MissLoadsAndCaches(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().Do(gomock.Any(), apiclient.Request{
		Method: http.MethodGet,
		Path:   "/users",
		Query:  url.Values{"page": {"2"}, "size": {"10"}},
	}).Return([]byte(`[{"id":2}]`), nil)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users", fetcher.WithParams(map[string]any{"size": 10, "page": 2}))
	defer q.Close()
	statuses := recordStatuses(q)

	assert.Equal(t, "/users?page=2&size=10", q.Key())
	assert.Equal(t, fetcher.StatusIdle, q.State().Status)

	st := q.Fetch(context.Background())

	require.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 2}}, st.Data)
	assert.Equal(t, []fetcher.Status{fetcher.StatusLoading, fetcher.StatusSuccess}, statuses())

	e, ok := f.store.Get("/users?page=2&size=10")
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":2}]`, string(e.Value))

	// second read within the stale window is served from the cache
	assert.Equal(t, []user{{ID: 2}}, q.Fetch(context.Background()).Data)
}

func TestQuery_StaleWhileRevalidate(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users", []byte(`[{"id":1}]`))
	f.clock.Advance(6 * time.Minute)

	release := make(chan struct{})
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ apiclient.Request) ([]byte, error) {
		<-release
		return []byte(`[{"id":1},{"id":2}]`), nil
	})

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()

	st := q.Fetch(context.Background())
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.True(t, st.IsRevalidating)
	assert.Equal(t, []user{{ID: 1}}, st.Data, "stale data is returned immediately")

	close(release)
	assert.Eventually(t, func() bool { return !q.State().IsRevalidating }, time.Second, time.Millisecond)

	st = q.State()
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 1}, {ID: 2}}, st.Data)
	assert.NoError(t, st.RevalidateErr)

	e, _ := f.store.Get("/users")
	assert.Equal(t, f.clock.Now(), e.Timestamp, "entry is restamped")
}

func TestQuery_StaleWhileRevalidateFailureKeepsData(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users", []byte(`[{"id":1}]`))
	f.clock.Advance(6 * time.Minute)

	boom := &apierr.Error{Message: "503 Service Unavailable", StatusCode: 503}
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, boom)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()
	statuses := recordStatuses(q)

	q.Fetch(context.Background())
	assert.Eventually(t, func() bool { return !q.State().IsRevalidating }, time.Second, time.Millisecond)

	st := q.State()
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 1}}, st.Data)
	assert.NoError(t, st.Err)
	assert.ErrorIs(t, st.RevalidateErr, boom)
	assert.NotContains(t, statuses(), fetcher.StatusError)

	e, ok := f.store.Get("/users")
	require.True(t, ok)
	assert.Equal(t, epoch, e.Timestamp, "stale entry is retained")
}

func TestQuery_StaleWithoutRevalidateBlocks(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users", []byte(`[{"id":1}]`))
	f.clock.Advance(6 * time.Minute)
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return([]byte(`[{"id":3}]`), nil)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users", fetcher.WithStaleWhileRevalidate(false))
	defer q.Close()

	var loading fetcher.State[[]user]
	q.Subscribe(func(s fetcher.State[[]user]) {
		if s.Status == fetcher.StatusLoading {
			loading = s
		}
	})

	st := q.Fetch(context.Background())

	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 3}}, st.Data)
	assert.True(t, loading.HasData, "stale data is retained while loading")
	assert.Equal(t, []user{{ID: 1}}, loading.Data)
}

func TestQuery_RetryThenSuccess(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, apiclient.Request) ([]byte, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("connection reset")
		}
		return []byte(`[{"id":9}]`), nil
	}).Times(3)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users", fetcher.WithRetry(2))
	defer q.Close()

	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(context.Background()) }()

	require.NoError(t, f.clock.WaitAdvance(time.Second, time.Second, 1))
	require.NoError(t, f.clock.WaitAdvance(2*time.Second, time.Second, 1))

	st := <-done
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 9}}, st.Data)
	assert.Equal(t, 1, f.store.Len())
}

func TestQuery_RetryExhausted(t *testing.T) {
	f := newFixture(t)
	boom := &apierr.Error{Message: "500 Internal Server Error", StatusCode: 500}
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, boom).Times(3)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users", fetcher.WithRetry(2))
	defer q.Close()
	statuses := recordStatuses(q)

	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(context.Background()) }()

	require.NoError(t, f.clock.WaitAdvance(time.Second, time.Second, 1))
	require.NoError(t, f.clock.WaitAdvance(2*time.Second, time.Second, 1))

	st := <-done
	assert.Equal(t, fetcher.StatusError, st.Status)
	assert.Same(t, boom, st.Err)
	assert.Equal(t, 0, f.store.Len(), "failed reads never populate the cache")
	assert.Equal(t, []fetcher.Status{fetcher.StatusLoading, fetcher.StatusError}, statuses())
}

func TestQuery_ConcurrentReadsShareOneCall(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, apiclient.Request) ([]byte, error) {
		<-release
		return []byte(`[{"id":1}]`), nil
	}).Times(1)

	q1 := fetcher.NewQuery[[]user](f.ctrl, "/users")
	q2 := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q1.Close()
	defer q2.Close()

	var wg sync.WaitGroup
	states := make([]fetcher.State[[]user], 2)
	for i, q := range []*fetcher.Query[[]user]{q1, q2} {
		wg.Add(1)
		go func(i int, q *fetcher.Query[[]user]) {
			defer wg.Done()
			states[i] = q.Fetch(context.Background())
		}(i, q)
	}

	assert.Eventually(t, func() bool { return f.ctrl.Tracker().Waiters("/users") == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, st := range states {
		assert.Equal(t, fetcher.StatusSuccess, st.Status)
		assert.Equal(t, []user{{ID: 1}}, st.Data)
	}
}

func TestQuery_RefetchSupersedesOlderCall(t *testing.T) {
	f := newFixture(t)
	releaseOld := make(chan struct{})
	releaseNew := make(chan struct{})
	var calls atomic.Int32

	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ apiclient.Request) ([]byte, error) {
		switch calls.Add(1) {
		case 1:
			// a slow server that ignores the cancellation
			<-releaseOld
			return []byte(`[{"id":1,"name":"old"}]`), nil
		case 2:
			<-releaseNew
			return []byte(`[{"id":1,"name":"new"}]`), nil
		default:
			return []byte(`[{"id":1,"name":"new"}]`), nil
		}
	}).MinTimes(2)

	q1 := fetcher.NewQuery[[]user](f.ctrl, "/users")
	q2 := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q1.Close()
	defer q2.Close()

	first := make(chan fetcher.State[[]user], 1)
	go func() { first <- q1.Fetch(context.Background()) }()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan fetcher.State[[]user], 1)
	go func() { second <- q2.Refetch(context.Background()) }()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	close(releaseNew)
	st := <-second
	assert.Equal(t, "new", st.Data[0].Name)

	close(releaseOld)
	st = <-first
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, "new", st.Data[0].Name, "superseded waiter picks up the newer result")

	e, _ := f.store.Get("/users")
	assert.JSONEq(t, `[{"id":1,"name":"new"}]`, string(e.Value), "old result never overwrites the cache")
}

func TestQuery_SetKeyAbandonsOldKey(t *testing.T) {
	f := newFixture(t)
	oldCancelled := make(chan struct{})

	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, r apiclient.Request) ([]byte, error) {
		if r.Path == "/users/1" {
			<-ctx.Done()
			close(oldCancelled)
			return nil, ctx.Err()
		}
		return []byte(`{"id":2}`), nil
	}).Times(2)

	q := fetcher.NewQuery[user](f.ctrl, "/users/1")
	defer q.Close()

	first := make(chan fetcher.State[user], 1)
	go func() { first <- q.Fetch(context.Background()) }()
	assert.Eventually(t, func() bool { return f.ctrl.Tracker().Pending("/users/1") }, time.Second, time.Millisecond)

	st := q.SetKey(context.Background(), "/users/2", nil)

	assert.Equal(t, "/users/2", q.Key())
	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, user{ID: 2}, st.Data)

	<-oldCancelled
	<-first
	assert.False(t, f.ctrl.Tracker().Pending("/users/1"))
	_, ok := f.store.Get("/users/1")
	assert.False(t, ok)
	assert.Equal(t, user{ID: 2}, q.State().Data, "abandoned request never touches the state")
}

func TestQuery_CloseStopsTransitions(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ apiclient.Request) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	statuses := recordStatuses(q)

	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(context.Background()) }()
	assert.Eventually(t, func() bool { return f.ctrl.Tracker().Pending("/users") }, time.Second, time.Millisecond)

	q.Close()
	st := <-done

	assert.Equal(t, fetcher.StatusLoading, st.Status, "abort is not an error")
	assert.NoError(t, st.Err)
	assert.Equal(t, []fetcher.Status{fetcher.StatusLoading}, statuses())
	assert.Equal(t, fetcher.StatusLoading, q.Fetch(context.Background()).Status, "closed query ignores Fetch")
}

func TestQuery_CallerCancelIsSilent(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ apiclient.Request) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	q := fetcher.NewQuery[[]user](f.ctrl, "/users", fetcher.WithRetry(3))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(ctx) }()
	assert.Eventually(t, func() bool { return f.ctrl.Tracker().Pending("/users") }, time.Second, time.Millisecond)

	cancel()
	st := <-done

	assert.NotEqual(t, fetcher.StatusError, st.Status)
	assert.NoError(t, st.Err)
	assert.Eventually(t, func() bool { return !f.ctrl.Tracker().Pending("/users") }, time.Second, time.Millisecond)
}

func TestQuery_CorruptEntryIsEvictedAndRefetched(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users", []byte(`{"not":"a list"}`))
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return([]byte(`[{"id":5}]`), nil)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()

	st := q.Fetch(context.Background())

	assert.Equal(t, fetcher.StatusSuccess, st.Status)
	assert.Equal(t, []user{{ID: 5}}, st.Data)
	e, _ := f.store.Get("/users")
	assert.JSONEq(t, `[{"id":5}]`, string(e.Value))
}

func TestController_InvalidateAndClear(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users?page=1", []byte(`[]`))
	f.store.Set("/users?page=2", []byte(`[]`))
	f.store.Set("/teams", []byte(`[]`))

	assert.True(t, f.ctrl.InvalidateQuery("/users", map[string]int{"page": 1}))
	assert.False(t, f.ctrl.InvalidateQuery("/users", map[string]int{"page": 1}))
	assert.Equal(t, []string{"/teams", "/users?page=2"}, f.store.Keys())

	f.ctrl.ClearCache()
	assert.Equal(t, 0, f.store.Len())
}

func TestController_InvalidatedQueryRefetches(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return([]byte(`[{"id":1}]`), nil),
		f.api.EXPECT().Do(gomock.Any(), gomock.Any()).Return([]byte(`[{"id":1},{"id":2}]`), nil),
	)

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()

	assert.Len(t, q.Fetch(context.Background()).Data, 1)
	f.ctrl.InvalidateQuery("/users", nil)
	assert.Len(t, q.Fetch(context.Background()).Data, 2)
}

func TestController_ClearCacheCancelsInflightFetch(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, apiclient.Request) ([]byte, error) {
		close(started)
		// answers even though its context was cancelled
		<-release
		return []byte(`[{"id":1,"name":"old-session"}]`), nil
	})

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()

	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(context.Background()) }()
	<-started

	f.ctrl.ClearCache()
	assert.False(t, f.ctrl.Tracker().Pending("/users"))
	close(release)

	st := <-done
	assert.Equal(t, fetcher.StatusLoading, st.Status, "a cleared fetch is an abort")
	assert.False(t, st.HasData)
	assert.NoError(t, st.Err)

	_, ok := f.store.Get("/users")
	assert.False(t, ok, "cleared fetch must not repopulate the store")
	assert.Equal(t, 0, f.store.Len())
}

func TestQuery_ClearCacheEndsRevalidation(t *testing.T) {
	f := newFixture(t)
	f.store.Set("/users", []byte(`[{"id":1}]`))
	f.clock.Advance(6 * time.Minute)

	release := make(chan struct{})
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, apiclient.Request) ([]byte, error) {
		<-release
		return []byte(`[{"id":2}]`), nil
	})

	q := fetcher.NewQuery[[]user](f.ctrl, "/users")
	defer q.Close()

	require.True(t, q.Fetch(context.Background()).IsRevalidating)
	assert.Eventually(t, func() bool { return f.ctrl.Tracker().Pending("/users") }, time.Second, time.Millisecond)

	f.ctrl.ClearCache()
	close(release)

	assert.Eventually(t, func() bool { return !q.State().IsRevalidating }, time.Second, time.Millisecond)
	st := q.State()
	assert.Equal(t, []user{{ID: 1}}, st.Data)
	assert.NoError(t, st.RevalidateErr)
	assert.Equal(t, 0, f.store.Len())
}

func TestQuery_CloseRacingStaleFetch(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ apiclient.Request) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()

	for range 200 {
		f.store.Set("/users", []byte(`[{"id":1}]`))
		f.clock.Advance(6 * time.Minute)

		q := fetcher.NewQuery[[]user](f.ctrl, "/users")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.Fetch(context.Background())
		}()
		go func() {
			defer wg.Done()
			q.Close()
		}()
		wg.Wait()
		q.Close()

		assert.Eventually(t, func() bool { return f.ctrl.Tracker().Len() == 0 }, time.Second, time.Millisecond)
	}
}
