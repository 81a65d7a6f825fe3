package querycache_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/internal/mutation"
	"github.com/IsaacDSC/gquery/internal/querycache"
	"github.com/IsaacDSC/gquery/internal/tokenstore"
	"github.com/IsaacDSC/gquery/pkg/intertime"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Expiration(exp).Build()
	require.NoError(t, err)
	b, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("k")))
	require.NoError(t, err)
	return string(b)
}

type server struct {
	*httptest.Server
	userCalls    atomic.Int32
	createCalls  atomic.Int32
	refreshCalls atomic.Int32
	users        []user
	refreshed    string
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{}
	for i := 1; i <= 3; i++ {
		s.users = append(s.users, user{ID: i, Name: gofakeit.Name(), Email: gofakeit.Email()})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		s.userCalls.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"missing token"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(s.users)
	})
	mux.HandleFunc("POST /api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		s.createCalls.Add(1)
		var in user
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Email == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid user","fieldErrors":{"email":"required"}}}`))
			return
		}
		in.ID = 99
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("POST /api/v1/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": s.refreshed})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newClient(t *testing.T, s *server, opts ...querycache.Option) *querycache.Client {
	t.Helper()
	return newClientWithConfig(t, s, func(*cfg.Config) {}, opts...)
}

func newClientWithConfig(t *testing.T, s *server, mutate func(*cfg.Config), opts ...querycache.Option) *querycache.Client {
	t.Helper()
	conf := cfg.Default()
	conf.API.BaseURL = s.URL
	conf.Query.Retry = 0
	conf.Query.RetryDelay = intertime.Duration(time.Millisecond)
	mutate(&conf)

	opts = append([]querycache.Option{
		querycache.WithTokenStore(tokenstore.NewMemory()),
		querycache.WithLogger(logs.Discard()),
	}, opts...)
	c, err := querycache.New(conf, opts...)
	require.NoError(t, err)
	c.Start()
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func TestClient_QueryThroughCache(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(time.Hour)), RefreshToken: "r"}))

	q := querycache.Query[[]user](c, "/users")
	defer q.Close()

	st := q.Fetch(ctx)
	require.Equal(t, fetcher.StatusSuccess, st.Status, "err: %v", st.Err)
	assert.Equal(t, s.users, st.Data)

	q2 := querycache.Query[[]user](c, "/users")
	defer q2.Close()
	assert.Equal(t, s.users, q2.Fetch(ctx).Data)

	assert.Equal(t, int32(1), s.userCalls.Load(), "second query is served from the cache")
	assert.Equal(t, querycache.Stats{Entries: 1, Keys: []string{"/users"}, SweeperRunning: true}, c.Stats())
}

func TestClient_LogoutClearsCache(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(time.Hour)), RefreshToken: "r"}))

	for _, page := range []int{1, 2} {
		q := querycache.Query[[]user](c, "/users", fetcher.WithParams(map[string]int{"page": page}))
		q.Fetch(ctx)
		q.Close()
	}
	require.Equal(t, 2, c.Stats().Entries)
	c.Queries().Store().Set("/teams", []byte(`[]`))

	require.NoError(t, c.Logout(ctx))

	assert.Equal(t, 0, c.Stats().Entries)
	tokens, err := c.Tokens().Tokens(ctx)
	require.NoError(t, err)
	assert.True(t, tokens.Empty())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_LogoutDropsInflightFetch(t *testing.T) {
	s := newServer(t)
	started := make(chan struct{})
	release := make(chan struct{})
	c := newClient(t, s, querycache.WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		close(started)
		<-release
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`[{"id":1,"name":"old-session"}]`)),
			Request:    r,
		}, nil
	})))
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(time.Hour)), RefreshToken: "r"}))

	q := querycache.Query[[]user](c, "/users")
	defer q.Close()

	done := make(chan fetcher.State[[]user], 1)
	go func() { done <- q.Fetch(ctx) }()
	<-started

	require.NoError(t, c.Logout(ctx))
	close(release)

	st := <-done
	assert.False(t, st.HasData)
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, 0, c.Stats().InFlight)
}

func TestClient_RefreshesExpiredToken(t *testing.T) {
	s := newServer(t)
	s.refreshed = token(t, time.Now().Add(time.Hour))
	c := newClient(t, s)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(-time.Minute)), RefreshToken: "r"}))

	q := querycache.Query[[]user](c, "/users")
	defer q.Close()

	st := q.Fetch(ctx)
	require.Equal(t, fetcher.StatusSuccess, st.Status, "err: %v", st.Err)
	assert.Equal(t, int32(1), s.refreshCalls.Load())

	tokens, _ := c.Tokens().Tokens(ctx)
	assert.Equal(t, s.refreshed, tokens.AccessToken)
}

func TestClient_SessionExpired(t *testing.T) {
	s := newServer(t)
	var expired atomic.Int32
	c := newClient(t, s, querycache.WithSessionExpired(func(context.Context, string) { expired.Add(1) }))
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: "garbage"}))

	q := querycache.Query[[]user](c, "/users", fetcher.WithRetry(3))
	defer q.Close()

	st := q.Fetch(ctx)

	assert.Equal(t, fetcher.StatusError, st.Status)
	assert.ErrorIs(t, st.Err, apierr.ErrUnauthenticated)
	assert.Equal(t, int32(1), expired.Load())
	assert.Zero(t, s.userCalls.Load(), "authentication failures are never retried")
}

func TestClient_Mutation(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(time.Hour)), RefreshToken: "r"}))

	q := querycache.Query[[]user](c, "/users")
	defer q.Close()
	q.Fetch(ctx)

	create := querycache.Mutation(c, mutation.Path[user]("/users"), mutation.Config[user, user]{
		OnSuccess: func(user, user) { c.InvalidateQuery("/users", nil) },
	})

	created, err := create.Mutate(ctx, user{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 99, created.ID)
	assert.Equal(t, 0, c.Stats().Entries, "OnSuccess invalidated the list")

	_, err = create.Mutate(ctx, user{Name: "NoEmail"})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, map[string]string{"email": "required"}, apiErr.FieldErrors)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, mutation.StatusError, create.State().Status)
}

func TestClient_MutationRetry(t *testing.T) {
	tests := []struct {
		name  string
		retry *int
		calls int32
	}{
		{name: "configured default", retry: nil, calls: 3},
		{name: "explicit zero", retry: mutation.Retries(0), calls: 1},
		{name: "explicit one", retry: mutation.Retries(1), calls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			c := newClientWithConfig(t, s, func(conf *cfg.Config) {
				conf.Mutation.Retry = 2
				conf.Mutation.RetryDelay = intertime.Duration(time.Millisecond)
			})
			ctx := context.Background()
			require.NoError(t, c.Login(ctx, authn.Tokens{AccessToken: token(t, time.Now().Add(time.Hour)), RefreshToken: "r"}))

			create := querycache.Mutation(c, mutation.Path[user]("/users"), mutation.Config[user, user]{Retry: tt.retry})
			_, err := create.Mutate(ctx, user{Name: "NoEmail"})

			require.Error(t, err)
			assert.Equal(t, tt.calls, s.createCalls.Load())
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	conf := cfg.Default()
	conf.Auth.Storage = "cookie"

	_, err := querycache.New(conf)
	assert.ErrorContains(t, err, "invalid config")
}
