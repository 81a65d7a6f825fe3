// Package authn attaches bearer credentials to outgoing API requests and keeps
// the access token fresh.
//
// The Interceptor is an http.RoundTripper. Before each request it decodes the
// stored access token's exp claim; a token that expires within the skew margin
// (or cannot be decoded) is exchanged through the refresh endpoint. Concurrent
// requests share a single refresh call. When the refresh fails the stored
// credentials are cleared, the session-expired hook fires and the request fails
// with apierr.ErrUnauthenticated.
package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpirySkew = 30 * time.Second
	refreshGroupKey   = "refresh"
)

var (
	ErrNoRefreshToken = errors.New("no refresh token stored")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

// Tokens is the stored credential pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether no credential at all is stored.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// TokenStore is the durable client storage for the credential pair.
type TokenStore interface {
	Tokens(ctx context.Context) (Tokens, error)
	SetTokens(ctx context.Context, t Tokens) error
	SetAccessToken(ctx context.Context, token string) error
	ClearTokens(ctx context.Context) error
}

// Metrics receives refresh outcomes.
type Metrics interface {
	Refresh(ok bool)
}

type Config struct {
	// RefreshURL is the absolute URL of the refresh-token endpoint.
	RefreshURL string
	// LoginURL is handed to OnSessionExpired.
	LoginURL   string
	ExpirySkew time.Duration
	Clock      clock.Clock
	// Base sends the requests, including the refresh call itself.
	Base             http.RoundTripper
	OnSessionExpired func(ctx context.Context, loginURL string)
	Metrics          Metrics
}

type Interceptor struct {
	store TokenStore
	conf  Config
	base  http.RoundTripper
	group singleflight.Group
}

var _ http.RoundTripper = (*Interceptor)(nil)

func New(store TokenStore, conf Config) *Interceptor {
	if conf.ExpirySkew <= 0 {
		conf.ExpirySkew = DefaultExpirySkew
	}
	if conf.Clock == nil {
		conf.Clock = clock.WallClock
	}
	if conf.Base == nil {
		conf.Base = http.DefaultTransport
	}

	return &Interceptor{
		store: store,
		conf:  conf,
		base:  conf.Base,
	}
}

type skipKey struct{}

// WithoutCredentials marks ctx so requests made with it carry no bearer header
// and never trigger a refresh.
func WithoutCredentials(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

func skipped(ctx context.Context) bool {
	v, _ := ctx.Value(skipKey{}).(bool)
	return v
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if skipped(ctx) {
		return i.base.RoundTrip(req)
	}

	token, err := i.AccessToken(ctx)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	if token == "" {
		return i.base.RoundTrip(req)
	}

	authed := req.Clone(ctx)
	authed.Header.Set("Authorization", "Bearer "+token)
	return i.base.RoundTrip(authed)
}

// AccessToken returns a valid access token, refreshing it first when needed. An
// empty token with a nil error means no credentials are stored.
func (i *Interceptor) AccessToken(ctx context.Context) (string, error) {
	tokens, err := i.store.Tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("read tokens: %w", err)
	}
	if tokens.Empty() {
		return "", nil
	}
	if tokens.AccessToken != "" && !i.Expired(tokens.AccessToken) {
		return tokens.AccessToken, nil
	}

	ch := i.group.DoChan(refreshGroupKey, func() (any, error) {
		// the refresh outlives any single caller
		return i.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Expired reports whether token must be refreshed: its exp claim falls within
// the skew margin of now, or the token cannot be decoded. A token without an
// exp claim never expires.
func (i *Interceptor) Expired(token string) bool {
	tok, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return true
	}

	exp := tok.Expiration()
	if exp.IsZero() {
		return false
	}
	return !exp.Add(-i.conf.ExpirySkew).After(i.conf.Clock.Now())
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (i *Interceptor) refresh(ctx context.Context) (string, error) {
	logger := ctxlogger.GetLogger(ctx)

	tokens, err := i.store.Tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("read tokens: %w", err)
	}
	// another caller may have refreshed while this one was deciding
	if tokens.AccessToken != "" && !i.Expired(tokens.AccessToken) {
		return tokens.AccessToken, nil
	}
	if tokens.Empty() {
		return "", nil
	}

	res, err := i.exchange(ctx, tokens.RefreshToken)
	if err == nil {
		err = i.persist(ctx, res)
	}
	if err != nil {
		logger.Warn("access token refresh failed, clearing session", "error", err)
		i.observe(false)
		if clearErr := i.store.ClearTokens(ctx); clearErr != nil {
			logger.Error("clear tokens", "error", clearErr)
		}
		if i.conf.OnSessionExpired != nil {
			i.conf.OnSessionExpired(ctx, i.conf.LoginURL)
		}
		return "", fmt.Errorf("%w: %v", apierr.ErrUnauthenticated, err)
	}

	logger.Debug("access token refreshed")
	i.observe(true)
	return res.AccessToken, nil
}

func (i *Interceptor) exchange(ctx context.Context, refreshToken string) (refreshResponse, error) {
	var out refreshResponse
	if refreshToken == "" {
		return out, ErrNoRefreshToken
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return out, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.conf.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.base.RoundTrip(req)
	if err != nil {
		return out, fmt.Errorf("post refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode > 299 {
		return out, fmt.Errorf("%w: %v", ErrRefreshFailed, apierr.FromResponse(resp.Status, resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrRefreshFailed, apierr.ErrMalformedResponse)
	}
	if out.AccessToken == "" {
		return out, fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}
	return out, nil
}

func (i *Interceptor) persist(ctx context.Context, res refreshResponse) error {
	if res.RefreshToken != "" {
		if err := i.store.SetTokens(ctx, Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}); err != nil {
			return fmt.Errorf("store tokens: %w", err)
		}
		return nil
	}
	if err := i.store.SetAccessToken(ctx, res.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

func (i *Interceptor) observe(ok bool) {
	if i.conf.Metrics != nil {
		i.conf.Metrics.Refresh(ok)
	}
}
