package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/redis/go-redis/v9"
)

// Redis stores each credential under its own key, <prefix>:<name>, so several
// processes can share one session.
type Redis struct {
	client     redis.UniversalClient
	accessKey  string
	refreshKey string
}

var _ authn.TokenStore = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, prefix, accessTokenKey, refreshTokenKey string) *Redis {
	return &Redis{
		client:     client,
		accessKey:  key(prefix, accessTokenKey),
		refreshKey: key(prefix, refreshTokenKey),
	}
}

func key(params ...string) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":")
}

// Keys returns the access and refresh token keys.
func (r *Redis) Keys() (string, string) {
	return r.accessKey, r.refreshKey
}

func (r *Redis) Tokens(ctx context.Context) (authn.Tokens, error) {
	vals, err := r.client.MGet(ctx, r.accessKey, r.refreshKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return authn.Tokens{}, fmt.Errorf("error getting tokens: %w", err)
	}

	var t authn.Tokens
	if len(vals) == 2 {
		t.AccessToken, _ = vals[0].(string)
		t.RefreshToken, _ = vals[1].(string)
	}
	return t, nil
}

func (r *Redis) SetTokens(ctx context.Context, t authn.Tokens) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setOrDel(ctx, pipe, r.accessKey, t.AccessToken)
		setOrDel(ctx, pipe, r.refreshKey, t.RefreshToken)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error setting tokens: %w", err)
	}
	return nil
}

func (r *Redis) SetAccessToken(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.accessKey, token, 0).Err(); err != nil {
		return fmt.Errorf("error setting value for key %s: %w", r.accessKey, err)
	}
	return nil
}

func (r *Redis) ClearTokens(ctx context.Context) error {
	if err := r.client.Del(ctx, r.accessKey, r.refreshKey).Err(); err != nil {
		return fmt.Errorf("error deleting tokens: %w", err)
	}
	return nil
}

func setOrDel(ctx context.Context, pipe redis.Pipeliner, k, v string) {
	if v == "" {
		pipe.Del(ctx, k)
		return
	}
	pipe.Set(ctx, k, v, 0)
}
