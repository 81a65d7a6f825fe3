package tokenstore

import (
	"fmt"
	"io"

	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromConfig builds the store selected by conf.Storage. The returned closer
// releases backend resources (the Redis connection pool).
func FromConfig(conf cfg.Auth) (authn.TokenStore, io.Closer, error) {
	switch conf.Storage {
	case "", BackendMemory:
		return NewMemory(), nopCloser{}, nil
	case BackendFile:
		return NewFile(conf.FilePath), nopCloser{}, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		return NewRedis(client, conf.KeyPrefix, conf.AccessTokenKey, conf.RefreshTokenKey), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown token storage %q", conf.Storage)
	}
}
