package cfg

import (
	"fmt"
	"sync"
	"time"

	"github.com/IsaacDSC/gquery/pkg/intertime"
	"github.com/ilyakaznacheev/cleanenv"
)

// API describes the backend every request is issued against.
type API struct {
	BaseURL     string `env:"GQ_API_BASE_URL" env-default:"http://localhost:8081" json:"base_url"`
	Prefix      string `env:"GQ_API_PREFIX" env-default:"/api/v1" json:"prefix"`
	LogBodies   bool   `env:"GQ_API_LOG_BODIES" env-default:"false" json:"log_bodies"`
	RefreshPath string `env:"GQ_API_REFRESH_PATH" env-default:"/refresh-token" json:"refresh_path"`
}

// Query holds the read-path defaults.
type Query struct {
	Retry                int                `env:"GQ_QUERY_RETRY" env-default:"3" json:"retry"`
	RetryDelay           intertime.Duration `env:"GQ_QUERY_RETRY_DELAY" env-default:"1s" json:"retry_delay"`
	StaleTime            intertime.Duration `env:"GQ_QUERY_STALE_TIME" env-default:"5m" json:"stale_time"`
	StaleWhileRevalidate bool               `env:"GQ_QUERY_STALE_WHILE_REVALIDATE" env-default:"true" json:"stale_while_revalidate"`
}

// Cache bounds the process-wide store.
type Cache struct {
	MaxSize int `env:"GQ_CACHE_MAX_SIZE" env-default:"100" json:"max_size"`
	// MaxAge of zero means 12x Query.StaleTime.
	MaxAge intertime.Duration `env:"GQ_CACHE_MAX_AGE" json:"max_age"`
	// SweepInterval of zero means Query.StaleTime.
	SweepInterval intertime.Duration `env:"GQ_CACHE_SWEEP_INTERVAL" json:"sweep_interval"`
}

// Mutation holds the write-path defaults.
type Mutation struct {
	Retry      int                `env:"GQ_MUTATION_RETRY" env-default:"0" json:"retry"`
	RetryDelay intertime.Duration `env:"GQ_MUTATION_RETRY_DELAY" env-default:"1s" json:"retry_delay"`
}

// Auth configures credential storage and refresh.
type Auth struct {
	Storage         string             `env:"GQ_AUTH_STORAGE" env-default:"memory" json:"storage"`
	FilePath        string             `env:"GQ_AUTH_FILE_PATH" env-default:".gquery/credentials.json" json:"file_path"`
	RedisAddr       string             `env:"GQ_AUTH_REDIS_ADDR" env-default:"localhost:6379" json:"redis_addr"`
	KeyPrefix       string             `env:"GQ_AUTH_KEY_PREFIX" env-default:"gquery" json:"key_prefix"`
	AccessTokenKey  string             `env:"GQ_AUTH_ACCESS_TOKEN_KEY" env-default:"accessToken" json:"access_token_key"`
	RefreshTokenKey string             `env:"GQ_AUTH_REFRESH_TOKEN_KEY" env-default:"refreshToken" json:"refresh_token_key"`
	ExpirySkew      intertime.Duration `env:"GQ_AUTH_EXPIRY_SKEW" env-default:"30s" json:"expiry_skew"`
	LoginURL        string             `env:"GQ_AUTH_LOGIN_URL" env-default:"/login" json:"login_url"`
}

// Gateway configures the demo HTTP surface started with --service=gateway.
type Gateway struct {
	Addr          string `env:"GQ_GATEWAY_ADDR" env-default:":8080" json:"addr"`
	AdminUser     string `env:"GQ_GATEWAY_ADMIN_USER" env-default:"admin" json:"admin_user"`
	AdminPassword string `env:"GQ_GATEWAY_ADMIN_PASSWORD" json:"-"`
}

// LoadTest drives --service=loadtest against a running gateway.
type LoadTest struct {
	Target   string             `env:"GQ_LOADTEST_TARGET" env-default:"http://localhost:8080" json:"target"`
	Rate     int                `env:"GQ_LOADTEST_RATE" env-default:"50" json:"rate"`
	Duration intertime.Duration `env:"GQ_LOADTEST_DURATION" env-default:"30s" json:"duration"`
	Pages    int                `env:"GQ_LOADTEST_PAGES" env-default:"5" json:"pages"`
}

// Log configures pkg/logs.
type Log struct {
	Level string `env:"GQ_LOG_LEVEL" env-default:"info" json:"level"`
	JSON  bool   `env:"GQ_LOG_JSON" env-default:"true" json:"json"`
}

type Config struct {
	API      API      `json:"api"`
	Query    Query    `json:"query"`
	Cache    Cache    `json:"cache"`
	Mutation Mutation `json:"mutation"`
	Auth     Auth     `json:"auth"`
	Gateway  Gateway  `json:"gateway"`
	LoadTest LoadTest `json:"load_test"`
	Log      Log      `json:"log"`
}

// EffectiveMaxAge resolves the zero-value default of Cache.MaxAge.
func (c Config) EffectiveMaxAge() time.Duration {
	if c.Cache.MaxAge > 0 {
		return c.Cache.MaxAge.Std()
	}
	return 12 * c.Query.StaleTime.Std()
}

// EffectiveSweepInterval resolves the zero-value default of Cache.SweepInterval.
func (c Config) EffectiveSweepInterval() time.Duration {
	if c.Cache.SweepInterval > 0 {
		return c.Cache.SweepInterval.Std()
	}
	return c.Query.StaleTime.Std()
}

// Validate rejects values the controller cannot run with.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.Query.Retry < 0 || c.Mutation.Retry < 0 {
		return fmt.Errorf("retry counts must be >= 0")
	}
	if c.Query.StaleTime <= 0 {
		return fmt.Errorf("stale time must be > 0")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	switch c.Auth.Storage {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unsupported auth storage %q", c.Auth.Storage)
	}
	return nil
}

var (
	cfg    Config
	loaded bool
	mu     sync.Mutex
)

// Get reads the configuration from the environment once and returns it.
func Get() Config {
	mu.Lock()
	defer mu.Unlock()

	if loaded {
		return cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic(err)
	}
	loaded = true

	return cfg
}

// Load reads a JSON config file (keys follow the json tags) and overlays
// environment variables and env-default values on top.
func Load(path string) (Config, error) {
	var c Config
	if err := cleanenv.ReadConfig(path, &c); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return c, nil
}

// Default reads a fresh Config from the environment, env-default tags filling the
// gaps, without touching the cached value returned by Get.
func Default() Config {
	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		panic(err)
	}
	return c
}

func SetConfig(c Config) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}
