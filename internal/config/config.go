package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Engines understood by render.engine.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// lockHoldMargin covers browser shutdown and the final write after a render times out.
const lockHoldMargin = 10 * time.Second

// Lock backends understood by locks.backend.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config is the full service configuration as read from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Output      OutputConfig      `yaml:"output"`
	Render      RenderConfig      `yaml:"render"`
	Locks       LocksConfig       `yaml:"locks"`
	Cache       CacheConfig       `yaml:"cache"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Auth        AuthConfig        `yaml:"auth"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Prefork     bool   `yaml:"prefork"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// OutputConfig describes the directory tree images are written into.
type OutputConfig struct {
	// Root is the absolute directory every destination path is confined to.
	Root string `yaml:"root"`
}

// RenderConfig holds the browser workflow constants. Every field has a
// default in Defaults so that the capture contract does not depend on literals
// spread through the engines.
type RenderConfig struct {
	// Engine selects the browser driver: "chromedp" (default) or "rod".
	Engine string `yaml:"engine"`
	// ChromePath overrides browser discovery. CHROME_BIN is used when empty.
	ChromePath string `yaml:"chrome_path"`
	// NoSandbox disables the Chrome sandbox, which containers usually require.
	NoSandbox bool `yaml:"no_sandbox"`
	// UserDataDir is the base directory for per-session browser profiles (default: os temp dir).
	UserDataDir string `yaml:"user_data_dir"`

	// Selector locates the element that is captured (default ".code-container").
	Selector string `yaml:"selector"`
	// ViewportWidth and ViewportHeight are the initial CSS viewport (default 2048x1536).
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
	// DeviceScaleFactor multiplies output pixels per CSS pixel (default 2).
	DeviceScaleFactor float64 `yaml:"device_scale_factor"`
	// Padding is added on every side of the element box, in CSS pixels (default 4).
	Padding float64 `yaml:"padding"`

	// NetworkIdle is how long no request may be in flight before content counts as loaded (default 500ms).
	NetworkIdle time.Duration `yaml:"network_idle"`
	// SettleDelay is slept right before capture (default 100ms).
	SettleDelay time.Duration `yaml:"settle_delay"`
	// JPEGQuality applies to .jpg/.jpeg outputs (default 90).
	JPEGQuality int `yaml:"jpeg_quality"`

	// Timeout bounds one render from browser launch to capture (default 30s).
	Timeout time.Duration `yaml:"timeout"`
	// AcquireTimeout bounds the wait for a free browser slot (default 10s).
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// MaxConcurrent caps simultaneous browser instances. 0 derives it from GOMAXPROCS.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type LocksConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type CacheConfig struct {
	RedisHost   string `yaml:"redis_host"`
	RateLimitDB int    `yaml:"redis_rate_db"`
	LockDB      int    `yaml:"redis_lock_db"`
}

type RateLimiterConfig struct {
	EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	UserLimit         int           `yaml:"user_limit"`
	Interval          time.Duration `yaml:"interval"`
}

type AuthConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Required       bool           `yaml:"required"`
	ReloadInterval time.Duration  `yaml:"reload_interval"`
	Postgres       PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Defaults returns the configuration used for every key the YAML file omits.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        ":3000",
			BodyLimitMB: 10,
		},
		Logger: LoggerConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Output: OutputConfig{Root: "/output"},
		Render: RenderConfig{
			Engine:            EngineChromedp,
			NoSandbox:         true,
			Selector:          ".code-container",
			ViewportWidth:     2048,
			ViewportHeight:    1536,
			DeviceScaleFactor: 2,
			Padding:           4,
			NetworkIdle:       500 * time.Millisecond,
			SettleDelay:       100 * time.Millisecond,
			JPEGQuality:       90,
			Timeout:           30 * time.Second,
			AcquireTimeout:    10 * time.Second,
		},
		Locks: LocksConfig{
			Backend:       LockBackendMemory,
			TTL:           time.Minute,
			RetryInterval: 50 * time.Millisecond,
		},
		Cache: CacheConfig{
			RedisHost:   "127.0.0.1:6379",
			RateLimitDB: 0,
			LockDB:      1,
		},
		RateLimiter: RateLimiterConfig{Interval: time.Minute},
		Auth:        AuthConfig{ReloadInterval: time.Minute},
	}
}

// Load reads the file named by CONFIG_PATH, or config.yaml in the working directory.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads path on top of Defaults, applies environment overrides and
// validates the result. A missing file yields the defaults; a malformed file or
// an invalid value panics, since the service cannot start in either case.
func LoadFrom(path string) Config {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	// Common container variable for the browser binary.
	if cfg.Render.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Render.ChromePath = v
		}
	}
	if v := os.Getenv("OUTPUT_ROOT"); v != "" {
		cfg.Output.Root = v
	}
}

// Validate checks value ranges and normalizes the output root to an absolute path.
func (c *Config) Validate() error {
	if c.Output.Root == "" {
		return errors.New("output.root must not be empty")
	}
	root, err := filepath.Abs(c.Output.Root)
	if err != nil {
		return fmt.Errorf("output.root: %w", err)
	}
	c.Output.Root = root

	r := c.Render
	switch r.Engine {
	case EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("render.engine %q is not supported", r.Engine)
	}
	if r.Selector == "" {
		return errors.New("render.selector must not be empty")
	}
	if r.ViewportWidth <= 0 || r.ViewportHeight <= 0 {
		return errors.New("render viewport must be positive")
	}
	if r.DeviceScaleFactor <= 0 {
		return errors.New("render.device_scale_factor must be positive")
	}
	if r.Padding < 0 {
		return errors.New("render.padding must not be negative")
	}
	if r.NetworkIdle < 0 || r.SettleDelay < 0 {
		return errors.New("render delays must not be negative")
	}
	if r.JPEGQuality < 1 || r.JPEGQuality > 100 {
		return errors.New("render.jpeg_quality must be within 1..100")
	}
	if r.Timeout <= 0 || r.AcquireTimeout <= 0 {
		return errors.New("render timeouts must be positive")
	}
	if r.MaxConcurrent < 0 {
		return errors.New("render.max_concurrent must not be negative")
	}

	switch c.Locks.Backend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Cache.RedisHost == "" {
			return errors.New("locks.backend redis requires cache.redis_host")
		}
		// A lock that expires mid-render lets a second writer in.
		if hold := c.Render.AcquireTimeout + c.Render.Timeout + lockHoldMargin; c.Locks.TTL <= hold {
			return fmt.Errorf("locks.ttl must exceed render.acquire_timeout + render.timeout + %s (%s)", lockHoldMargin, hold)
		}
	default:
		return fmt.Errorf("locks.backend %q is not supported", c.Locks.Backend)
	}
	if c.Locks.TTL <= 0 || c.Locks.RetryInterval <= 0 {
		return errors.New("locks ttl and retry_interval must be positive")
	}

	if c.Server.BodyLimitMB <= 0 {
		return errors.New("server.body_limit_mb must be positive")
	}
	if c.RateLimiter.UserLimit < 0 {
		return errors.New("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.Interval <= 0 {
		return errors.New("rate_limiter.interval must be positive")
	}
	if c.Auth.Enabled {
		if c.Auth.Postgres.Host == "" {
			return errors.New("auth.postgres.host is required when auth is enabled")
		}
		if c.Auth.ReloadInterval <= 0 {
			return errors.New("auth.reload_interval must be positive")
		}
	}
	return nil
}
