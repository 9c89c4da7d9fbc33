// Package config loads the proxy configuration from the environment.
//
// Every variable carries the MCP_ prefix, e.g. MCP_UPSTREAM_URL or
// MCP_AUDIO_LIMIT. List values are comma separated.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/media-cache-proxy/pkg/logging"
)

// Prefix is prepended to every environment variable name.
const Prefix = "MCP_"

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds the proxy configuration.
type Config struct {
	// HTTP server
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Upstream
	UpstreamURL    string        `env:"UPSTREAM_URL"`
	UserAgent      string        `env:"USER_AGENT" envDefault:"media-cache-proxy/0.1.0"`
	AuthToken      string        `env:"AUTH_TOKEN"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Store
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// EventsChannel is the Redis pub/sub channel for status events. Empty
	// disables publishing.
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"mcache:events"`

	// Audio cache
	AudioStore      string   `env:"AUDIO_STORE" envDefault:"audio"`
	AudioLimit      int      `env:"AUDIO_LIMIT" envDefault:"50"`
	MediaPrefixes   []string `env:"MEDIA_PATH_PREFIXES" envSeparator:"," envDefault:"/audio/,/media/"`
	MediaExtensions []string `env:"MEDIA_EXTENSIONS" envSeparator:"," envDefault:".mp3,.m4a,.m4b,.aac,.ogg,.opus,.flac,.wav"`

	// Network-first cache
	APIStore     string `env:"API_STORE" envDefault:"api"`
	APILimit     int    `env:"API_LIMIT" envDefault:"500"`
	NetworkFirst bool   `env:"NETWORK_FIRST" envDefault:"true"`

	// Prefetch
	PrefetchAttempts    int `env:"PREFETCH_ATTEMPTS" envDefault:"1"`
	PrefetchConcurrency int `env:"PREFETCH_CONCURRENCY" envDefault:"4"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// DefaultConfig returns the configuration with every default applied and
// no environment read.
func DefaultConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      Prefix,
		Environment: map[string]string{},
	})
	if err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// Parse reads the configuration from the process environment without
// validating it, so callers can apply overrides first.
func Parse() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Load parses the configuration from the process environment and validates
// it.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("upstream URL is required"))
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream URL %q must be an absolute http(s) URL", c.UpstreamURL))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user agent is required"))
	}

	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}

	if c.AudioStore == "" || c.APIStore == "" {
		errs = append(errs, errors.New("store names are required"))
	} else if c.AudioStore == c.APIStore {
		errs = append(errs, errors.New("audio and API stores must have distinct names"))
	}
	if c.AudioLimit < 1 {
		errs = append(errs, fmt.Errorf("audio limit must be >= 1 (got %d)", c.AudioLimit))
	}
	if c.APILimit < 1 {
		errs = append(errs, fmt.Errorf("API limit must be >= 1 (got %d)", c.APILimit))
	}
	if c.PrefetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("prefetch attempts must be >= 1 (got %d)", c.PrefetchAttempts))
	}
	if c.PrefetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("prefetch concurrency must be >= 1 (got %d)", c.PrefetchConcurrency))
	}
	if _, err := logging.ParseLevel(logging.LogLevel(c.LogLevel)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
