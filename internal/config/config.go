package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/Alwanly/dify-indexing-watch/pkg/retry"
)

// OfficialDifyHost is the hosted Dify API. Calls against it consume the
// account's quota.
const OfficialDifyHost = "https://api.dify.ai/v1"

type DifyConfig struct {
	Host                string        `env:"TEST_DIFY_HOST" envDefault:"https://api.dify.ai/v1"`
	KnowledgeBaseAPIKey string        `env:"TEST_DIFY_KNOWLEDGE_BASE_API_KEY"`
	RequestTimeout      time.Duration `env:"DIFY_REQUEST_TIMEOUT" envDefault:"60s"`
	TransportRetries    int           `env:"DIFY_TRANSPORT_RETRIES" envDefault:"3"`
	RetryBackoff        time.Duration `env:"DIFY_RETRY_BACKOFF" envDefault:"200ms"`
}

type PollConfig struct {
	MaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"7"`
	BaseDelay   time.Duration `env:"POLL_BASE_DELAY" envDefault:"1s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Channel  string `env:"REDIS_CHANNEL" envDefault:"indexing-events"`
}

type WatcherConfig struct {
	ServerAddr           string `env:"WATCHER_ADDR" envDefault:":8090"`
	DatabasePath         string `env:"DATABASE_PATH" envDefault:"./data/watches.db"`
	APIToken             string `env:"WATCHER_API_TOKEN"`
	MaxConcurrentWatches int64  `env:"MAX_CONCURRENT_WATCHES" envDefault:"16"`
}

// Config holds everything read from the environment. It is loaded once in
// main and handed down explicitly.
type Config struct {
	Dify    DifyConfig
	Poll    PollConfig
	Redis   RedisConfig
	Watcher WatcherConfig

	// CIMarker is set by GitHub Actions; any non-empty value means CI.
	CIMarker string `env:"GITHUB_ACTIONS"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFromMap reads the given variables instead of the process environment.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Dify.Host = strings.TrimRight(cfg.Dify.Host, "/")
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Dify.Host == "" {
		errs = append(errs, errors.New("TEST_DIFY_HOST must not be empty"))
	}
	if c.Dify.KnowledgeBaseAPIKey == "" {
		errs = append(errs, errors.New("TEST_DIFY_KNOWLEDGE_BASE_API_KEY is required"))
	}
	if c.Dify.TransportRetries < 0 {
		errs = append(errs, errors.New("DIFY_TRANSPORT_RETRIES must not be negative"))
	}
	if _, err := c.PollDefaults(); err != nil {
		errs = append(errs, err)
	}
	if c.Watcher.MaxConcurrentWatches < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_WATCHES must be at least 1"))
	}
	return errors.Join(errs...)
}

// PollDefaults converts the poll settings into a validated poll.Config.
func (c *Config) PollDefaults() (poll.Config, error) {
	return poll.NewConfig(c.Poll.MaxAttempts, c.Poll.BaseDelay)
}

// RetryPolicy is the transport retry policy for Dify requests.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     c.Dify.TransportRetries,
		InitialBackoff: c.Dify.RetryBackoff,
		MaxBackoff:     10 * c.Dify.RetryBackoff,
	}
}

// IsOfficialHost reports whether requests go to the hosted Dify API.
func (c *Config) IsOfficialHost() bool {
	return c.Dify.Host == OfficialDifyHost
}

// RunningInCI reports whether the process runs under GitHub Actions.
func (c *Config) RunningInCI() bool {
	return c.CIMarker != ""
}

// RedisEnabled reports whether outcome events should be published.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
