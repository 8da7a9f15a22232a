// Package dashapi is the data-access layer every dashboard panel goes through.
// Reads are served from a request cache when fresh, concurrent identical calls
// share one network round trip, and recoverable failures are retried with a
// linear backoff before being reported as a ClassifiedError.
package dashapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/mldash/cache"
	"github.com/briangreenhill/mldash/inflight"
)

const DefaultBaseURL = "http://localhost:8085"

// Config holds the construction-time settings of a Client
type Config struct {
	BaseURL        string        `env:"BASE_URL" yaml:"base_url"`
	CacheExpiry    time.Duration `env:"CACHE_EXPIRY" yaml:"cache_expiry"`
	MaxRetries     int           `env:"MAX_RETRIES" yaml:"max_retries"`
	RetryDelayBase time.Duration `env:"RETRY_DELAY_BASE" yaml:"retry_delay_base"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout"`

	// PipelineTimeout bounds the ZenML and Airflow calls, which the backend
	// runs synchronously for up to five minutes
	PipelineTimeout time.Duration `env:"PIPELINE_TIMEOUT" yaml:"pipeline_timeout"`
}

// DefaultConfig returns the stock settings: 5m cache, 3 retries, 1s delay base
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		CacheExpiry:    cache.DefaultTTL,
		MaxRetries:     3,
		RetryDelayBase: time.Second,
		RequestTimeout: 30 * time.Second,

		PipelineTimeout: 6 * time.Minute,
	}
}

// Validate checks that the settings are usable
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https, got %q", c.BaseURL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RequestTimeout < 0 || c.PipelineTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.RetryDelayBase < 0 {
		return fmt.Errorf("retry delay base must not be negative, got %s", c.RetryDelayBase)
	}
	return nil
}

// Client talks to the dashboard backend. One Client (and so one cache and one
// in-flight registry) is built per running dashboard and shared by all panels.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	cfg     Config

	cache    cache.Cache
	inflight *inflight.Registry[json.RawMessage]
	logger   zerolog.Logger

	// onRetry is called before every retry wait; tests use it to record delays
	onRetry func(endpoint string, attempt int, delay time.Duration, err *ClassifiedError)
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Deadlines are applied per request
// from Config, so h.Timeout should be left zero: it would also cap pipeline runs.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache replaces the in-memory cache built from Config.CacheExpiry
func WithCache(cc cache.Cache) Option {
	return func(c *Client) { c.cache = cc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client. Zero-valued fields of cfg fall back to DefaultConfig,
// except MaxRetries: 0 disables retries.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, _ := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))

	c := &Client{
		http:     &http.Client{},
		baseURL:  u,
		cfg:      cfg,
		inflight: inflight.NewRegistry[json.RawMessage](),
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.cache == nil {
		c.cache = cache.NewInstrumented(cache.NewMemoryCache(cfg.CacheExpiry))
	}
	return c, nil
}

// Config returns the settings the client was built with
func (c *Client) Config() Config {
	return c.cfg
}

// Cache exposes the request cache, e.g. for explicit invalidation
func (c *Client) Cache() cache.Cache {
	return c.cache
}

// Pending returns the number of network calls currently in flight
func (c *Client) Pending() int {
	return c.inflight.Pending()
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.CacheExpiry == 0 {
		cfg.CacheExpiry = def.CacheExpiry
	}
	if cfg.RetryDelayBase == 0 {
		cfg.RetryDelayBase = def.RetryDelayBase
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.PipelineTimeout == 0 {
		cfg.PipelineTimeout = def.PipelineTimeout
	}
	return cfg
}
