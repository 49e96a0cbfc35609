// Package config loads and validates the immutable configuration shared by
// every dispatcher worker: endpoints, request settings, and retry settings.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EndpointConfig is the immutable description of one configured backend.
type EndpointConfig struct {
	URL           string `json:"url"`
	Weight        int    `json:"weight"`
	APIKey        string `json:"api_key,omitempty"`
	Model         string `json:"model,omitempty"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// RequestConfig controls the request-level behavior shared across endpoints.
type RequestConfig struct {
	Timeout   time.Duration `json:"-"`
	TimeoutS  float64       `json:"timeout_seconds"`
	RateLimit int           `json:"rate_limit"`
	Workers   int           `json:"workers"`
}

// RetryConfig controls the backoff schedule used by the retrying sender.
type RetryConfig struct {
	MaxAttempts      int           `json:"max_attempts"`
	InitialBackoff   time.Duration `json:"-"`
	InitialBackoffMs int64         `json:"initial_backoff_ms"`
	MaxBackoff       time.Duration `json:"-"`
	MaxBackoffMs     int64         `json:"max_backoff_ms"`
	Multiplier       float64       `json:"multiplier"`
}

// Config is the full, immutable, shared application configuration.
type Config struct {
	Endpoints []EndpointConfig `json:"endpoints"`
	Request   RequestConfig    `json:"request"`
	Retry     RetryConfig      `json:"retry"`

	// Cooldown is how long an unhealthy endpoint is quarantined before the
	// load balancer's recovery path will probe it again.
	Cooldown time.Duration `json:"-"`

	// AdminAddr, if non-empty, starts the admin/monitoring HTTP server.
	AdminAddr string `json:"-"`

	// LogLevel selects the zap logging verbosity (debug/info/warn/error).
	LogLevel string `json:"-"`
	JSONLogs bool   `json:"-"`
}

const (
	defaultRate             = 1000
	defaultWorkers          = 50
	defaultTimeoutSeconds   = 30
	defaultMaxAttempts      = 3
	defaultInitialBackoffMs = 100
	defaultMaxBackoffMs     = 10000
	defaultMultiplier       = 2.0
	defaultWeight           = 1
	defaultMaxConcurrent    = 100
	defaultCooldown         = 30 * time.Second

	// UnhealthyThreshold is the number of consecutive failures after which
	// an endpoint is quarantined by the load balancer.
	UnhealthyThreshold = 3
)

// FileConfig is the on-disk shape of an endpoints configuration file: an
// endpoints list plus optional request and retry blocks.
type FileConfig struct {
	Endpoints []EndpointConfig `json:"endpoints"`
	Request   *RequestConfig   `json:"request,omitempty"`
	Retry     *RetryConfig     `json:"retry,omitempty"`
}

// LoadFile reads and parses an endpoints configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
	}

	cfg := Default()
	cfg.Endpoints = fc.Endpoints
	if fc.Request != nil {
		cfg.Request = *fc.Request
	}
	if fc.Retry != nil {
		cfg.Retry = *fc.Retry
	}
	cfg.resolveDurations()
	cfg.applyEndpointDefaults()

	return cfg, nil
}

// Default returns a configuration with every field set to its documented
// default (§3 and the Rust original's default impls), before CLI overrides.
func Default() Config {
	return Config{
		Request: RequestConfig{
			Timeout:   defaultTimeoutSeconds * time.Second,
			TimeoutS:  defaultTimeoutSeconds,
			RateLimit: defaultRate,
			Workers:   defaultWorkers,
		},
		Retry: RetryConfig{
			MaxAttempts:      defaultMaxAttempts,
			InitialBackoff:   defaultInitialBackoffMs * time.Millisecond,
			InitialBackoffMs: defaultInitialBackoffMs,
			MaxBackoff:       defaultMaxBackoffMs * time.Millisecond,
			MaxBackoffMs:     defaultMaxBackoffMs,
			Multiplier:       defaultMultiplier,
		},
		Cooldown: defaultCooldown,
		LogLevel: "info",
	}
}

// FromEnv builds a single-endpoint configuration from BLAZE_-prefixed
// environment variables, used when no --config file is supplied.
func FromEnv() Config {
	LoadDotEnv()

	cfg := Default()
	cfg.Endpoints = []EndpointConfig{{
		URL:           getEnv("BLAZE_ENDPOINT_URL", "http://localhost:8080/v1/completions"),
		Weight:        defaultWeight,
		APIKey:        getEnv("BLAZE_API_KEY", ""),
		Model:         getEnv("BLAZE_MODEL", ""),
		MaxConcurrent: defaultMaxConcurrent,
	}}
	cfg.Request.RateLimit = getEnvInt("BLAZE_RATE", defaultRate)
	cfg.Request.Workers = getEnvInt("BLAZE_WORKERS", defaultWorkers)
	cfg.Retry.MaxAttempts = getEnvInt("BLAZE_MAX_ATTEMPTS", defaultMaxAttempts)
	cfg.resolveDurations()
	return cfg
}

// LoadDotEnv loads a default .env file, logging (not failing) when absent -
// the teacher's loadEnvironmentConfig pattern, generalized from tier-specific
// files to a single optional .env.
func LoadDotEnv() {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env file")
	} else {
		log.Printf("config: no .env file found, using process environment")
	}
}

// resolveDurations fills any zero Duration field from its serializable
// millisecond/second counterpart (or the default), and replaces other zero
// settings with their defaults. The serializable fields are not updated
// from the Duration fields.
func (c *Config) resolveDurations() {
	if c.Request.Timeout == 0 {
		if c.Request.TimeoutS > 0 {
			c.Request.Timeout = time.Duration(c.Request.TimeoutS * float64(time.Second))
		} else {
			c.Request.Timeout = defaultTimeoutSeconds * time.Second
		}
	}
	if c.Retry.InitialBackoff == 0 {
		if c.Retry.InitialBackoffMs > 0 {
			c.Retry.InitialBackoff = time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
		} else {
			c.Retry.InitialBackoff = defaultInitialBackoffMs * time.Millisecond
		}
	}
	if c.Retry.MaxBackoff == 0 {
		if c.Retry.MaxBackoffMs > 0 {
			c.Retry.MaxBackoff = time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond
		} else {
			c.Retry.MaxBackoff = defaultMaxBackoffMs * time.Millisecond
		}
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = defaultMultiplier
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Request.RateLimit == 0 {
		// A zero-capacity token bucket can never issue a token; coerce to 1
		// rather than reject, mirroring Config::rate_limit_nonzero.
		c.Request.RateLimit = 1
	}
	if c.Request.Workers == 0 {
		c.Request.Workers = defaultWorkers
	}
	if c.Cooldown == 0 {
		c.Cooldown = defaultCooldown
	}
}

func (c *Config) applyEndpointDefaults() {
	for i := range c.Endpoints {
		if c.Endpoints[i].Weight == 0 {
			c.Endpoints[i].Weight = defaultWeight
		}
		if c.Endpoints[i].MaxConcurrent == 0 {
			c.Endpoints[i].MaxConcurrent = defaultMaxConcurrent
		}
	}
}

// ApplyOverrides applies CLI-flag values over whatever was loaded from a
// file or the environment - CLI always wins, the precedence the teacher's
// API_ADDR-over-API_HOST/API_PORT handling demonstrates.
func (c *Config) ApplyOverrides(rate, maxAttempts, workers int, timeout time.Duration) {
	if rate > 0 {
		c.Request.RateLimit = rate
	}
	if maxAttempts > 0 {
		c.Retry.MaxAttempts = maxAttempts
	}
	if workers > 0 {
		c.Request.Workers = workers
	}
	if timeout > 0 {
		c.Request.Timeout = timeout
	}
	c.resolveDurations()
}

// Validate enforces the configuration-error taxonomy from §7: these must
// fail fast, before any I/O.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("no endpoints configured - at least one endpoint is required")
	}
	for i, ep := range c.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("endpoint %d: url cannot be empty", i)
		}
		if ep.Weight <= 0 {
			return fmt.Errorf("endpoint %d (%s): weight must be greater than 0", i, ep.URL)
		}
		if ep.MaxConcurrent <= 0 {
			return fmt.Errorf("endpoint %d (%s): max_concurrent must be greater than 0", i, ep.URL)
		}
	}
	if c.Request.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Summary renders a human-readable configuration summary, the --verbose
// companion to main.rs's print_config_summary.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate Limit: %d req/sec\n", c.Request.RateLimit)
	fmt.Fprintf(&b, "Workers:    %d\n", c.Request.Workers)
	fmt.Fprintf(&b, "Timeout:    %s\n", c.Request.Timeout)
	fmt.Fprintf(&b, "Retries:    %d\n", c.Retry.MaxAttempts)
	fmt.Fprintf(&b, "Endpoints:  %d\n", len(c.Endpoints))
	for i, ep := range c.Endpoints {
		fmt.Fprintf(&b, "  %d. %s (weight: %d, max: %d)\n", i+1, ep.URL, ep.Weight, ep.MaxConcurrent)
	}
	return b.String()
}
