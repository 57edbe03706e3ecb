// Package config loads the configuration of the gallery client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	pkgconfig "gallery-feed/pkg/config"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultBaseURL         = "http://localhost:3000"
	DefaultAPITimeout      = 10 * time.Second
	DefaultRateLimitRPS    = 10.0
	DefaultRateLimitBurst  = 5
	DefaultRefreshSchedule = "*/5 * * * *"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ClientConfig is the configuration of the gallery client.
type ClientConfig struct {
	// APIBaseURL is the scheme and host serving /api/images
	APIBaseURL string
	// APITimeout is the per-request timeout of gallery API calls
	APITimeout time.Duration

	// AssetUploadURL is the image hosting endpoint; empty disables file uploads
	AssetUploadURL string
	// AssetAPIKey is sent as the key query parameter of asset uploads
	AssetAPIKey string

	// RateLimitRPS caps outgoing gallery API requests per second; 0 disables limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// RefreshSchedule is the cron expression of the watch command
	RefreshSchedule string

	// MetricsAddr is the listen address of the /metrics endpoint; empty disables it
	MetricsAddr string
}

// fileConfig is the YAML layout of a configuration file.
type fileConfig struct {
	API struct {
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
		RateLimit struct {
			RPS   *float64 `yaml:"rps"`
			Burst *int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"api"`
	AssetStore struct {
		UploadURL string `yaml:"upload_url"`
		APIKey    string `yaml:"api_key"`
	} `yaml:"asset_store"`
	RefreshSchedule string `yaml:"refresh_schedule"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() ClientConfig {
	return ClientConfig{
		APIBaseURL:      DefaultBaseURL,
		APITimeout:      DefaultAPITimeout,
		RateLimitRPS:    DefaultRateLimitRPS,
		RateLimitBurst:  DefaultRateLimitBurst,
		RefreshSchedule: DefaultRefreshSchedule,
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment, in that order of
// precedence, lowest first. The result is validated.
//
// Environment variables:
//   - GALLERY_API_BASE_URL
//   - GALLERY_API_TIMEOUT (duration, e.g. 10s)
//   - GALLERY_ASSET_UPLOAD_URL
//   - GALLERY_ASSET_API_KEY
//   - GALLERY_RATE_LIMIT_RPS
//   - GALLERY_RATE_LIMIT_BURST
//   - GALLERY_REFRESH_SCHEDULE (cron expression)
//   - GALLERY_METRICS_ADDR
func Load(path string) (*ClientConfig, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) applyFile(path string) error {
	// #nosec G304 -- path is provided by trusted source (CLI flag), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if fc.API.BaseURL != "" {
		c.APIBaseURL = fc.API.BaseURL
	}
	if fc.API.Timeout != "" {
		d, err := time.ParseDuration(fc.API.Timeout)
		if err != nil {
			return fmt.Errorf("%w: api.timeout: %v", ErrInvalidConfig, err)
		}
		c.APITimeout = d
	}
	if fc.API.RateLimit.RPS != nil {
		c.RateLimitRPS = *fc.API.RateLimit.RPS
	}
	if fc.API.RateLimit.Burst != nil {
		c.RateLimitBurst = *fc.API.RateLimit.Burst
	}
	if fc.AssetStore.UploadURL != "" {
		c.AssetUploadURL = fc.AssetStore.UploadURL
	}
	if fc.AssetStore.APIKey != "" {
		c.AssetAPIKey = fc.AssetStore.APIKey
	}
	if fc.RefreshSchedule != "" {
		c.RefreshSchedule = fc.RefreshSchedule
	}
	if fc.MetricsAddr != "" {
		c.MetricsAddr = fc.MetricsAddr
	}
	return nil
}

func (c *ClientConfig) applyEnv() {
	c.APIBaseURL = pkgconfig.GetEnvString("GALLERY_API_BASE_URL", c.APIBaseURL)
	c.APITimeout = pkgconfig.GetEnvDuration("GALLERY_API_TIMEOUT", c.APITimeout)
	c.AssetUploadURL = pkgconfig.GetEnvString("GALLERY_ASSET_UPLOAD_URL", c.AssetUploadURL)
	c.AssetAPIKey = pkgconfig.GetEnvString("GALLERY_ASSET_API_KEY", c.AssetAPIKey)
	c.RateLimitRPS = pkgconfig.GetEnvFloat("GALLERY_RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = pkgconfig.GetEnvInt("GALLERY_RATE_LIMIT_BURST", c.RateLimitBurst)
	c.RefreshSchedule = pkgconfig.GetEnvString("GALLERY_REFRESH_SCHEDULE", c.RefreshSchedule)
	c.MetricsAddr = pkgconfig.GetEnvString("GALLERY_METRICS_ADDR", c.MetricsAddr)
}

// Validate checks the configuration.
func (c *ClientConfig) Validate() error {
	if err := validateHTTPURL(c.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api base url: %v", ErrInvalidConfig, err)
	}
	if err := pkgconfig.ValidateDurationRange(c.APITimeout, 100*time.Millisecond, 2*time.Minute); err != nil {
		return fmt.Errorf("%w: api timeout: %v", ErrInvalidConfig, err)
	}
	if c.AssetUploadURL != "" {
		if err := validateHTTPURL(c.AssetUploadURL); err != nil {
			return fmt.Errorf("%w: asset upload url: %v", ErrInvalidConfig, err)
		}
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("%w: rate limit rps must not be negative, got %v", ErrInvalidConfig, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("%w: rate limit burst must not be negative, got %d", ErrInvalidConfig, c.RateLimitBurst)
	}
	if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
		return fmt.Errorf("%w: refresh schedule %q: %v", ErrInvalidConfig, c.RefreshSchedule, err)
	}
	return nil
}

// AssetUploadsEnabled reports whether an asset store is configured.
func (c *ClientConfig) AssetUploadsEnabled() bool {
	return c.AssetUploadURL != ""
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
