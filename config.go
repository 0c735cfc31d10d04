package caselist

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the screen's tunables, loaded from a YAML file. Durations
// are written in Go syntax ("300ms", "5m"); absent values fall back to the
// package defaults.
type Config struct {
	API struct {
		BaseURL        string `yaml:"base_url" validate:"required,url"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"api"`
	Cache struct {
		TTL      string `yaml:"ttl"`
		Capacity int    `yaml:"capacity" validate:"omitempty,min=1"`
	} `yaml:"cache"`
	Search struct {
		DebounceDelay string `yaml:"debounce_delay"`
	} `yaml:"search"`
	Store struct {
		Disk struct {
			Dir string `yaml:"dir"`
		} `yaml:"disk"`
		S3 struct {
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
		} `yaml:"s3"`
	} `yaml:"store"`

	requestTimeout time.Duration
	cacheTTL       time.Duration
	debounceDelay  time.Duration
}

// LoadConfig loads the configuration from the specified YAML file.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish validates the decoded config and parses duration fields.
func (c *Config) finish() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var err error
	if c.requestTimeout, err = parseDuration(c.API.RequestTimeout, 0); err != nil {
		return fmt.Errorf("invalid api.request_timeout: %w", err)
	}
	if c.cacheTTL, err = parseDuration(c.Cache.TTL, DefaultTTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}
	if c.debounceDelay, err = parseDuration(c.Search.DebounceDelay, DefaultDebounce); err != nil {
		return fmt.Errorf("invalid search.debounce_delay: %w", err)
	}
	return nil
}

// RequestTimeout is the per-request timeout; zero means none, leaving
// supersession as the only cancellation path.
func (c *Config) RequestTimeout() time.Duration { return c.requestTimeout }

// CacheTTL is how long cached pages stay servable.
func (c *Config) CacheTTL() time.Duration { return c.cacheTTL }

// DebounceDelay is the search input quiet period.
func (c *Config) DebounceDelay() time.Duration { return c.debounceDelay }

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
