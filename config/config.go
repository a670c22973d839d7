// Package config loads pantryctl settings from YAML with environment
// overrides and turns them into querycache, transport and pantry options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".pantryctl"
	configFileName = "config.yaml"

	EnvAPIURL = "PANTRY_API_URL"
	EnvToken  = "PANTRY_TOKEN"
	EnvLog    = "PANTRY_LOG"
)

var (
	allowedProviders = []string{"memory", "ristretto", "bigcache"}
	allowedCodecs    = []string{"cbor", "json", "msgpack"}
	allowedBackends  = []string{"zap", "logrus", "slog", "apex", "none"}
	allowedLevels    = []string{"debug", "info", "warn", "error"}
	allowedHooks     = []string{"none", "prometheus", "slog"}
)

type Config struct {
	API    APIConfig    `yaml:"api"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
	Hooks  HooksConfig  `yaml:"hooks"`
	Pantry PantryConfig `yaml:"pantry"`
}

type APIConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token,omitempty"`
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"userAgent"`
}

type CacheConfig struct {
	Namespace          string          `yaml:"namespace"`
	Provider           string          `yaml:"provider"`
	Codec              string          `yaml:"codec"`
	MaxPayloadBytes    int             `yaml:"maxPayloadBytes"`
	StaleTime          string          `yaml:"staleTime"`
	RefetchConcurrency int             `yaml:"refetchConcurrency"`
	Ristretto          RistrettoConfig `yaml:"ristretto"`
	Bigcache           BigcacheConfig  `yaml:"bigcache"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"numCounters"`
	MaxCost     int64 `yaml:"maxCost"`
	BufferItems int64 `yaml:"bufferItems"`
}

type BigcacheConfig struct {
	LifeWindow         string `yaml:"lifeWindow"`
	Shards             int    `yaml:"shards"`
	HardMaxCacheSizeMB int    `yaml:"hardMaxCacheSizeMB"`
}

type LogConfig struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
}

type HooksConfig struct {
	Kind         string `yaml:"kind"`
	AsyncWorkers int    `yaml:"asyncWorkers"`
	AsyncQueue   int    `yaml:"asyncQueue"`
}

type PantryConfig struct {
	RecipePageSize int    `yaml:"recipePageSize"`
	SearchDelay    string `yaml:"searchDelay"`
	ExpiringDays   int    `yaml:"expiringDays"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			Timeout:   "15s",
			UserAgent: "pantryctl",
		},
		Cache: CacheConfig{
			Namespace:          "qc",
			Provider:           "memory",
			Codec:              "cbor",
			StaleTime:          "2m",
			RefetchConcurrency: 4,
			Ristretto: RistrettoConfig{
				NumCounters: 100_000,
				MaxCost:     10_000,
				BufferItems: 64,
			},
			Bigcache: BigcacheConfig{
				LifeWindow: "30m",
				Shards:     64,
			},
		},
		Log: LogConfig{
			Backend: "zap",
			Level:   "info",
		},
		Hooks: HooksConfig{
			Kind:       "none",
			AsyncQueue: 1024,
		},
		Pantry: PantryConfig{
			RecipePageSize: 10,
			SearchDelay:    "300ms",
			ExpiringDays:   3,
		},
	}
}

func FilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// Load reads path ("" => FilePath), applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := FilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case len(strings.TrimSpace(string(b))) > 0:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		c.API.URL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.API.Token = v
	}
	if v, ok := lookup(EnvLog); ok && strings.TrimSpace(v) != "" {
		// "level" or "backend:level"
		backend, level, found := strings.Cut(v, ":")
		if found {
			c.Log.Backend = backend
			c.Log.Level = level
		} else {
			c.Log.Level = v
		}
	}
}

func (c *Config) normalize() {
	c.API.URL = strings.TrimRight(strings.TrimSpace(c.API.URL), "/")
	c.Cache.Provider = strings.ToLower(strings.TrimSpace(c.Cache.Provider))
	c.Cache.Codec = strings.ToLower(strings.TrimSpace(c.Cache.Codec))
	c.Log.Backend = strings.ToLower(strings.TrimSpace(c.Log.Backend))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Hooks.Kind = strings.ToLower(strings.TrimSpace(c.Hooks.Kind))
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url is required (or set %s)", EnvAPIURL)
	}
	if !strings.HasPrefix(c.API.URL, "http://") && !strings.HasPrefix(c.API.URL, "https://") {
		return fmt.Errorf("api.url must be an http(s) URL")
	}
	if _, err := parsePositiveDuration(c.API.Timeout, "api.timeout"); err != nil {
		return err
	}
	if err := oneOf(c.Cache.Provider, allowedProviders, "cache.provider"); err != nil {
		return err
	}
	if err := oneOf(c.Cache.Codec, allowedCodecs, "cache.codec"); err != nil {
		return err
	}
	if c.Cache.MaxPayloadBytes < 0 {
		return fmt.Errorf("cache.maxPayloadBytes must be >= 0")
	}
	if _, err := parsePositiveDuration(c.Cache.StaleTime, "cache.staleTime"); err != nil {
		return err
	}
	if c.Cache.RefetchConcurrency < 1 || c.Cache.RefetchConcurrency > 64 {
		return fmt.Errorf("cache.refetchConcurrency must be between 1 and 64")
	}
	switch c.Cache.Provider {
	case "ristretto":
		r := c.Cache.Ristretto
		if r.NumCounters <= 0 || r.MaxCost <= 0 || r.BufferItems <= 0 {
			return fmt.Errorf("cache.ristretto: numCounters, maxCost and bufferItems must be > 0")
		}
	case "bigcache":
		if _, err := parsePositiveDuration(c.Cache.Bigcache.LifeWindow, "cache.bigcache.lifeWindow"); err != nil {
			return err
		}
		if s := c.Cache.Bigcache.Shards; s <= 0 || s&(s-1) != 0 {
			return fmt.Errorf("cache.bigcache.shards must be a power of two")
		}
	}
	if err := oneOf(c.Log.Backend, allowedBackends, "log.backend"); err != nil {
		return err
	}
	if err := oneOf(c.Log.Level, allowedLevels, "log.level"); err != nil {
		return err
	}
	if err := oneOf(c.Hooks.Kind, allowedHooks, "hooks.kind"); err != nil {
		return err
	}
	if c.Hooks.AsyncWorkers < 0 || c.Hooks.AsyncQueue < 0 {
		return fmt.Errorf("hooks.asyncWorkers and hooks.asyncQueue must be >= 0")
	}
	if c.Pantry.RecipePageSize < 1 || c.Pantry.RecipePageSize > 100 {
		return fmt.Errorf("pantry.recipePageSize must be between 1 and 100")
	}
	if _, err := parsePositiveDuration(c.Pantry.SearchDelay, "pantry.searchDelay"); err != nil {
		return err
	}
	if c.Pantry.ExpiringDays < 1 {
		return fmt.Errorf("pantry.expiringDays must be >= 1")
	}
	return nil
}

// ToYAML renders c with the token redacted.
func (c *Config) ToYAML() (string, error) {
	cp := *c
	if cp.API.Token != "" {
		cp.API.Token = "***"
	}
	b, err := yaml.Marshal(&cp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func oneOf(v string, allowed []string, key string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), v)
}

func parsePositiveDuration(v, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

func mustDuration(v string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(v))
	return d
}
