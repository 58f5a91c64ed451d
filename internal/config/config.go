// Package config loads tootmix settings from a YAML file, an optional .env
// file and TOOTMIX_* environment variables, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gauthierbraillon/tootmix/internal/engine"
	"github.com/gauthierbraillon/tootmix/internal/pagination"
	"github.com/gauthierbraillon/tootmix/internal/stream"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

// Environment variables.
const (
	EnvConfigDir = "TOOTMIX_CONFIG_DIR"
	EnvInstance  = "TOOTMIX_INSTANCE"
	EnvToken     = "TOOTMIX_TOKEN"
	EnvAPIURL    = "TOOTMIX_API_URL"
	EnvLogLevel  = "TOOTMIX_LOG_LEVEL"
	EnvPageLimit = "TOOTMIX_PAGE_LIMIT"
)

// FileName is the config file inside the config directory.
const FileName = "config.yaml"

// Config is the full tootmix configuration.
type Config struct {
	Instance string `yaml:"instance"`
	// Token and APIURL are only read from the environment.
	Token  string `yaml:"-"`
	APIURL string `yaml:"-"`

	Stream   StreamConfig   `yaml:"stream"`
	Timeline TimelineConfig `yaml:"timeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type StreamConfig struct {
	HostRewrites     map[string]string `yaml:"host_rewrites"`
	Scheme           string            `yaml:"scheme,omitempty"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	PingInterval     time.Duration     `yaml:"ping_interval"`
}

type TimelineConfig struct {
	RetentionCap   int `yaml:"retention_cap"`
	RetentionFloor int `yaml:"retention_floor"`
	PageLimit      int `yaml:"page_limit"`
	PinnedLimit    int `yaml:"pinned_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Stream: StreamConfig{
			HostRewrites:     stream.DefaultHostRewrites(),
			HandshakeTimeout: 15 * time.Second,
			PingInterval:     30 * time.Second,
		},
		Timeline: TimelineConfig{
			RetentionCap:   timeline.DefaultCap,
			RetentionFloor: timeline.DefaultFloor,
			PageLimit:      pagination.PageLimit,
			PinnedLimit:    pagination.PinnedLimit,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Dir returns the configuration directory.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tootmix")
}

// DefaultPath returns the config file path inside Dir.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName)
}

// Load builds the configuration from defaults, the YAML file at path (empty
// means DefaultPath, a missing file is fine), .env files and the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// loadDotEnv loads existing .env files. Variables already set win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvInstance); v != "" {
		c.Instance = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPageLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvPageLimit)
		}
		c.Timeline.PageLimit = n
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	t := c.Timeline
	if t.RetentionFloor <= 0 || t.RetentionFloor > t.RetentionCap {
		return errors.Errorf("retention floor %d must be between 1 and the cap %d", t.RetentionFloor, t.RetentionCap)
	}
	if t.PageLimit <= 0 {
		return errors.Errorf("page limit must be positive, got %d", t.PageLimit)
	}
	if t.PinnedLimit < 0 {
		return errors.Errorf("pinned limit must not be negative, got %d", t.PinnedLimit)
	}
	if c.Stream.HandshakeTimeout < 0 || c.Stream.PingInterval < 0 {
		return errors.New("stream timeouts must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging level")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.Errorf("logging format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// HostRewrites returns the stream host rewrite table.
func (c *Config) HostRewrites() stream.HostRewrites {
	rewrites := stream.HostRewrites{}
	for host, prefix := range c.Stream.HostRewrites {
		rewrites[strings.ToLower(host)] = prefix
	}
	return rewrites
}

// Engine returns engine settings for an authenticated account.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Host:             c.Instance,
		Token:            c.Token,
		Scheme:           c.Stream.Scheme,
		HostRewrites:     c.HostRewrites(),
		HandshakeTimeout: c.Stream.HandshakeTimeout,
		PingInterval:     c.Stream.PingInterval,
		RetentionCap:     c.Timeline.RetentionCap,
		RetentionFloor:   c.Timeline.RetentionFloor,
		PageLimit:        c.Timeline.PageLimit,
		PinnedLimit:      c.Timeline.PinnedLimit,
	}
}
