// Package config loads the trade desk configuration.
//
// The file is selected by the --config flag or, failing that, the
// TRADEDESK_CONFIG environment variable. Without either the defaults apply.
// A config file may carry development and production sections that override
// base values when the environment matches. TRADEDESK_HANDLE_SECRET, when
// set, replaces the control handle secret so it can stay out of the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "TRADEDESK_CONFIG"
	EnvHandleSecret = "TRADEDESK_HANDLE_SECRET"

	devHandleSecret = "dev-handle-secret"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

type Config struct {
	Environment Environment `yaml:"environment"`

	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Events  EventsConfig  `yaml:"events"`
	Handles HandlesConfig `yaml:"handles"`
	Logging LoggingConfig `yaml:"logging"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment fields. Empty values leave the base
// value in place.
type Overrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StorageConfig struct {
	// Backend is "file" or "memory". Memory keeps nothing across restarts.
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

type LedgerConfig struct {
	// Timezone names the IANA zone used for day buckets. Empty means local.
	Timezone string        `yaml:"timezone"`
	ResetTTL time.Duration `yaml:"reset_ttl"`
}

type EventsConfig struct {
	Workers     int `yaml:"workers"`
	QueueSize   int `yaml:"queue_size"`
	RecentLimit int `yaml:"recent_limit"`
}

type HandlesConfig struct {
	Secret string `yaml:"secret"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Addr:           ":8080",
			MetricsAddr:    ":9090",
			RequestTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: "data",
		},
		Ledger: LedgerConfig{
			ResetTTL: 2 * time.Minute,
		},
		Events: EventsConfig{
			Workers:     3,
			QueueSize:   1000,
			RecentLimit: 200,
		},
		Handles: HandlesConfig{
			Secret: devHandleSecret,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path, or the file named by TRADEDESK_CONFIG when path is empty.
// With neither, the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvironmentOverrides()
	if secret := os.Getenv(EnvHandleSecret); secret != "" {
		cfg.Handles.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if o := overrides.Server; o != nil {
		if o.Addr != "" {
			c.Server.Addr = o.Addr
		}
		if o.MetricsAddr != "" {
			c.Server.MetricsAddr = o.MetricsAddr
		}
		if o.RequestTimeout > 0 {
			c.Server.RequestTimeout = o.RequestTimeout
		}
	}
	if o := overrides.Storage; o != nil {
		if o.Backend != "" {
			c.Storage.Backend = o.Backend
		}
		if o.DataDir != "" {
			c.Storage.DataDir = o.DataDir
		}
	}
	if o := overrides.Logging; o != nil {
		if o.Level != "" {
			c.Logging.Level = o.Level
		}
		if o.Format != "" {
			c.Logging.Format = o.Format
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid ledger.timezone: %w", err))
	}
	if c.Events.Workers <= 0 {
		errs = append(errs, errors.New("events.workers must be positive"))
	}
	if c.Handles.Secret == "" {
		errs = append(errs, errors.New("handles.secret is required"))
	}
	if c.Environment == Production && c.Handles.Secret == devHandleSecret {
		errs = append(errs, fmt.Errorf("handles.secret must be set in production (use %s)", EnvHandleSecret))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves the ledger time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Ledger.Timezone)
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return 0, fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	return level, nil
}
