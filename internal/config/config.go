// Package config loads drive's settings from a JSON file, with DRIVE_*
// environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DRIVE_API_BASEURL.
const EnvPrefix = "DRIVE"

// Config holds application configuration.
type Config struct {
	API        API        `mapstructure:"api"`
	Thumbnails Thumbnails `mapstructure:"thumbnails"`
	Search     Search     `mapstructure:"search"`
	Log        Log        `mapstructure:"log"`
	Metrics    Metrics    `mapstructure:"metrics"`
	Local      Local      `mapstructure:"local"`
}

// API configures the hosted item store.
type API struct {
	BaseURL  string        `mapstructure:"baseUrl"`
	TokenEnv string        `mapstructure:"tokenEnv"` // env var holding the bearer token
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retryMax"`
}

type Thumbnails struct {
	Workers  int   `mapstructure:"workers"`
	MaxBytes int64 `mapstructure:"maxBytes"`
}

type Search struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Limit    int           `mapstructure:"limit"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Path   string `mapstructure:"path"`   // empty = stderr
}

type Metrics struct {
	Addr string `mapstructure:"addr"` // empty = disabled
}

// Local selects the SQLite backend when Path is set.
type Local struct {
	Path string `mapstructure:"path"`
	User string `mapstructure:"user"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	logPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		logPath = filepath.Join(home, ".local", "state", "drive", "drive.log")
	}

	return Config{
		API: API{
			TokenEnv: "DRIVE_TOKEN",
			Timeout:  30 * time.Second,
			RetryMax: 2,
		},
		Thumbnails: Thumbnails{
			Workers:  4,
			MaxBytes: 20 << 20,
		},
		Search: Search{
			Debounce: 250 * time.Millisecond,
			Limit:    50,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
			Path:   logPath,
		},
	}
}

// Load reads config from the JSON file at path and applies environment
// overrides. A missing file yields the defaults and is created with them.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
			// Non-fatal: the defaults still apply if the file cannot be written.
			_ = Save(path, DefaultConfig())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to path as JSON, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v, cfg)
	return v.WriteConfigAs(path)
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Thumbnails.Workers < 1:
		return fmt.Errorf("thumbnails.workers must be at least 1, got %d", c.Thumbnails.Workers)
	case c.Search.Debounce <= 0:
		return fmt.Errorf("search.debounce must be positive, got %s", c.Search.Debounce)
	case c.API.RetryMax < 0:
		return fmt.Errorf("api.retryMax must not be negative, got %d", c.API.RetryMax)
	case c.API.Timeout <= 0:
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("api.baseUrl", c.API.BaseURL)
	v.SetDefault("api.tokenEnv", c.API.TokenEnv)
	v.SetDefault("api.timeout", c.API.Timeout.String())
	v.SetDefault("api.retryMax", c.API.RetryMax)
	v.SetDefault("thumbnails.workers", c.Thumbnails.Workers)
	v.SetDefault("thumbnails.maxBytes", c.Thumbnails.MaxBytes)
	v.SetDefault("search.debounce", c.Search.Debounce.String())
	v.SetDefault("search.limit", c.Search.Limit)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.path", c.Log.Path)
	v.SetDefault("metrics.addr", c.Metrics.Addr)
	v.SetDefault("local.path", c.Local.Path)
	v.SetDefault("local.user", c.Local.User)
}

// DefaultConfigFilePath returns the default config path: ~/.config/drive/config.json
func DefaultConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "drive", "config.json"), nil
}
