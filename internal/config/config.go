// Package config loads pagepick settings from defaults, an optional config
// file, a .env file and PAGEPICK_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAGEPICK_SERVER_PORT.
const EnvPrefix = "PAGEPICK"

// Config holds all configuration for the server and the viewer.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Overlay  OverlayConfig  `mapstructure:"overlay"`
	Selector SelectorConfig `mapstructure:"selector"`
	Record   RecordConfig   `mapstructure:"record"`
	Hub      HubConfig      `mapstructure:"hub"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the saved-selection backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // memory, sqlite or redis
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// FetchConfig controls how pages are retrieved.
type FetchConfig struct {
	Mode      string        `mapstructure:"mode"` // http or chrome
	Timeout   time.Duration `mapstructure:"timeout"`
	Sanitize  bool          `mapstructure:"sanitize"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RealtimeConfig configures the viewer's channel to the relay.
type RealtimeConfig struct {
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	BroadcastHover   bool          `mapstructure:"broadcast_hover"`
}

// OverlayConfig configures the selection overlay.
type OverlayConfig struct {
	HoldDelay time.Duration `mapstructure:"hold_delay"`
}

// SelectorConfig configures selector derivation.
type SelectorConfig struct {
	Positional bool `mapstructure:"positional"`
}

// RecordConfig enables recording relayed frames to a file.
type RecordConfig struct {
	Path string `mapstructure:"path"`
}

// HubConfig configures the relay hub.
type HubConfig struct {
	History int `mapstructure:"history"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "data/selections.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("fetch.mode", "http")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.sanitize", true)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("realtime.url", "ws://localhost:8080/ws")
	v.SetDefault("realtime.reconnect_backoff", 2*time.Second)
	v.SetDefault("realtime.broadcast_hover", true)
	v.SetDefault("overlay.hold_delay", 500*time.Millisecond)
	v.SetDefault("selector.positional", false)
	v.SetDefault("record.path", "")
	v.SetDefault("hub.history", 100)
	v.SetDefault("log.level", "info")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Missing files are ignored and existing
// variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration. path may name a YAML, JSON or TOML file; when
// empty, config.yaml is looked up in ./config and the working directory and
// its absence is not an error.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable zero value.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("store.driver must be memory, sqlite or redis, got %q", c.Store.Driver)
	}
	switch c.Fetch.Mode {
	case "http", "chrome":
	default:
		return fmt.Errorf("fetch.mode must be http or chrome, got %q", c.Fetch.Mode)
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Hub.History < 0 {
		return fmt.Errorf("hub.history must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
