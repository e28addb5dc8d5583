package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OpenF1  OpenF1Config  `yaml:"openf1"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Refresh RefreshConfig `yaml:"refresh"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP front-end configuration
type ServerConfig struct {
	Port int `yaml:"port"`
}

// OpenF1Config contains upstream API configuration
type OpenF1Config struct {
	URL        string `yaml:"url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// StorageConfig contains persistent store connection parameters
type StorageConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "postgres"
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// CacheConfig holds the time-to-live of every cached upstream call kind
type CacheConfig struct {
	Capacity  int    `yaml:"capacity"` // per namespace, 0 means unbounded
	Sessions  string `yaml:"sessions"`
	Drivers   string `yaml:"drivers"`
	Events    string `yaml:"events"`
	Positions string `yaml:"positions"`
	Intervals string `yaml:"intervals"`
	PitStops  string `yaml:"pit_stops"`
	Stints    string `yaml:"stints"`
	Laps      string `yaml:"laps"`
}

// RefreshConfig controls the periodic event listing refresh
type RefreshConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when no file overrides a value
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		OpenF1: OpenF1Config{
			URL:        "https://api.openf1.org/v1",
			Timeout:    "10s",
			MaxRetries: 2,
		},
		Storage: StorageConfig{
			Driver:   "sqlite",
			Path:     "data/pitwall.db",
			Host:     "localhost",
			Port:     5432,
			Database: "f1_discord_app",
			SSLMode:  "disable",
		},
		Cache: CacheConfig{
			Sessions:  "1h",
			Drivers:   "1h",
			Events:    "1h",
			Positions: "10s",
			Intervals: "10s",
			PitStops:  "30s",
			Stints:    "30s",
			Laps:      "10s",
		},
		Refresh: RefreshConfig{Enabled: true, Interval: "1h"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// An empty path yields the defaults. Secrets may be overridden from the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	config.applyEnv()

	return &config, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("PITWALL_OPENF1_URL"); ok {
		c.OpenF1.URL = v
	}
	if v, ok := os.LookupEnv("PITWALL_STORAGE_USERNAME"); ok {
		c.Storage.Username = v
	}
	if v, ok := os.LookupEnv("PITWALL_STORAGE_PASSWORD"); ok {
		c.Storage.Password = v
	}
}

// GetTimeout parses and returns the upstream request timeout
func (c *Config) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.OpenF1.Timeout)
}

// GetRefreshInterval parses and returns the event refresh interval
func (c *Config) GetRefreshInterval() (time.Duration, error) {
	return time.ParseDuration(c.Refresh.Interval)
}

// Dump renders the effective configuration as YAML with the password masked
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	if masked.Storage.Password != "" {
		masked.Storage.Password = "********"
	}
	return yamlv3.Marshal(masked)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	u, err := url.Parse(c.OpenF1.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid openf1 url: %q", c.OpenF1.URL)
	}

	if d, err := c.GetTimeout(); err != nil || d <= 0 {
		return fmt.Errorf("invalid openf1 timeout: %q", c.OpenF1.Timeout)
	}

	if c.OpenF1.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got: %d", c.OpenF1.MaxRetries)
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for sqlite")
		}
	case "postgres":
		if c.Storage.Host == "" {
			return fmt.Errorf("storage host is required for postgres")
		}
		if c.Storage.Port <= 0 || c.Storage.Port > 65535 {
			return fmt.Errorf("invalid storage port: %d", c.Storage.Port)
		}
	default:
		return fmt.Errorf("storage driver must be 'sqlite' or 'postgres', got: %s", c.Storage.Driver)
	}

	ttls := map[string]string{
		"sessions":  c.Cache.Sessions,
		"drivers":   c.Cache.Drivers,
		"events":    c.Cache.Events,
		"positions": c.Cache.Positions,
		"intervals": c.Cache.Intervals,
		"pit_stops": c.Cache.PitStops,
		"stints":    c.Cache.Stints,
		"laps":      c.Cache.Laps,
	}
	for name, raw := range ttls {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid cache TTL for %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("cache TTL for %s must be positive, got: %s", name, raw)
		}
	}

	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache capacity must not be negative, got: %d", c.Cache.Capacity)
	}

	if c.Refresh.Enabled {
		if d, err := c.GetRefreshInterval(); err != nil || d <= 0 {
			return fmt.Errorf("invalid refresh interval: %q", c.Refresh.Interval)
		}
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	return nil
}
