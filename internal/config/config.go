// Package config loads greadersync settings from YAML and the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration. Sources, highest priority first:
//  1. the path passed to Load/MustLoad;
//  2. the CONFIG_PATH environment variable;
//  3. ./local.yaml in the working directory;
//  4. environment variables only.
type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	HTTP   HTTPConfig   `yaml:"http"`
	Reader ReaderConfig `yaml:"reader"`
	DB     DBConfig     `yaml:"db"`
	Sync   SyncConfig   `yaml:"sync"`
}

// HTTPConfig is where the local API listens.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"127.0.0.1"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// ReaderConfig points at the Google Reader API root, for FreshRSS
// https://host/api/greader.php.
type ReaderConfig struct {
	URL      string        `yaml:"url" env:"GREADER_URL"`
	Username string        `yaml:"username" env:"GREADER_USERNAME"`
	Password string        `yaml:"password" env:"GREADER_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" env:"GREADER_TIMEOUT" env-default:"30s"`
}

// DBConfig selects the local store: a SQLite file at Path, or PostgreSQL at
// URL when Driver is "postgres".
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	Path   string `yaml:"path" env:"DB_PATH" env-default:"greadersync.db"`
	URL    string `yaml:"url" env:"DATABASE_URL"`
}

// SyncConfig tunes the mirror.
type SyncConfig struct {
	MaxPages     int           `yaml:"max_pages" env:"SYNC_MAX_PAGES" env-default:"200"`
	RequestDelay time.Duration `yaml:"request_delay" env:"SYNC_REQUEST_DELAY" env-default:"0s"`
	RunOnce      bool          `yaml:"run_once" env:"SYNC_RUN_ONCE" env-default:"false"`
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration in priority order and validates it.
func Load(path string) (*Config, error) {
	var cfg Config

	switch {
	case path != "":
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH"), &cfg); err != nil {
			return nil, err
		}
	case fileExists("local.yaml"):
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}
	default:
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide -config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	if !fileExists(path) {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Config) validate() error {
	if c.Reader.URL == "" {
		return fmt.Errorf("reader.url is required")
	}
	if c.Reader.Username == "" || c.Reader.Password == "" {
		return fmt.Errorf("reader.username and reader.password are required")
	}
	if c.Reader.Timeout < 0 {
		return fmt.Errorf("reader.timeout must be >= 0")
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case DriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("db.url is required for postgres")
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DB.Driver)
	}
	if c.Sync.MaxPages <= 0 {
		return fmt.Errorf("sync.max_pages must be > 0")
	}
	if c.Sync.RequestDelay < 0 {
		return fmt.Errorf("sync.request_delay must be >= 0")
	}
	return nil
}
