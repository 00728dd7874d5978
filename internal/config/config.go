// Package config loads the fleetcrawl configuration file.
//
// The file is YAML and decoded strictly: unknown keys are errors. A small
// set of environment variables override file values, and any string field
// holding a secret may be written as "enc:<base64>" and is decrypted with
// the key in FLEETCRAWL_SECRET_KEY.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fleetcrawl/internal/connector/kube"
	"github.com/roach88/fleetcrawl/internal/connector/urls"
	"github.com/roach88/fleetcrawl/internal/crawl"
	"github.com/roach88/fleetcrawl/internal/events"
	"github.com/roach88/fleetcrawl/internal/logger"
	"github.com/roach88/fleetcrawl/internal/secrets"
	"github.com/roach88/fleetcrawl/internal/store"
)

// Environment variables read by Load.
const (
	EnvDBDriver  = "FLEETCRAWL_DB_DRIVER"
	EnvDBDSN     = "FLEETCRAWL_DB_DSN"
	EnvLogLevel  = "FLEETCRAWL_LOG_LEVEL"
	EnvSecretKey = "FLEETCRAWL_SECRET_KEY"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultInterval is the time between scheduled crawl cycles.
const DefaultInterval = 5 * time.Minute

// Config is the root of the configuration file.
type Config struct {
	Database    Database      `yaml:"database"`
	Crawl       Crawl         `yaml:"crawl"`
	Logging     logger.Config `yaml:"logging"`
	NATS        events.Config `yaml:"nats"`
	Connectors  Connectors    `yaml:"connectors"`
	EntitiesDir string        `yaml:"entities_dir"`
}

// Database selects and configures the store backend.
type Database struct {
	Driver   string               `yaml:"driver"`
	Path     string               `yaml:"path"`
	Postgres store.PostgresConfig `yaml:"postgres"`
}

// Crawl extends the runner configuration with the schedule.
type Crawl struct {
	crawl.Config `yaml:",inline"`
	Interval     time.Duration `yaml:"interval"`
}

// Connectors enables observation sources. A nil section is disabled.
type Connectors struct {
	Kubernetes *kube.Config `yaml:"kubernetes"`
	URLs       *urls.Config `yaml:"urls"`
	// Files is a directory of observation documents.
	Files string `yaml:"files"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:    Database{Driver: DriverSQLite, Path: "fleetcrawl.db"},
		Crawl:       Crawl{Config: crawl.DefaultConfig(), Interval: DefaultInterval},
		Logging:     logger.DefaultConfig(),
		EntitiesDir: "entities",
	}
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Load reads the file at path, applies environment overrides and
// decrypts secrets. An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, env LookupEnv) (Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg, err := Parse(data)
	if err != nil {
		if path != "" {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return Config{}, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. It does not consult the
// environment or validate.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(env LookupEnv) error {
	if v, ok := env(EnvDBDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := env(EnvDBDSN); ok && v != "" {
		c.Database.Postgres.DSN = v
	}
	if v, ok := env(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}

	var cipher *secrets.Cipher
	if v, ok := env(EnvSecretKey); ok && v != "" {
		var err error
		cipher, err = secrets.NewCipherFromBase64(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSecretKey, err)
		}
	}

	fields := map[string]*string{
		"database.postgres.dsn":      &c.Database.Postgres.DSN,
		"database.postgres.password": &c.Database.Postgres.Password,
		"nats.url":                   &c.NATS.URL,
	}
	for name, field := range fields {
		plain, err := secrets.Reveal(cipher, *field)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*field = plain
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Postgres.DSN == "" && c.Database.Postgres.Host == "" {
			return errors.New("config: database.postgres needs dsn or host")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q (want %s or %s)", c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	if err := c.Crawl.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Crawl.Interval <= 0 {
		return fmt.Errorf("config: crawl.interval must be positive, got %s", c.Crawl.Interval)
	}
	if k := c.Connectors.Kubernetes; k != nil && k.Cluster == "" {
		return errors.New("config: connectors.kubernetes.cluster is required")
	}
	if u := c.Connectors.URLs; u != nil && len(u.URLs) == 0 {
		return errors.New("config: connectors.urls.urls is empty")
	}
	return nil
}
