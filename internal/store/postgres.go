package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/roach88/fleetcrawl/internal/schema"
)

// PostgresConfig describes a Postgres connection. DSN, when set, takes
// precedence over the individual fields.
type PostgresConfig struct {
	DSN              string            `yaml:"dsn"`
	Host             string            `yaml:"host"`
	Port             int               `yaml:"port"`
	Database         string            `yaml:"database"`
	Username         string            `yaml:"username"`
	Password         string            `yaml:"password"`
	SSLMode          string            `yaml:"ssl_mode"`
	ApplicationName  string            `yaml:"application_name"`
	MaxConnections   int32             `yaml:"max_connections"`
	StatementTimeout time.Duration     `yaml:"statement_timeout"`
	RuntimeParams    map[string]string `yaml:"runtime_params"`
}

// ConnString renders the configuration as a postgres:// URL.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, port),
		Path:   "/" + c.Database,
	}

	if c.Username != "" {
		if c.Password != "" {
			connURL.User = url.UserPassword(c.Username, c.Password)
		} else {
			connURL.User = url.User(c.Username)
		}
	}

	query := connURL.Query()
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	query.Set("sslmode", sslMode)
	if c.ApplicationName != "" {
		query.Set("application_name", c.ApplicationName)
	}
	connURL.RawQuery = query.Encode()

	return connURL.String()
}

// poolConfig parses the connection string and applies pool limits and
// runtime parameters.
func (c PostgresConfig) poolConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}

	if c.MaxConnections > 0 {
		cfg.MaxConns = c.MaxConnections
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = make(map[string]string)
	}
	for k, v := range c.RuntimeParams {
		if k == "" {
			continue
		}
		cfg.ConnConfig.RuntimeParams[k] = v
	}
	if c.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", c.StatementTimeout.Milliseconds())
	}

	return cfg, nil
}

// OpenPostgres connects to Postgres through a pgx pool and exposes it as a
// Store. The registry schema is applied on open.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, opts ...Option) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s := newStore(db, schema.Postgres, opts)
	s.closers = append(s.closers, pool.Close)

	if err := s.applyRegistry(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Uint16("port", poolCfg.ConnConfig.Port).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("connected to postgres")

	return s, nil
}
