package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
	"github.com/roach88/fleetcrawl/internal/schema"
)

//go:embed schema.sql
var registrySQL string

// Store provides durable storage for entity version logs.
type Store struct {
	db      *sql.DB
	closers []func()
	dialect schema.Dialect
	ids     VersionIDGenerator
	clock   Clock
	log     logger.Logger

	registry bool

	mu       sync.RWMutex
	entities map[string]ir.EntityType
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the UUIDv7 version id generator.
func WithIDGenerator(g VersionIDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithClock overrides the wall clock used for observed_at.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l.WithComponent("store") }
}

// WithoutRegistry skips the entity_types registry table.
func WithoutRegistry() Option {
	return func(s *Store) { s.registry = false }
}

func newStore(db *sql.DB, d schema.Dialect, opts []Option) *Store {
	s := &Store{
		db:       db,
		dialect:  d,
		ids:      UUIDv7Generator{},
		clock:    SystemClock{},
		log:      logger.NewTestLogger(),
		registry: true,
		entities: make(map[string]ir.EntityType),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the registry schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// This also keeps ":memory:" databases on a single shared connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := newStore(db, schema.SQLite, opts)
	if err := s.applyRegistry(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the backend.
func (s *Store) Dialect() schema.Dialect {
	return s.dialect
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func (s *Store) applyRegistry(ctx context.Context) error {
	if !s.registry {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, registrySQL); err != nil {
		return fmt.Errorf("failed to apply registry schema: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
