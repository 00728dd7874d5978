package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/fleetcrawl/internal/ir"
)

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/ledger_mock.go github.com/roach88/fleetcrawl/internal/crawl Ledger

// Ledger is the storage side of a crawl. *store.Store implements it.
type Ledger interface {
	ProvisionAll(ctx context.Context, entities []ir.EntityType) error
	Upsert(ctx context.Context, e ir.EntityType, obs ir.Observation) (ir.VersionRecord, error)
	Sweep(ctx context.Context, e ir.EntityType, observed []string) (ir.SweepResult, error)
}

// Defaults for Config.
const (
	DefaultConcurrency    = 8
	DefaultObserveTimeout = 2 * time.Minute
	DefaultUpsertTimeout  = 10 * time.Second
	DefaultSweepTimeout   = time.Minute
	DefaultMaxErrorRatio  = 0.5
)

// SweepPolicy decides when a sweep is skipped. A sweep is always skipped
// when the connector itself failed.
type SweepPolicy struct {
	// MaxErrorRatio is the largest tolerated share of failed upserts. The
	// sweep is skipped when failed/observed exceeds it.
	MaxErrorRatio float64 `yaml:"max_error_ratio"`

	// AllowEmpty lets a connector that observed nothing tombstone every
	// live node of its type.
	AllowEmpty bool `yaml:"allow_empty"`
}

// Config tunes a Runner.
type Config struct {
	Concurrency    int           `yaml:"concurrency"`
	ObserveTimeout time.Duration `yaml:"observe_timeout"`
	UpsertTimeout  time.Duration `yaml:"upsert_timeout"`
	SweepTimeout   time.Duration `yaml:"sweep_timeout"`
	Sweep          SweepPolicy   `yaml:"sweep"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    DefaultConcurrency,
		ObserveTimeout: DefaultObserveTimeout,
		UpsertTimeout:  DefaultUpsertTimeout,
		SweepTimeout:   DefaultSweepTimeout,
		Sweep:          SweepPolicy{MaxErrorRatio: DefaultMaxErrorRatio},
	}
}

// Validate rejects configurations the runner cannot use.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("crawl: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ObserveTimeout < 0 || c.UpsertTimeout < 0 || c.SweepTimeout < 0 {
		return fmt.Errorf("crawl: timeouts must not be negative")
	}
	if c.Sweep.MaxErrorRatio < 0 {
		return fmt.Errorf("crawl: max_error_ratio must not be negative, got %g", c.Sweep.MaxErrorRatio)
	}
	return nil
}

// skipReason returns why the sweep must not run, or "" when it may.
func (p SweepPolicy) skipReason(connectorFailed bool, observed, failed int) string {
	switch {
	case connectorFailed:
		return "connector failed"
	case observed == 0 && !p.AllowEmpty:
		return "nothing observed"
	case observed > 0 && float64(failed)/float64(observed) > p.MaxErrorRatio:
		return fmt.Sprintf("%d of %d upserts failed", failed, observed)
	}
	return ""
}

// withTimeout derives a context bounded by d; a zero d leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
