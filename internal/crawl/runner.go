package crawl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/fleetcrawl/internal/connector"
	"github.com/roach88/fleetcrawl/internal/events"
	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
	"github.com/roach88/fleetcrawl/internal/schema"
	"github.com/roach88/fleetcrawl/internal/store"
)

// Runner executes crawl cycles over a fixed set of connectors.
//
// Thread-safety: RunCycle may be called from several goroutines, but
// overlapping cycles over the same store race on sweeps. The Scheduler
// never overlaps them.
type Runner struct {
	ledger    Ledger
	levels    [][]connector.Connector
	entities  []ir.EntityType
	cfg       Config
	publisher events.Publisher
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher publishes every inserted version and tombstone.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = l.WithComponent("crawl") }
}

// WithNow overrides the clock used for report timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner groups connectors into reference levels. It fails on invalid
// configuration, duplicate entity types and reference cycles.
func NewRunner(ledger Ledger, conns []connector.Connector, cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entities, err := connector.Entities(conns)
	if err != nil {
		return nil, err
	}
	grouped, err := schema.Levels(entities)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	byName := make(map[string]connector.Connector, len(conns))
	for _, c := range conns {
		byName[c.Entity().Name] = c
	}
	levels := make([][]connector.Connector, len(grouped))
	for i, group := range grouped {
		for _, e := range group {
			levels[i] = append(levels[i], byName[e.Name])
		}
	}

	r := &Runner{
		ledger:    ledger,
		levels:    levels,
		entities:  schema.Flatten(grouped),
		cfg:       cfg,
		publisher: events.Nop{},
		log:       logger.NewTestLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Entities returns the crawled entity types in dependency order.
func (r *Runner) Entities() []ir.EntityType {
	return append([]ir.EntityType(nil), r.entities...)
}

// Provision creates or migrates the storage of every crawled entity type.
func (r *Runner) Provision(ctx context.Context) error {
	return r.ledger.ProvisionAll(ctx, r.entities)
}

// RunCycle crawls every entity type once. Per-type problems are recorded in
// the report; the error is non-nil only when ctx ended before the cycle
// finished.
func (r *Runner) RunCycle(ctx context.Context) (Report, error) {
	report := Report{StartedAt: r.now()}
	r.log.Info().Int("levels", len(r.levels)).Msg("crawl cycle started")

	for depth, level := range r.levels {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = r.now()
			return report, err
		}

		results := make([]TypeReport, len(level))
		var g errgroup.Group
		for i, conn := range level {
			g.Go(func() error {
				results[i] = r.crawlType(ctx, conn)
				return nil
			})
		}
		_ = g.Wait()

		report.Types = append(report.Types, results...)
		r.log.Debug().Int("level", depth).Int("types", len(level)).Msg("level finished")
	}

	report.FinishedAt = r.now()
	inserted, tombstoned, failed := report.Totals()
	r.log.Info().
		Int("inserted", inserted).
		Int("tombstoned", tombstoned).
		Int("failed", failed).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("crawl cycle finished")

	return report, ctx.Err()
}

// crawlType observes, upserts and sweeps one entity type.
func (r *Runner) crawlType(ctx context.Context, conn connector.Connector) TypeReport {
	e := conn.Entity()
	start := r.now()
	rep := TypeReport{Entity: e.Name}
	log := r.log.WithFields(map[string]any{"entity": e.Name})

	observeCtx, cancel := withTimeout(ctx, r.cfg.ObserveTimeout)
	observations, err := conn.Observe(observeCtx)
	cancel()
	if err != nil {
		rep.ConnectorError = err.Error()
		rep.SweepSkipped = r.cfg.Sweep.skipReason(true, 0, 0)
		log.Error().Err(err).Msg("connector failed, sweep skipped")
		rep.Duration = r.now().Sub(start)
		return rep
	}

	observed := r.upsertAll(ctx, e, observations, &rep, log)

	if reason := r.cfg.Sweep.skipReason(false, rep.Observed, rep.Failed); reason != "" {
		rep.SweepSkipped = reason
		log.Warn().Str("reason", reason).Msg("sweep skipped")
		rep.Duration = r.now().Sub(start)
		return rep
	}

	sweepCtx, cancel := withTimeout(ctx, r.cfg.SweepTimeout)
	result, err := r.ledger.Sweep(sweepCtx, e, observed)
	cancel()
	if err != nil {
		rep.SweepError = err.Error()
		log.Error().Err(err).Bool("transient", transient(err)).Msg("sweep failed")
		rep.Duration = r.now().Sub(start)
		return rep
	}
	rep.LiveBefore = result.LiveBefore
	rep.Tombstoned = result.Tombstoned
	for _, tomb := range result.Tombstones {
		r.publish(ctx, tomb, log)
	}

	rep.Duration = r.now().Sub(start)
	log.Info().
		Int("observed", rep.Observed).
		Int("inserted", rep.Inserted).
		Int("unchanged", rep.Unchanged).
		Int("failed", rep.Failed).
		Int("tombstoned", rep.Tombstoned).
		Msg("entity crawled")
	return rep
}

// upsertAll fans observations out to the ledger and returns the logical ids
// to keep during the sweep. Failed upserts are kept too.
func (r *Runner) upsertAll(ctx context.Context, e ir.EntityType, observations []ir.Observation, rep *TypeReport, log logger.Logger) []string {
	var (
		mu       sync.Mutex
		observed = make([]string, 0, len(observations))
		seen     = make(map[string]bool, len(observations))
	)

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	for _, obs := range observations {
		if obs.LogicalID != "" && !seen[obs.LogicalID] {
			seen[obs.LogicalID] = true
			observed = append(observed, obs.LogicalID)
		}

		g.Go(func() error {
			upsertCtx, cancel := withTimeout(ctx, r.cfg.UpsertTimeout)
			rec, err := r.ledger.Upsert(upsertCtx, e, obs)
			cancel()

			if err != nil {
				logFailure(log, obs.LogicalID, err)
			} else if rec.Inserted {
				r.publish(ctx, rec, log)
			}

			mu.Lock()
			defer mu.Unlock()
			rep.Observed++
			switch {
			case err != nil:
				rep.Failed++
				rep.Failures = append(rep.Failures, failureOf(obs.LogicalID, err))
			case rec.Inserted:
				rep.Inserted++
			default:
				rep.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rep.Failures, func(i, j int) bool { return rep.Failures[i].LogicalID < rep.Failures[j].LogicalID })
	return observed
}

func (r *Runner) publish(ctx context.Context, rec ir.VersionRecord, log logger.Logger) {
	if err := r.publisher.Publish(ctx, rec); err != nil {
		log.Warn().Err(err).Str("version_id", rec.VersionID).Msg("change event not published")
	}
}

func failureOf(logicalID string, err error) Failure {
	f := Failure{LogicalID: logicalID, Error: err.Error(), Transient: transient(err)}
	var refErr *store.ReferenceResolutionError
	if errors.As(err, &refErr) {
		f.Reference = refErr.Reference
	}
	return f
}

func logFailure(log logger.Logger, logicalID string, err error) {
	ev := log.Warn().Err(err).Str("logical_id", logicalID)
	var refErr *store.ReferenceResolutionError
	if errors.As(err, &refErr) {
		ev = ev.Str("reference", refErr.Reference).Str("target", refErr.Target)
	}
	ev.Bool("transient", transient(err)).Msg("upsert failed")
}

// transient reports whether a failure may clear on a later cycle. A bare
// deadline from the per-call timeout counts as transient.
func transient(err error) bool {
	return store.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
