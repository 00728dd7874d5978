package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/fleetcrawl/internal/logger"
)

// Ticker delivers scheduling ticks. *time.Ticker is adapted by
// NewTimeTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// CycleRunner runs one crawl cycle. *Runner implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Scheduler runs a cycle immediately and then once per interval until its
// context ends. Cycles never overlap: a tick that arrives while a cycle is
// running is dropped by the ticker.
type Scheduler struct {
	runner    CycleRunner
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onReport  func(Report)
	log       logger.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTicker replaces the ticker factory.
func WithTicker(f func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) { s.newTicker = f }
}

// WithReportHandler is called after every cycle.
func WithReportHandler(f func(Report)) SchedulerOption {
	return func(s *Scheduler) { s.onReport = f }
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l.WithComponent("scheduler") }
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner CycleRunner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		interval:  interval,
		newTicker: NewTimeTicker,
		onReport:  func(Report) {},
		log:       logger.NewTestLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx ends. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("crawl: scheduler interval must be positive")
	}

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		if !s.cycle(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C():
		}
	}
}

// cycle runs one cycle and reports whether the scheduler should go on.
func (s *Scheduler) cycle(ctx context.Context) bool {
	report, err := s.runner.RunCycle(ctx)
	s.onReport(report)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info().Msg("scheduler stopped during cycle")
			return false
		}
		s.log.Error().Err(err).Msg("crawl cycle failed")
	}
	return true
}
