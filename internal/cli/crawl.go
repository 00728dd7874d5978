package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetcrawl/internal/crawl"
)

// CrawlOptions holds flags for the crawl command.
type CrawlOptions struct {
	*RootOptions
	Once bool
}

// NewCrawlCommand creates the crawl command.
func NewCrawlCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CrawlOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Observe every connector and record changes",
		Long: `Provision the store, then run crawl cycles: each cycle observes every
configured connector, upserts what it saw and sweeps what disappeared.

Without --once, cycles repeat at crawl.interval until interrupted.

Exit codes:
  0 - Cycle completed (or scheduler stopped by a signal)
  1 - --once and some entity type failed
  2 - Configuration, connection or provisioning error

Example:
  fleetcrawl crawl --config fleetcrawl.yaml --once
  fleetcrawl crawl --config fleetcrawl.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")

	return cmd
}

func runCrawl(opts *CrawlOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	conns, err := a.connectors()
	if err != nil {
		return err
	}
	pub, err := a.publisher(ctx)
	if err != nil {
		return err
	}

	runner, err := crawl.NewRunner(a.store, conns, a.cfg.Crawl.Config,
		crawl.WithPublisher(pub),
		crawl.WithLogger(a.log),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create crawler", err)
	}
	if err := runner.Provision(ctx); err != nil {
		return WrapExitError(ExitCommandError, "provisioning failed", err)
	}

	if opts.Once {
		report, err := runner.RunCycle(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "crawl cycle interrupted", err)
		}
		if err := outputReport(formatter, report); err != nil {
			return err
		}
		if report.Failed() {
			return NewExitError(ExitFailure, "crawl cycle had failures")
		}
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	scheduler := crawl.NewScheduler(runner, a.cfg.Crawl.Interval,
		crawl.WithSchedulerLogger(a.log),
		crawl.WithReportHandler(func(r crawl.Report) {
			if opts.Verbose {
				_ = outputReport(formatter, r)
			}
		}),
	)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}
	return nil
}

func outputReport(formatter *OutputFormatter, report crawl.Report) error {
	if formatter.JSON() {
		return formatter.Success(report)
	}

	rows := make([][]string, 0, len(report.Types))
	for _, t := range report.Types {
		note := t.SweepSkipped
		switch {
		case t.ConnectorError != "":
			note = "connector: " + t.ConnectorError
		case t.SweepError != "":
			note = "sweep: " + t.SweepError
		}
		rows = append(rows, []string{
			t.Entity,
			strconv.Itoa(t.Observed),
			strconv.Itoa(t.Inserted),
			strconv.Itoa(t.Unchanged),
			strconv.Itoa(t.Failed),
			strconv.Itoa(t.Tombstoned),
			note,
		})
	}
	if err := formatter.Table([]string{"ENTITY", "OBSERVED", "INSERTED", "UNCHANGED", "FAILED", "TOMBSTONED", "NOTE"}, rows); err != nil {
		return err
	}
	for _, t := range report.Types {
		for _, f := range t.Failures {
			formatter.VerboseLog("%s %s: %s", t.Entity, f.LogicalID, f.Error)
		}
	}

	inserted, tombstoned, failed := report.Totals()
	fmt.Fprintf(formatter.Writer, "\n%d inserted, %d tombstoned, %d failed in %s\n",
		inserted, tombstoned, failed, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return nil
}
