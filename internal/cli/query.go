package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// NewCurrentCommand creates the current command.
func NewCurrentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "current <entity>",
		Short: "List the live objects of an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], "")
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity> <logical-id>",
		Short: "Show every recorded version of one object",
		Long: `Show every recorded version of one object, oldest first. The logical id
is either the natural key the connector reported or the node UUID.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runQuery(opts *RootOptions, cmd *cobra.Command, entityName, logicalID string) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.entity(entityName)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}

	var recs []ir.VersionRecord
	if logicalID == "" {
		recs, err = a.store.Current(ctx, e)
	} else {
		recs, err = a.store.History(ctx, e, logicalID)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(recs)
	}

	rows := make([][]string, len(recs))
	for i, r := range recs {
		name := r.DisplayName
		if name == "" {
			name = "-"
		}
		rows[i] = []string{
			r.Node,
			r.VersionID,
			r.ObservedAt.Format(time.RFC3339),
			shortHash(r.ContentHash),
			fmt.Sprint(r.Deleted),
			name,
		}
	}
	return formatter.Table([]string{"NODE", "VERSION", "OBSERVED", "HASH", "DELETED", "NAME"}, rows)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
