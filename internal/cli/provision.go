package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetcrawl/internal/store"
)

// ProvisionResult lists the entity types that were provisioned.
type ProvisionResult struct {
	Entities []string `json:"entities"`
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create or migrate log tables and current views",
		Long: `Create or migrate the log table, indexes and current view of every
declared and built-in entity type. Safe to run repeatedly.

Exit codes:
  0 - All entity types provisioned
  2 - Configuration, database or provisioning error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(rootOpts, cmd)
		},
	}
}

func runProvision(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ProvisionAll(ctx, a.entities); err != nil {
		code := ErrCodeStore
		if store.IsSchemaProvisionError(err) {
			code = ErrCodeBuildFailed
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "provisioning failed", err)
	}

	result := ProvisionResult{Entities: make([]string, len(a.entities))}
	for i, e := range a.entities {
		result.Entities[i] = e.Name
		formatter.VerboseLog("provisioned %s -> %s, %s", e.Name, e.LogTable(), e.ViewName())
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Provisioned %d entity type(s)\n", len(result.Entities))
	return nil
}
