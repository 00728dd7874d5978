package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetcrawl/internal/schema"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Dialect string
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl <entities-dir>",
		Short: "Print the SQL that provisioning would run",
		Long: `Print the CREATE TABLE, index and view statements for the entity types
declared in a directory, in reference order, without connecting to a
database.

Example:
  fleetcrawl ddl ./entities --dialect postgres > schema.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite", "SQL dialect (sqlite|postgres)")

	return cmd
}

func runDDL(opts *DDLOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	d, err := schema.DialectByName(opts.Dialect)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	entities, validationErrors, err := validateDir(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	levels, err := schema.Levels(entities)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	var stmts []string
	for _, e := range schema.Flatten(levels) {
		ddl, err := schema.Generate(d, e)
		if err != nil {
			return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("%s: %v", e.Name, err))
		}
		stmts = append(stmts, ddl...)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"dialect": opts.Dialect, "statements": stmts})
	}
	fmt.Fprint(formatter.Writer, schema.Script(stmts))
	return nil
}
