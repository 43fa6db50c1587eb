package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/weftlog/weft/internal/schema"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [event-type]",
		Short: "Show registered payload schemas",
		Long: `Schema lists the event types with a declared payload shape, or
prints the CUE source of one shape.

Examples:
  weft schema
  weft schema lane.transition`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSchema(opts *RootOptions, args []string, cmd *cobra.Command) error {
	registry, err := schema.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "building schema registry", err)
	}

	f := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if len(args) == 0 {
		types := registry.Types()
		sort.Strings(types)
		return f.Success(map[string]any{"types": types}, func(w io.Writer) {
			for _, t := range types {
				fmt.Fprintln(w, t)
			}
		})
	}

	src, err := registry.Source(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "looking up schema", err)
	}
	return f.Success(map[string]any{"type": args[0], "schema": src}, func(w io.Writer) {
		fmt.Fprintln(w, src)
	})
}
