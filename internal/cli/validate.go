package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/weftlog/weft/internal/lane"
	"github.com/weftlog/weft/internal/reduce"
	"github.com/weftlog/weft/internal/schema"
)

// ValidateResult is the per-file validation report.
type ValidateResult struct {
	Events    int              `json:"events"`
	Anomalies []reduce.Anomaly `json:"anomalies,omitempty"`
	Valid     bool             `json:"valid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <events-file>",
		Short: "Check an event log without rendering state",
		Long: `Validate runs a permissive reduction and reports every schema and
transition violation in the log, without printing the projection.

Exit codes:
  0 - log is clean
  1 - violations found
  2 - command error (bad paths, malformed input)

Examples:
  weft validate ./task-42.json
  weft validate ./task-42.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	events, err := LoadEvents(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading events", err)
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "building schema registry", err)
	}
	machine := lane.NewMachine(lane.WithPayloadValidator(registry))

	// Permissive mode surfaces every violation in one pass instead of
	// stopping at the first.
	state, err := machine.Reduce(events, reduce.Permissive)
	if err != nil {
		return WrapExitError(ExitFailure, "log violates a pipeline invariant", err)
	}

	result := ValidateResult{
		Events:    state.EventCount,
		Anomalies: state.Anomalies,
		Valid:     len(state.Anomalies) == 0,
	}

	f := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if ferr := f.Success(result, func(w io.Writer) {
		if result.Valid {
			fmt.Fprintf(w, "%d events, no violations\n", result.Events)
			return
		}
		fmt.Fprintf(w, "%d events, %d violations\n", result.Events, len(result.Anomalies))
		for _, a := range result.Anomalies {
			fmt.Fprintf(w, "  [%s] %s: %s\n", a.Kind, a.EventID, a.Message)
		}
	}); ferr != nil {
		return ferr
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d violations", len(result.Anomalies)))
	}
	return nil
}
