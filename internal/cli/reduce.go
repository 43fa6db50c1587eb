package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/weftlog/weft/internal/clock"
	"github.com/weftlog/weft/internal/event"
	"github.com/weftlog/weft/internal/lane"
	"github.com/weftlog/weft/internal/reduce"
	"github.com/weftlog/weft/internal/schema"
)

// ReduceOptions holds flags for the reduce command.
type ReduceOptions struct {
	*RootOptions
	Mode    string
	ClockDB string
	NodeID  string
}

// NewReduceCommand creates the reduce command.
func NewReduceCommand(rootOpts *RootOptions, cfg *Config) *cobra.Command {
	opts := &ReduceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reduce <events-file>",
		Short: "Reduce an event log into a lane projection",
		Long: `Reduce folds a JSON or YAML event log into the lane projection for
one entity. Input order does not matter: events are sorted by the
(lamport_clock, timestamp, event_id) total-order key before folding.

Exit codes:
  0 - reduced cleanly
  1 - reduced with anomalies (permissive) or aborted on a violation (strict)
  2 - command error (bad paths, malformed input)

Examples:
  weft reduce ./task-42.json
  weft reduce ./task-42.yaml --mode permissive
  weft reduce ./task-42.json --clock-db ./weft.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReduce(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", cfg.Mode, "reduction mode (strict|permissive)")
	cmd.Flags().StringVar(&opts.ClockDB, "clock-db", cfg.ClockDB, "SQLite path for durable clock checkpoints")
	cmd.Flags().StringVar(&opts.NodeID, "node-id", cfg.NodeID, "node identity for the clock checkpoint")

	return cmd
}

func runReduce(opts *ReduceOptions, path string, cmd *cobra.Command) error {
	mode, err := reduce.ParseMode(opts.Mode)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	events, err := LoadEvents(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading events", err)
	}
	opts.Logger.Debug("events loaded", "path", path, "count", len(events))

	registry, err := schema.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "building schema registry", err)
	}
	machine := lane.NewMachine(lane.WithPayloadValidator(registry))

	state, err := machine.Reduce(events, mode)

	// Checkpoint, even on strict failure: the clocks were observed
	// regardless of whether the projection was renderable.
	if opts.ClockDB != "" {
		if ckErr := checkpointClock(opts, events); ckErr != nil {
			return WrapExitError(ExitCommandError, "checkpointing clock", ckErr)
		}
	}

	f := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err != nil {
		if ferr := f.Failure(err.Error(), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "reduction aborted")
	}

	if ferr := f.Success(state, func(w io.Writer) { writeStatusText(w, state) }); ferr != nil {
		return ferr
	}
	if len(state.Anomalies) > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("reduced with %d anomalies", len(state.Anomalies)))
	}
	return nil
}

// checkpointClock observes every event's clock as this node and saves
// the advanced counter, so a later writer resuming from the same DB can
// never mint a stale value.
func checkpointClock(opts *ReduceOptions, events []event.Event) error {
	storage, err := clock.OpenSQLite(opts.ClockDB)
	if err != nil {
		return err
	}
	defer storage.Close()

	c, err := clock.Resume(storage, opts.NodeID)
	if err != nil {
		return err
	}
	for _, evt := range events {
		c.Observe(evt.LamportClock)
	}
	opts.Logger.Debug("clock checkpoint", "node", opts.NodeID, "value", c.Current())
	return clock.Checkpoint(storage, c)
}

func writeStatusText(w io.Writer, state *reduce.ReducedState[lane.Status]) {
	s := state.State
	fmt.Fprintf(w, "entity:      %s\n", s.AggregateID)
	fmt.Fprintf(w, "lane:        %s\n", s.Lane)
	fmt.Fprintf(w, "transitions: %d\n", s.TransitionCount)
	fmt.Fprintf(w, "reopens:     %d\n", s.Reopens)
	if s.Actor != "" {
		fmt.Fprintf(w, "actor:       %s\n", s.Actor)
	}
	if len(s.Labels) > 0 {
		fmt.Fprintf(w, "labels:      %v\n", s.Labels)
	}
	if s.TieBreak != nil {
		fmt.Fprintf(w, "tie break:   %s (%s)\n", s.TieBreak.EventID, s.TieBreak.Reason)
	}
	fmt.Fprintf(w, "events:      %d (last %s)\n", state.EventCount, state.LastEventID)
	for _, a := range state.Anomalies {
		fmt.Fprintf(w, "anomaly:     [%s] %s: %s\n", a.Kind, a.EventID, a.Message)
	}
}
