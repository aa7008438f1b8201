package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
)

// ControlOptions holds flags for the rollback and reset commands.
type ControlOptions struct {
	*RootOptions
	Database string
	Reason   string
}

// NewRollbackCommand creates the rollback command.
//
// Rollback appends a rollback event for the feature. A running pipeline
// following the log applies it by pinning the feature to legacy and forcing
// its circuit OPEN; the event itself is the durable audit record of the
// operator action.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ControlOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback <feature>",
		Short: "Force a feature back to the legacy system",
		Long: `Record an operator rollback for a feature. The rollback is captured as
an event with the given reason; processing for the feature is pinned to the
legacy system until an explicit reset.

Examples:
  cutover rollback transfers --reason incident-123 --db ./cutover.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to event store database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded with the rollback (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func runRollback(opts *ControlOptions, cmd *cobra.Command, feature string) error {
	store, err := eventlog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	defer store.Close()

	payload, err := event.EncodeRollback(feature, opts.Reason)
	if err != nil {
		return WrapExitError(ExitCommandError, "encode rollback", err)
	}

	seq, err := store.Append(context.Background(), event.Record{
		Kind:    event.KindRollback,
		Feature: feature,
		Payload: payload,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "append rollback event", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"feature": feature,
			"reason":  opts.Reason,
			"seq":     seq,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %s (reason: %s), event seq %d\n", feature, opts.Reason, seq)
	return nil
}

// NewResetCommand creates the reset command.
//
// Reset records a manual circuit close for the feature. This is the only
// path from OPEN back to CLOSED.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ControlOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset <feature>",
		Short: "Close a feature's circuit after an incident",
		Long: `Record a manual circuit reset for a feature, resuming normal rollout
routing. Circuits never close automatically; this is the only way back.

Examples:
  cutover reset transfers --db ./cutover.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to event store database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReset(opts *ControlOptions, cmd *cobra.Command, feature string) error {
	store, err := eventlog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	defer store.Close()

	payload, err := event.EncodeCircuitTransition(event.CircuitSnapshot{
		Feature: feature,
		Mode:    event.CircuitClosed,
	}, "manual-reset")
	if err != nil {
		return WrapExitError(ExitCommandError, "encode circuit transition", err)
	}

	seq, err := store.Append(context.Background(), event.Record{
		Kind:    event.KindCircuitTransition,
		Feature: feature,
		Payload: payload,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "append circuit transition", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"feature": feature,
			"seq":     seq,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset circuit for %s, event seq %d\n", feature, seq)
	return nil
}
