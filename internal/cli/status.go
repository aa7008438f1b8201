package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// FeatureStatus summarizes one feature's captured history.
type FeatureStatus struct {
	Feature       string `json:"feature"`
	CircuitMode   string `json:"circuit_mode"`
	LastReason    string `json:"last_reason,omitempty"`
	Transactions  int    `json:"transactions"`
	Discrepancies int    `json:"discrepancies"`
	Rollbacks     int    `json:"rollbacks"`
}

// StatusResult is the status command's output.
type StatusResult struct {
	LastSeq  int64           `json:"last_seq"`
	Events   int64           `json:"events"`
	Features []FeatureStatus `json:"features"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize per-feature migration state from the event log",
		Long: `Derive each feature's current circuit mode and activity counters from
the captured event history. The event log is the source of truth: circuit
transitions and rollbacks are replayed in order and the last transition wins.

Examples:
  cutover status --db ./cutover.db
  cutover status --db ./cutover.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to event store database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	store, err := eventlog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	defer store.Close()

	ctx := context.Background()
	records, err := store.Replay(ctx, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := summarize(records)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Event log: %d event(s), last seq %d\n\n", result.Events, result.LastSeq)
	if len(result.Features) == 0 {
		fmt.Fprintln(w, "No features observed.")
		return nil
	}
	for _, f := range result.Features {
		fmt.Fprintf(w, "%s\n", f.Feature)
		fmt.Fprintf(w, "  circuit:       %s\n", f.CircuitMode)
		if f.LastReason != "" {
			fmt.Fprintf(w, "  last reason:   %s\n", f.LastReason)
		}
		fmt.Fprintf(w, "  transactions:  %d\n", f.Transactions)
		fmt.Fprintf(w, "  discrepancies: %d\n", f.Discrepancies)
		fmt.Fprintf(w, "  rollbacks:     %d\n", f.Rollbacks)
		fmt.Fprintln(w)
	}
	return nil
}

// summarize folds the event history into per-feature status. Replay order is
// sequence order, so the final circuit mode is whatever the last transition
// for each feature says.
func summarize(records []event.Record) StatusResult {
	features := make(map[string]*FeatureStatus)
	status := func(feature string) *FeatureStatus {
		if f, ok := features[feature]; ok {
			return f
		}
		f := &FeatureStatus{Feature: feature, CircuitMode: string(event.CircuitClosed)}
		features[feature] = f
		return f
	}

	var result StatusResult
	for _, rec := range records {
		result.Events++
		result.LastSeq = rec.Seq
		f := status(rec.Feature)

		switch rec.Kind {
		case event.KindRoutingDecision:
			f.Transactions++
		case event.KindValidationResult:
			var payload struct {
				DiscrepancyCount int `json:"discrepancy_count"`
			}
			if err := json.Unmarshal(rec.Payload, &payload); err == nil {
				f.Discrepancies += payload.DiscrepancyCount
			}
		case event.KindCircuitTransition:
			var payload struct {
				Mode   string `json:"mode"`
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(rec.Payload, &payload); err == nil {
				f.CircuitMode = payload.Mode
				f.LastReason = payload.Reason
			}
		case event.KindRollback:
			f.Rollbacks++
		}
	}

	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result.Features = append(result.Features, *features[name])
	}
	return result
}
