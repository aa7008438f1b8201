package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian/cutover/internal/event"
	"github.com/meridian/cutover/internal/eventlog"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	From     int64
	Kind     string
	Feature  string
	Follow   bool
}

// replayEvent is the JSON shape of one replayed event.
type replayEvent struct {
	Seq           int64  `json:"seq"`
	Timestamp     string `json:"timestamp"`
	Kind          string `json:"kind"`
	Feature       string `json:"feature"`
	TransactionID string `json:"transaction_id,omitempty"`
	Payload       string `json:"payload"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the event log in sequence order",
		Long: `Replay captured events in ascending sequence order, optionally
restricted to one event kind or feature, starting after a given sequence id.

With --follow the command keeps running and prints new events as they are
published, until interrupted.

Examples:
  cutover replay --db ./cutover.db
  cutover replay --db ./cutover.db --from 1000 --kind validation-result
  cutover replay --db ./cutover.db --feature transfers --follow`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to event store database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "replay events with seq greater than this")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind")
	cmd.Flags().StringVar(&opts.Feature, "feature", "", "only events for this feature")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep following the log for new events")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if opts.Kind != "" && !event.Kind(opts.Kind).Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", opts.Kind))
	}
	if opts.Follow && (opts.Kind != "" || opts.Feature != "") {
		return NewExitError(ExitCommandError, "--follow cannot be combined with --kind or --feature")
	}

	store, err := eventlog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	defer store.Close()

	if opts.Follow {
		return followReplay(opts, cmd, store)
	}

	ctx := context.Background()
	var records []event.Record
	switch {
	case opts.Kind != "":
		records, err = store.ReplayKind(ctx, event.Kind(opts.Kind), opts.From)
	case opts.Feature != "":
		records, err = store.ReplayFeature(ctx, opts.Feature, opts.From)
	default:
		records, err = store.Replay(ctx, opts.From)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if opts.Format == "json" {
		out := make([]replayEvent, len(records))
		for i, rec := range records {
			out[i] = toReplayEvent(rec)
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	for _, rec := range records {
		printRecord(w, rec)
	}
	fmt.Fprintf(w, "%d event(s)\n", len(records))
	return nil
}

// followReplay streams events until the command is interrupted.
func followReplay(opts *ReplayOptions, cmd *cobra.Command, store *eventlog.Store) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	for rec := range store.Tail(ctx, opts.From) {
		if opts.Format == "json" {
			if err := writeJSON(w, toReplayEvent(rec)); err != nil {
				return err
			}
			continue
		}
		printRecord(w, rec)
	}
	return nil
}

func toReplayEvent(rec event.Record) replayEvent {
	return replayEvent{
		Seq:           rec.Seq,
		Timestamp:     rec.Timestamp.Format(time.RFC3339Nano),
		Kind:          string(rec.Kind),
		Feature:       rec.Feature,
		TransactionID: rec.TransactionID,
		Payload:       string(rec.Payload),
	}
}

func printRecord(w io.Writer, rec event.Record) {
	txn := rec.TransactionID
	if txn == "" {
		txn = "-"
	}
	fmt.Fprintf(w, "%6d  %-30s  %-18s  %-12s  %s  %s\n",
		rec.Seq,
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.Kind,
		rec.Feature,
		txn,
		rec.Payload,
	)
}
