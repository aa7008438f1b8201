package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meridian/cutover/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// featureSummary is the JSON shape of one validated feature.
type featureSummary struct {
	Feature           string `json:"feature"`
	RolloutPercent    int    `json:"rollout_percent"`
	DualRunEnabled    bool   `json:"dual_run_enabled"`
	OverrideTarget    string `json:"override_target,omitempty"`
	CircuitThreshold  string `json:"circuit_threshold"`
	CircuitWindowSize int    `json:"circuit_window_size"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a routing configuration file",
		Long: `Parse and schema-check a routing configuration document, then print the
effective per-feature settings with defaults applied.

Exit codes:
  0 - configuration is valid
  1 - configuration failed validation
  2 - command error (file not found, etc.)

Examples:
  cutover validate routing.yaml
  cutover validate routing.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args[0])
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, path string) error {
	doc, err := config.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitFailure, "configuration invalid", err)
	}

	names := make([]string, 0, len(doc.Features))
	for name := range doc.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]featureSummary, 0, len(names))
	for _, name := range names {
		cfg := doc.Features[name]
		s := featureSummary{
			Feature:           name,
			RolloutPercent:    cfg.RolloutPercent,
			DualRunEnabled:    cfg.DualRunEnabled,
			CircuitThreshold:  fmt.Sprintf("%.2f", cfg.CircuitThreshold),
			CircuitWindowSize: cfg.CircuitWindowSize,
		}
		if cfg.OverrideTarget != nil {
			s.OverrideTarget = string(*cfg.OverrideTarget)
		}
		summaries = append(summaries, s)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), summaries)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration valid: %d feature(s)\n\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\n", s.Feature)
		fmt.Fprintf(w, "  rollout:   %d%%\n", s.RolloutPercent)
		fmt.Fprintf(w, "  dual-run:  %v\n", s.DualRunEnabled)
		if s.OverrideTarget != "" {
			fmt.Fprintf(w, "  override:  %s\n", s.OverrideTarget)
		}
		fmt.Fprintf(w, "  circuit:   threshold %s over %d requests\n", s.CircuitThreshold, s.CircuitWindowSize)
		fmt.Fprintln(w)
	}
	return nil
}
