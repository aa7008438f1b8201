package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian/cutover/internal/codec"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Bytes int
	Scale int
}

// NewDecodeCommand creates the decode command, a debugging aid for
// inspecting packed-decimal fields from legacy records.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a packed-decimal field",
		Long: `Decode a hex-encoded packed-decimal field into its exact decimal value.

Examples:
  cutover decode 00001234567c --bytes 6 --scale 2
  cutover decode 12345d --bytes 3 --scale 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Bytes, "bytes", 6, "field length in bytes")
	cmd.Flags().IntVar(&opts.Scale, "scale", 2, "implied digits after the decimal point")

	return cmd
}

func runDecode(opts *DecodeOptions, cmd *cobra.Command, hexInput string) error {
	raw, err := hex.DecodeString(hexInput)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid hex input", err)
	}

	layout := codec.FieldLayout{Bytes: opts.Bytes, Scale: opts.Scale}
	value, err := codec.Decode(raw, layout)
	if err != nil {
		return WrapExitError(ExitFailure, "malformed packed decimal", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"value": value.StringFixed(int32(opts.Scale)),
			"bytes": opts.Bytes,
			"scale": opts.Scale,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value.StringFixed(int32(opts.Scale)))
	return nil
}
