package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/fibdrv/internal/fib"
)

// ReadResult is one value read from the device.
type ReadResult struct {
	Requested int64 `json:"requested"`
	Index     int64 `json:"index"`
	Value     int64 `json:"value"`
}

// indexRange is an inclusive [From, To] span of requested indices.
type indexRange struct {
	From int64
	To   int64
}

// addRangeFlags registers --from and --to on fs.
func addRangeFlags(fs *pflag.FlagSet, r *indexRange) {
	fs.Int64Var(&r.From, "from", 0, "first index")
	fs.Int64Var(&r.To, "to", fib.MaxIndex, "last index (inclusive)")
}

func (r indexRange) validate() error {
	if r.From > r.To {
		return NewExitError(ExitCommandError, fmt.Sprintf("--from %d is after --to %d", r.From, r.To))
	}
	return nil
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <k>...",
		Short: "Read F(k) for each index",
		Long: `Open the device, seek to each index and read its value.

Indices outside 0..92 are clamped, so "read 100" reports index 92.

Examples:
  fibdrv read 10
  fibdrv read 0 1 92 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := make([]int64, len(args))
			for i, a := range args {
				k, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("invalid index %q", a), err)
				}
				ks[i] = k
			}
			return runReads(rootOpts, ks, cmd)
		},
	}
	return cmd
}

// NewSeqCommand creates the seq command.
func NewSeqCommand(rootOpts *RootOptions) *cobra.Command {
	var r indexRange

	cmd := &cobra.Command{
		Use:   "seq",
		Short: "Print every value in a range",
		Long: `Read F(k) for every k from --from to --to.

Examples:
  fibdrv seq
  fibdrv seq --from 80 --to 92`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.validate(); err != nil {
				return err
			}
			from, to := fib.Clamp(r.From), fib.Clamp(r.To)
			ks := make([]int64, 0, to-from+1)
			for k := from; k <= to; k++ {
				ks = append(ks, k)
			}
			return runReads(rootOpts, ks, cmd)
		},
	}

	addRangeFlags(cmd.Flags(), &r)
	return cmd
}

func runReads(opts *RootOptions, ks []int64, cmd *cobra.Command) error {
	rt, err := startRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.stop()

	f, err := rt.open()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open device", err)
	}
	defer f.Close()

	results := make([]ReadResult, 0, len(ks))
	for _, k := range ks {
		pos, v, err := readAt(f, k)
		if err != nil {
			return WrapExitError(ExitFailure, "read failed", err)
		}
		results = append(results, ReadResult{Requested: k, Index: pos, Value: v})
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(results)
	}
	w := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(w, "%d %d\n", r.Index, r.Value)
	}
	return nil
}
