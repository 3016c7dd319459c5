package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/roach88/fibdrv/internal/fib"
	"github.com/roach88/fibdrv/internal/stats"
	"github.com/roach88/fibdrv/internal/store"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Range    indexRange
	Rounds   int
	Rate     float64 // reads per second; 0 is unlimited
	Database string
	Label    string
}

// BenchResult is the outcome of a bench run.
type BenchResult struct {
	Rounds   int             `json:"rounds"`
	Reads    int             `json:"reads"`
	Listing  string          `json:"listing"`
	Entries  []stats.Entry   `json:"entries"`
	Snapshot *store.Snapshot `json:"snapshot,omitempty"`
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated reads and print the stats listing",
		Long: `Read every index in the range --rounds times, then print the
control group's result listing ("index: total_ns / count" per line).

With --db (or the db config key) the statistics are saved as a snapshot
that "fibdrv history" can list later.

Examples:
  fibdrv bench --rounds 100
  fibdrv bench --from 90 --to 92 --db ./fib.db --label warm
  fibdrv bench --rate 500`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	addRangeFlags(cmd.Flags(), &opts.Range)
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "passes over the range")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "maximum reads per second (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for the snapshot (defaults to config db)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "snapshot label")

	return cmd
}

func runBench(opts *BenchOptions, cmd *cobra.Command) error {
	if err := opts.Range.validate(); err != nil {
		return err
	}
	if opts.Rounds < 1 {
		return NewExitError(ExitCommandError, "--rounds must be at least 1")
	}
	if opts.Rate < 0 {
		return NewExitError(ExitCommandError, "--rate must be non-negative")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	rt, err := startRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.stop()

	f, err := rt.open()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open device", err)
	}

	from, to := fib.Clamp(opts.Range.From), fib.Clamp(opts.Range.To)
	log := opts.logger()
	started := time.Now()
	reads := 0
	for round := 0; round < opts.Rounds; round++ {
		for k := from; k <= to; k++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					f.Close()
					return WrapExitError(ExitFailure, "bench interrupted", err)
				}
			}
			if _, _, err := readAt(f, k); err != nil {
				f.Close()
				return WrapExitError(ExitFailure, "read failed", err)
			}
			reads++
		}
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to close device", err)
	}
	log.Debug("bench finished", "reads", reads, "wall", time.Since(started))

	listing, err := rt.listing()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read stats", err)
	}

	result := BenchResult{
		Rounds:  opts.Rounds,
		Reads:   reads,
		Listing: listing,
		Entries: rt.svc.Stats().Snapshot(),
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.settings().DB
	}
	if dbPath != "" {
		snap, err := saveSnapshot(ctx, dbPath, rt.svc.Name(), opts.Label, result.Entries)
		if err != nil {
			return err
		}
		log.Info("snapshot saved", "id", snap.ID, "seq", snap.Seq, "db", dbPath)
		result.Snapshot = &snap
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprint(w, listing)
	if result.Snapshot != nil {
		fmt.Fprintf(w, "snapshot %s (seq %d)\n", result.Snapshot.ID, result.Snapshot.Seq)
	}
	return nil
}

func saveSnapshot(ctx context.Context, path, device, label string, entries []stats.Entry) (store.Snapshot, error) {
	st, err := store.Open(path)
	if err != nil {
		return store.Snapshot{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	snap, err := st.WriteSnapshot(ctx, device, label, entries)
	if err != nil {
		return store.Snapshot{}, WrapExitError(ExitFailure, "failed to save snapshot", err)
	}
	return snap, nil
}
