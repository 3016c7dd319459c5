package cli

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fibdrv/internal/device"
)

// ContendOptions holds flags for the contend command.
type ContendOptions struct {
	*RootOptions
	Workers int
	Rounds  int
}

// ContendResult counts open outcomes across all rounds.
type ContendResult struct {
	Workers int   `json:"workers"`
	Rounds  int   `json:"rounds"`
	Opened  int64 `json:"opened"`
	Busy    int64 `json:"busy"`
}

// NewContendCommand creates the contend command.
func NewContendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contend",
		Short: "Race concurrent opens against the device",
		Long: `Start --workers goroutines that open the device at the same moment.

Each round exactly one open must succeed; the winner holds the session until
every other worker has been refused with "busy". Any other outcome exits 1.

Example:
  fibdrv contend --workers 16 --rounds 100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContend(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 8, "concurrent openers per round")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "number of races")

	return cmd
}

func runContend(opts *ContendOptions, cmd *cobra.Command) error {
	if opts.Workers < 1 {
		return NewExitError(ExitCommandError, "--workers must be at least 1")
	}
	if opts.Rounds < 1 {
		return NewExitError(ExitCommandError, "--rounds must be at least 1")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := startRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.stop()

	result := ContendResult{Workers: opts.Workers, Rounds: opts.Rounds}
	for round := 0; round < opts.Rounds; round++ {
		opened, busy, err := contendOnce(ctx, rt, opts.Workers)
		if err != nil {
			return WrapExitError(ExitFailure, "open failed", err)
		}
		result.Opened += opened
		result.Busy += busy
	}
	opts.logger().Debug("contention finished", "opened", result.Opened, "busy", result.Busy)

	if opts.Format == "json" {
		if err := opts.formatter(cmd).Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "workers %d rounds %d opened %d busy %d\n",
			result.Workers, result.Rounds, result.Opened, result.Busy)
	}

	if result.Opened != int64(opts.Rounds) {
		return NewExitError(ExitFailure, fmt.Sprintf("expected %d successful opens, got %d", opts.Rounds, result.Opened))
	}
	return nil
}

// contendOnce releases workers together and counts how many opens won.
func contendOnce(ctx context.Context, rt *runtime, workers int) (int64, int64, error) {
	var opened, busy atomic.Int64
	var attempted sync.WaitGroup
	attempted.Add(workers)
	start := make(chan struct{})

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			<-start
			f, err := rt.open()
			attempted.Done()
			if err != nil {
				if device.IsBusy(err) {
					busy.Add(1)
					return nil
				}
				return err
			}
			opened.Add(1)
			// Hold the session until everyone has tried
			attempted.Wait()
			return f.Close()
		})
	}
	close(start)

	err := g.Wait()
	return opened.Load(), busy.Load(), err
}
