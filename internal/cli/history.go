package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/fibdrv/internal/fib"
	"github.com/roach88/fibdrv/internal/stats"
	"github.com/roach88/fibdrv/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Index    int
	Export   string
	Delete   bool
}

// SnapshotSummary is one row of the history listing.
type SnapshotSummary struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"`
	Device  string `json:"device"`
	Label   string `json:"label,omitempty"`
	Indices int    `json:"indices"`
	Reads   uint64 `json:"reads"`
	TotalNS uint64 `json:"total_ns"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [snapshot-id]",
		Short: "List or show saved stats snapshots",
		Long: `Inspect snapshots saved by "fibdrv bench --db".

Without arguments, lists every snapshot in seq order. With an ID, prints
that snapshot's listing. --index shows one index across all snapshots,
--export writes a zstd-compressed JSON lines archive and --delete removes
the named snapshot.

Examples:
  fibdrv history --db ./fib.db
  fibdrv history --db ./fib.db 01928c3e-...
  fibdrv history --db ./fib.db --index 92
  fibdrv history --db ./fib.db --export snaps.jsonl.zst`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to config db)")
	cmd.Flags().IntVar(&opts.Index, "index", -1, "show one index across snapshots")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write a compressed archive of all snapshots")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the named snapshot")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.settings().DB
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set db in the config")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath))
	}
	if opts.Delete && len(args) == 0 {
		return NewExitError(ExitCommandError, "--delete needs a snapshot ID")
	}
	if opts.Index >= 0 && int64(opts.Index) != fib.Clamp(int64(opts.Index)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("--index must be within 0..%d", fib.MaxIndex))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.Export != "":
		return exportHistory(ctx, opts, st, cmd)
	case opts.Delete:
		return deleteSnapshot(ctx, opts, st, args[0], cmd)
	case len(args) == 1:
		return showSnapshot(ctx, opts, st, args[0], cmd)
	case opts.Index >= 0:
		return showIndex(ctx, opts, st, cmd)
	default:
		return listSnapshots(ctx, opts, st, cmd)
	}
}

func listSnapshots(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	snaps, err := st.ListSnapshots(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list snapshots", err)
	}

	rows := make([]SnapshotSummary, len(snaps))
	for i, s := range snaps {
		rows[i] = SnapshotSummary{
			ID:      s.ID,
			Seq:     s.Seq,
			Device:  s.Device,
			Label:   s.Label,
			Indices: len(s.Entries),
			Reads:   s.Reads(),
			TotalNS: s.TotalNS(),
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(rows)
	}

	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return nil
	}
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%d %s %s %s indices=%d reads=%d total_ns=%d\n",
			r.Seq, r.ID, r.Device, label, r.Indices, r.Reads, r.TotalNS)
	}
	return nil
}

func showSnapshot(ctx context.Context, opts *HistoryOptions, st *store.Store, id string, cmd *cobra.Command) error {
	snap, err := st.ReadSnapshot(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("snapshot not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(snap)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "snapshot %s (seq %d) device %s", snap.ID, snap.Seq, snap.Device)
	if snap.Label != "" {
		fmt.Fprintf(w, " label %s", snap.Label)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, stats.RenderEntries(snap.Entries, math.MaxInt))
	return nil
}

func showIndex(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	points, err := st.IndexHistory(ctx, opts.Index)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read index history", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(points)
	}

	w := cmd.OutOrStdout()
	for _, p := range points {
		fmt.Fprintf(w, "%d %s %s", p.Seq, p.SnapshotID, stats.FormatEntry(p.Entry))
	}
	return nil
}

func deleteSnapshot(ctx context.Context, opts *HistoryOptions, st *store.Store, id string, cmd *cobra.Command) error {
	err := st.DeleteSnapshot(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("snapshot not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to delete snapshot", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}

func exportHistory(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	var buf bytes.Buffer
	n, err := st.Export(ctx, &buf)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to export snapshots", err)
	}
	size := buf.Len()
	if err := atomic.WriteFile(opts.Export, &buf); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	opts.logger().Debug("history exported", "path", opts.Export, "snapshots", n, "bytes", size)

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(map[string]any{"path": opts.Export, "snapshots": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d snapshot(s) to %s\n", n, opts.Export)
	return nil
}
