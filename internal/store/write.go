package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/roach88/fibdrv/internal/stats"
)

// ErrEmptySnapshot is returned when a snapshot has no nonzero entries.
var ErrEmptySnapshot = errors.New("snapshot has no entries")

// Snapshot is one persisted copy of the statistics table.
type Snapshot struct {
	ID      string        `json:"id"`
	Seq     int64         `json:"seq"`
	Device  string        `json:"device"`
	Label   string        `json:"label,omitempty"`
	Entries []stats.Entry `json:"entries,omitempty"`
}

// Reads returns the total invocation count across all entries.
func (s Snapshot) Reads() uint64 {
	var n uint64
	for _, e := range s.Entries {
		n += uint64(e.Count)
	}
	return n
}

// TotalNS returns the summed time across all entries.
func (s Snapshot) TotalNS() uint64 {
	var n uint64
	for _, e := range s.Entries {
		n += e.TotalNS
	}
	return n
}

// WriteSnapshot persists the nonzero entries under a fresh UUIDv7 ID and the
// next logical seq. Zero-count entries are dropped; if none remain,
// ErrEmptySnapshot is returned and nothing is written.
func (s *Store) WriteSnapshot(ctx context.Context, device, label string, entries []stats.Entry) (Snapshot, error) {
	snap := Snapshot{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Device: device,
		Label:  label,
	}
	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		if e.TotalNS > math.MaxInt64 {
			return Snapshot{}, fmt.Errorf("write snapshot: index %d: total_ns %d overflows storage", e.Index, e.TotalNS)
		}
		snap.Entries = append(snap.Entries, e)
	}
	if len(snap.Entries) == 0 {
		return Snapshot{}, ErrEmptySnapshot
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Single writer connection, so MAX(seq)+1 inside the tx cannot race.
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots`).Scan(&snap.Seq); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, seq, device, label)
		VALUES (?, ?, ?, ?)
	`, snap.ID, snap.Seq, snap.Device, snap.Label); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_entries (snapshot_id, idx, total_ns, count)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: prepare entries: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		if _, err := stmt.ExecContext(ctx, snap.ID, e.Index, int64(e.TotalNS), int64(e.Count)); err != nil {
			return Snapshot{}, fmt.Errorf("write snapshot: entry %d: %w", e.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot removes a snapshot and its entries.
// Returns sql.ErrNoRows if no snapshot has that ID.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete snapshot %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
