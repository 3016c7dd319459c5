package store

import (
	"context"
	"fmt"

	"github.com/roach88/fibdrv/internal/stats"
)

// ReadSnapshot returns a snapshot with its entries in index order.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, device, label
		FROM snapshots
		WHERE id = ?
	`, id).Scan(&snap.ID, &snap.Seq, &snap.Device, &snap.Label)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}

	entries, err := s.readEntries(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Entries = entries
	return snap, nil
}

// ListSnapshots returns every snapshot, with entries, ordered by seq.
//
// Returns an empty slice (not nil) if the history is empty.
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, device, label
		FROM snapshots
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Seq, &snap.Device, &snap.Label); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	for i := range snaps {
		entries, err := s.readEntries(ctx, snaps[i].ID)
		if err != nil {
			return nil, err
		}
		snaps[i].Entries = entries
	}
	return snaps, nil
}

// IndexPoint is one snapshot's entry for a single index.
type IndexPoint struct {
	SnapshotID string      `json:"snapshot_id"`
	Seq        int64       `json:"seq"`
	Label      string      `json:"label,omitempty"`
	Entry      stats.Entry `json:"entry"`
}

// IndexHistory returns the entry for idx from every snapshot that recorded
// it, ordered by seq.
//
// Returns an empty slice (not nil) if no snapshot recorded idx.
func (s *Store) IndexHistory(ctx context.Context, idx int) ([]IndexPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.seq, s.label, e.total_ns, e.count
		FROM snapshot_entries e
		JOIN snapshots s ON s.id = e.snapshot_id
		WHERE e.idx = ?
		ORDER BY s.seq ASC
	`, idx)
	if err != nil {
		return nil, fmt.Errorf("query index history: %w", err)
	}
	defer rows.Close()

	points := []IndexPoint{}
	for rows.Next() {
		var p IndexPoint
		var total, count int64
		if err := rows.Scan(&p.SnapshotID, &p.Seq, &p.Label, &total, &count); err != nil {
			return nil, fmt.Errorf("scan index history: %w", err)
		}
		p.Entry = stats.Entry{Index: idx, TotalNS: uint64(total), Count: uint32(count)}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index history: %w", err)
	}
	return points, nil
}

func (s *Store) readEntries(ctx context.Context, id string) ([]stats.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, total_ns, count
		FROM snapshot_entries
		WHERE snapshot_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []stats.Entry
	for rows.Next() {
		var e stats.Entry
		var total, count int64
		if err := rows.Scan(&e.Index, &total, &count); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.TotalNS = uint64(total)
		e.Count = uint32(count)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
