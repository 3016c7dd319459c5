package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Export writes every snapshot to w as zstd-compressed JSON lines, in seq
// order, and returns how many were written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	snaps, err := s.ListSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	compressor, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("failed to create compressor: %w", err)
	}
	buf := bufio.NewWriter(compressor)
	enc := json.NewEncoder(buf)
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			_ = compressor.Close()
			return 0, fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = compressor.Close()
		return 0, fmt.Errorf("flush export: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return 0, fmt.Errorf("close compressor: %w", err)
	}
	return len(snaps), nil
}

// ReadExport decodes a stream written by Export.
func ReadExport(r io.Reader) ([]Snapshot, error) {
	decompressor, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer decompressor.Close()

	snaps := []Snapshot{}
	dec := json.NewDecoder(decompressor)
	for {
		var snap Snapshot
		err := dec.Decode(&snap)
		if errors.Is(err, io.EOF) {
			return snaps, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		snaps = append(snaps, snap)
	}
}
