package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/fibdrv/internal/stats"
)

// createTestStore opens a fresh database that is closed when t ends.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// entries builds a compact entry list: pairs of (index, count), each read
// costing 100ns.
func entries(pairs ...int) []stats.Entry {
	var out []stats.Entry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, stats.Entry{
			Index:   pairs[i],
			Count:   uint32(pairs[i+1]),
			TotalNS: uint64(pairs[i+1]) * 100,
		})
	}
	return out
}
