// Package stats keeps per-index timing statistics for the Fibonacci device.
//
// Each index owns an independent cell of atomic counters, so recording on the
// read path never contends with rendering or resetting from the control plane.
// A render that races a record may observe a half-updated cell; the counters
// themselves are never torn.
package stats

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/fibdrv/internal/fib"
)

// PageSize is the buffer budget of a single control endpoint read.
const PageSize = 4096

// DefaultRenderLimit leaves room in the page for the truncation marker.
const DefaultRenderLimit = PageSize - 32

// TruncatedMarker terminates a listing that did not fit the render limit.
const TruncatedMarker = "... more lines truncated\n"

// Entry is a point-in-time copy of one index's counters.
type Entry struct {
	Index   int    `json:"index"`
	TotalNS uint64 `json:"total_ns"`
	Count   uint32 `json:"count"`
}

// cell is the live storage for one index.
type cell struct {
	totalNS atomic.Uint64
	count   atomic.Uint32
}

// Table holds one cell per index in [0, fib.MaxIndex].
//
// Table is created once and reset in place; it is never reallocated.
// Thread-safety: all methods are safe for concurrent use.
type Table struct {
	cells [fib.MaxIndex + 1]cell
}

// New allocates a zeroed table.
func New() *Table {
	return &Table{}
}

// Len returns the number of indices tracked.
func (t *Table) Len() int {
	return len(t.cells)
}

// Record adds one invocation taking elapsed to index k.
//
// The time is added before the count so a concurrent ResetAll can leave a
// counted entry with zero time but never a timed entry with a zero count.
// Out-of-domain indices are ignored.
func (t *Table) Record(k int, elapsed time.Duration) {
	if k < 0 || k >= len(t.cells) {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	c := &t.cells[k]
	c.totalNS.Add(uint64(elapsed))
	c.count.Add(1)
}

// ResetAll zeroes every cell in place.
func (t *Table) ResetAll() {
	for i := range t.cells {
		c := &t.cells[i]
		c.count.Store(0)
		c.totalNS.Store(0)
	}
}

// Entry returns a copy of index k's counters.
func (t *Table) Entry(k int) Entry {
	if k < 0 || k >= len(t.cells) {
		return Entry{Index: k}
	}
	c := &t.cells[k]
	return Entry{
		Index:   k,
		TotalNS: c.totalNS.Load(),
		Count:   c.count.Load(),
	}
}

// Snapshot returns the entries with a nonzero count, in ascending index order.
func (t *Table) Snapshot() []Entry {
	var out []Entry
	for i := range t.cells {
		e := t.Entry(i)
		if e.Count == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FormatEntry renders a single listing line.
func FormatEntry(e Entry) string {
	return fmt.Sprintf("%d: %d / %d\n", e.Index, e.TotalNS, e.Count)
}

// Render lists every index with a nonzero count as "<index>: <total_ns> / <count>",
// ascending. The listing stays strictly below limit bytes: once the next line
// would reach limit, it and the rest are dropped and TruncatedMarker is
// appended. A limit <= 0 uses DefaultRenderLimit.
func (t *Table) Render(limit int) string {
	return RenderEntries(t.Snapshot(), limit)
}

// RenderEntries formats entries the same way Render does. Entries with a zero
// count are skipped; the caller provides ascending order.
func RenderEntries(entries []Entry, limit int) string {
	if limit <= 0 {
		limit = DefaultRenderLimit
	}

	var buf strings.Builder
	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		line := FormatEntry(e)
		if buf.Len()+len(line) >= limit {
			buf.WriteString(TruncatedMarker)
			break
		}
		buf.WriteString(line)
	}
	return buf.String()
}
