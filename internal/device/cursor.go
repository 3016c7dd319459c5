package device

import (
	"io"
	"math"

	"github.com/roach88/fibdrv/internal/fib"
)

// Cursor is a session's current index. It starts at 0 and only moves
// through Seek.
type Cursor struct {
	pos int64
}

// Position returns the current index.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Seek moves the cursor and returns the new index.
//
// whence follows io.Seeker: io.SeekStart sets the index to offset,
// io.SeekCurrent adds offset to the current index, and io.SeekEnd counts
// offset backwards from fib.MaxIndex. The result is clamped to
// [0, fib.MaxIndex]; out-of-range requests are never rejected. An unknown
// whence lands on index 0.
func (c *Cursor) Seek(offset int64, whence int) int64 {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = saturatingAdd(c.pos, offset)
	case io.SeekEnd:
		target = saturatingSub(fib.MaxIndex, offset)
	}
	c.pos = fib.Clamp(target)
	return c.pos
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func saturatingSub(a, b int64) int64 {
	if b == math.MinInt64 {
		return math.MaxInt64
	}
	return saturatingAdd(a, -b)
}
