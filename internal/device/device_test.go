package device

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fibdrv/internal/fib"
	"github.com/roach88/fibdrv/internal/stats"
	"github.com/roach88/fibdrv/internal/testutil"
)

func newTestDevice(t *testing.T) (*Device, *stats.Table, *testutil.StepClock) {
	t.Helper()
	tbl := stats.New()
	clock := testutil.NewStepClock(100 * time.Nanosecond)
	d := New(tbl,
		WithClock(clock),
		WithIDGenerator(testutil.NewSequentialIDGenerator("s")),
	)
	return d, tbl, clock
}

func TestOpen_StartsAtZero(t *testing.T) {
	d, _, _ := newTestDevice(t)

	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(0), s.Position())
	assert.Equal(t, "s-1", s.ID())
	assert.True(t, d.InUse())
}

func TestOpen_SecondOpenIsBusy(t *testing.T) {
	d, tbl, _ := newTestDevice(t)

	s, err := d.Open()
	require.NoError(t, err)
	_, err = s.Seek(7, io.SeekStart)
	require.NoError(t, err)

	other, err := d.Open()
	assert.Nil(t, other)
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, IsBusy(err))

	// Busy open mutates nothing
	assert.Equal(t, int64(7), s.Position())
	assert.Empty(t, tbl.Snapshot())

	require.NoError(t, s.Close())
	assert.False(t, d.InUse())

	again, err := d.Open()
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Position(), "fresh session starts at 0")
	require.NoError(t, again.Close())
}

func TestOpen_ConcurrentExactlyOneWins(t *testing.T) {
	d, _, _ := newTestDevice(t)
	const contenders = 50

	var wins, busy atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := d.Open()
			if err == nil {
				wins.Add(1)
				return
			}
			if errors.Is(err, ErrBusy) {
				busy.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(contenders-1), busy.Load())
}

func TestClose_Twice(t *testing.T) {
	d, _, _ := newTestDevice(t)

	s, err := d.Open()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	holder, err := d.Open()
	require.NoError(t, err)

	// A stale close must not free the device out from under the new holder
	assert.ErrorIs(t, s.Close(), ErrClosed)
	assert.True(t, d.InUse())

	require.NoError(t, holder.Close())
}

func TestClosedSession_RejectsOperations(t *testing.T) {
	d, tbl, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.ReadValue()
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Read(make([]byte, ValueSize))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Seek(1, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Empty(t, tbl.Snapshot())
}

func TestSeek_Clamping(t *testing.T) {
	tests := []struct {
		name   string
		start  int64
		offset int64
		whence int
		want   int64
	}{
		{"start negative", 0, -5, io.SeekStart, 0},
		{"start in range", 0, 10, io.SeekStart, 10},
		{"start past end", 0, 1000, io.SeekStart, fib.MaxIndex},
		{"end zero", 0, 0, io.SeekEnd, fib.MaxIndex},
		{"end back two", 0, 2, io.SeekEnd, 90},
		{"end negative", 0, -10, io.SeekEnd, fib.MaxIndex},
		{"end past start", 0, 200, io.SeekEnd, 0},
		{"current forward", 10, 5, io.SeekCurrent, 15},
		{"current backward", 10, -3, io.SeekCurrent, 7},
		{"current under", 10, -30, io.SeekCurrent, 0},
		{"current over", 90, 30, io.SeekCurrent, fib.MaxIndex},
		{"current huge", 90, math.MaxInt64, io.SeekCurrent, fib.MaxIndex},
		{"end min int", 0, math.MinInt64, io.SeekEnd, fib.MaxIndex},
		{"unknown whence", 10, 5, 42, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Cursor
			c.Seek(tt.start, io.SeekStart)
			assert.Equal(t, tt.want, c.Seek(tt.offset, tt.whence))
			assert.Equal(t, tt.want, c.Position())
		})
	}
}

func TestReadValue_DoesNotAdvance(t *testing.T) {
	d, _, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Seek(10, io.SeekStart)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, elapsed, err := s.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, int64(55), v)
		assert.Equal(t, 100*time.Nanosecond, elapsed)
		assert.Equal(t, int64(10), s.Position())
	}
}

func TestRead_RecordsStats(t *testing.T) {
	d, tbl, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Seek(10, io.SeekStart)
	require.NoError(t, err)

	var prev uint64
	for i := 1; i <= 3; i++ {
		_, _, err := s.ReadValue()
		require.NoError(t, err)
		e := tbl.Entry(10)
		assert.Equal(t, uint32(i), e.Count)
		assert.Greater(t, e.TotalNS, prev, "total time should strictly increase")
		prev = e.TotalNS
	}
	assert.Equal(t, uint64(300), prev)

	tbl.ResetAll()
	assert.Zero(t, tbl.Entry(10).Count)
}

func TestRead_SystemClockStrictlyIncreases(t *testing.T) {
	tbl := stats.New()
	d := New(tbl)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Seek(fib.MaxIndex, io.SeekStart)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := s.ReadValue()
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(3), tbl.Entry(fib.MaxIndex).Count)
}

func TestRead_EncodesValue(t *testing.T) {
	d, _, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Seek(0, io.SeekEnd)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, ValueSize, n)

	v, err := DecodeValue(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, fib.Compute(fib.MaxIndex), v)
}

func TestRead_ShortBuffer(t *testing.T) {
	d, tbl, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	assert.Empty(t, tbl.Snapshot(), "rejected read must not be recorded")
}

func TestWrite_NoOp(t *testing.T) {
	d, tbl, _ := newTestDevice(t)
	s, err := d.Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Seek(5, io.SeekStart)
	require.NoError(t, err)

	for _, in := range [][]byte{nil, []byte("x"), []byte("some longer input")} {
		n, err := s.Write(in)
		require.NoError(t, err)
		assert.Equal(t, WriteResult, n)
	}
	assert.Equal(t, int64(5), s.Position())
	assert.Empty(t, tbl.Snapshot())
}

func TestGate_Transitions(t *testing.T) {
	var g Gate
	assert.False(t, g.Held())
	assert.True(t, g.TryAcquire())
	assert.True(t, g.Held())
	assert.False(t, g.TryAcquire())
	assert.True(t, g.Release())
	assert.False(t, g.Release(), "releasing a free gate reports false")
	assert.True(t, g.TryAcquire())
}
