package stats

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fibdrv/internal/fib"
)

func TestNew_AllZero(t *testing.T) {
	tbl := New()
	assert.Equal(t, fib.MaxIndex+1, tbl.Len())
	for k := 0; k <= fib.MaxIndex; k++ {
		e := tbl.Entry(k)
		assert.Equal(t, Entry{Index: k}, e)
	}
	assert.Empty(t, tbl.Snapshot())
	assert.Empty(t, tbl.Render(0))
}

func TestRecord_Accumulates(t *testing.T) {
	tbl := New()
	tbl.Record(10, 100*time.Nanosecond)
	tbl.Record(10, 250*time.Nanosecond)
	tbl.Record(10, 50*time.Nanosecond)

	e := tbl.Entry(10)
	assert.Equal(t, uint32(3), e.Count)
	assert.Equal(t, uint64(400), e.TotalNS)

	// Neighbours untouched
	assert.Zero(t, tbl.Entry(9).Count)
	assert.Zero(t, tbl.Entry(11).Count)
}

func TestRecord_IgnoresOutOfDomain(t *testing.T) {
	tbl := New()
	tbl.Record(-1, time.Second)
	tbl.Record(fib.MaxIndex+1, time.Second)
	assert.Empty(t, tbl.Snapshot())
}

func TestRecord_NegativeElapsedCountsAsZero(t *testing.T) {
	tbl := New()
	tbl.Record(3, -5*time.Nanosecond)
	e := tbl.Entry(3)
	assert.Equal(t, uint32(1), e.Count)
	assert.Zero(t, e.TotalNS)
}

func TestResetAll_ZeroesEverything(t *testing.T) {
	tbl := New()
	for k := 0; k <= fib.MaxIndex; k++ {
		tbl.Record(k, time.Duration(k+1))
	}
	require.Len(t, tbl.Snapshot(), fib.MaxIndex+1)

	tbl.ResetAll()

	for k := 0; k <= fib.MaxIndex; k++ {
		assert.Equal(t, Entry{Index: k}, tbl.Entry(k))
	}
	assert.Empty(t, tbl.Render(0))
}

func TestRender_AscendingSkipsZero(t *testing.T) {
	tbl := New()
	tbl.Record(42, 7)
	tbl.Record(3, 11)
	tbl.Record(3, 13)
	tbl.Record(0, 1)

	out := tbl.Render(0)
	assert.Equal(t, "0: 1 / 1\n3: 24 / 2\n42: 7 / 1\n", out)
}

func TestRender_Truncates(t *testing.T) {
	tbl := New()
	for k := 0; k <= fib.MaxIndex; k++ {
		tbl.Record(k, 123456789)
	}

	out := tbl.Render(64)
	require.True(t, strings.HasSuffix(out, TruncatedMarker), "listing should end with the marker")

	body := strings.TrimSuffix(out, TruncatedMarker)
	assert.Less(t, len(body), 64)
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	assert.Equal(t, "0: 123456789 / 1", lines[0])
	assert.Less(t, len(lines), fib.MaxIndex+1)

	// "7: 100 / 1\n" is 11 bytes
	one := []Entry{{Index: 7, TotalNS: 100, Count: 1}}
	t.Run("exact fit truncates", func(t *testing.T) {
		assert.Equal(t, TruncatedMarker, RenderEntries(one, 11))
	})
	t.Run("one byte spare", func(t *testing.T) {
		assert.Equal(t, "7: 100 / 1\n", RenderEntries(one, 12))
	})
	t.Run("second line hits limit", func(t *testing.T) {
		two := append(one, Entry{Index: 8, TotalNS: 100, Count: 1})
		assert.Equal(t, "7: 100 / 1\n"+TruncatedMarker, RenderEntries(two, 22))
		assert.Equal(t, "7: 100 / 1\n8: 100 / 1\n", RenderEntries(two, 23))
	})
}

func TestRender_DefaultLimitFitsFullTable(t *testing.T) {
	tbl := New()
	for k := 0; k <= fib.MaxIndex; k++ {
		tbl.Record(k, 1000)
	}
	out := tbl.Render(DefaultRenderLimit)
	assert.NotContains(t, out, TruncatedMarker)
	assert.Equal(t, fib.MaxIndex+1, strings.Count(out, "\n"))
}

func TestRender_Golden(t *testing.T) {
	tbl := New()
	tbl.Record(1, 120)
	tbl.Record(10, 300)
	tbl.Record(10, 300)
	tbl.Record(10, 300)
	tbl.Record(92, 9200)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render", []byte(tbl.Render(0)))
}

func TestTable_ConcurrentRecordAndReset(t *testing.T) {
	tbl := New()
	const writers = 8
	const perWriter = 1000

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tbl.Record((w*perWriter+i)%(fib.MaxIndex+1), time.Nanosecond)
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = tbl.Render(0)
			if i%10 == 0 {
				tbl.ResetAll()
			}
		}
	}()

	wg.Wait()

	// After the dust settles, counts are bounded by what was written.
	var total uint64
	for _, e := range tbl.Snapshot() {
		total += uint64(e.Count)
	}
	assert.LessOrEqual(t, total, uint64(writers*perWriter))
}
