// Package control is the administrative surface over the statistics table.
//
// It never touches the device's session gate: any number of callers may
// show or reset statistics while a session is reading.
package control

import (
	"strconv"
	"strings"

	"github.com/roach88/fibdrv/internal/host"
	"github.com/roach88/fibdrv/internal/stats"
)

// Attribute names exposed in the control group.
const (
	AttrResult = "result"
	AttrReset  = "reset"
)

// ResetHint is what reading the reset attribute returns.
const ResetHint = "store 1 to trigger stat data reset\n"

// Plane exposes statistics to administrators.
type Plane struct {
	stats *stats.Table
	limit int
}

// New creates a control plane over table. limit bounds the rendered listing;
// <= 0 uses stats.DefaultRenderLimit.
func New(table *stats.Table, limit int) *Plane {
	if limit <= 0 {
		limit = stats.DefaultRenderLimit
	}
	return &Plane{stats: table, limit: limit}
}

// ShowStats renders the statistics listing.
func (p *Plane) ShowStats() string {
	return p.stats.Render(p.limit)
}

// ShowResetHint returns the fixed reset instructions.
func (p *Plane) ShowResetHint() string {
	return ResetHint
}

// TriggerReset zeroes every statistic if input parses as a base-10 integer.
// Any integer works, not only 1. Unparseable input is ignored. Either way the
// whole input is reported as consumed.
func (p *Plane) TriggerReset(input string) int {
	if _, ok := ParseInt(input); ok {
		p.stats.ResetAll()
	}
	return len(input)
}

// ParseInt parses input the way a kernel attribute store does: an optional
// sign, base-10 digits, and at most one trailing newline. The value must fit
// in 32 bits.
func ParseInt(input string) (int32, bool) {
	s := strings.TrimSuffix(input, "\n")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// Group returns the attribute group to register under name.
func (p *Plane) Group(name string) host.Group {
	return host.Group{
		Name: name,
		Attrs: []host.Attribute{
			{
				Name: AttrResult,
				Mode: 0o444,
				Show: p.ShowStats,
			},
			{
				Name:  AttrReset,
				Mode:  0o644,
				Show:  p.ShowResetHint,
				Store: p.TriggerReset,
			},
		},
	}
}
