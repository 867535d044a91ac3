package gate

import (
	"fmt"
	"math"
	"sort"
)

// LimitTable is a piecewise-linear interpolation of a scalar limit as a
// function of speed. Tables are immutable once built and safe for
// concurrent lookups.
type LimitTable struct {
	speeds []float64
	limits []float64
}

// NewLimitTable builds a table from parallel breakpoint/limit slices.
// At least two points are required and speeds must be strictly increasing.
func NewLimitTable(speeds, limits []float64) (*LimitTable, error) {
	if len(speeds) != len(limits) {
		return nil, fmt.Errorf("limit table: %d speed points but %d limits", len(speeds), len(limits))
	}
	if len(speeds) < 2 {
		return nil, fmt.Errorf("limit table: need at least 2 points, got %d", len(speeds))
	}
	for i := 1; i < len(speeds); i++ {
		if speeds[i] <= speeds[i-1] {
			return nil, fmt.Errorf("limit table: speed points must be strictly increasing (point %d: %v <= %v)",
				i, speeds[i], speeds[i-1])
		}
	}
	t := &LimitTable{
		speeds: make([]float64, len(speeds)),
		limits: make([]float64, len(limits)),
	}
	copy(t.speeds, speeds)
	copy(t.limits, limits)
	return t, nil
}

// MustLimitTable is NewLimitTable that panics on error, for tests and
// compiled-in defaults.
func MustLimitTable(speeds, limits []float64) *LimitTable {
	t, err := NewLimitTable(speeds, limits)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the linearly interpolated limit for |speed|. Outside the
// table's domain the nearest endpoint's limit is returned; there is no
// extrapolation past the sampled range.
func (t *LimitTable) Lookup(speed float64) float64 {
	v := math.Abs(speed)
	if v <= t.speeds[0] {
		return t.limits[0]
	}
	last := len(t.speeds) - 1
	if v >= t.speeds[last] {
		return t.limits[last]
	}
	// index of the first breakpoint >= v; v is strictly inside the domain
	// here so 1 <= i <= last.
	i := sort.SearchFloat64s(t.speeds, v)
	if t.speeds[i] == v {
		return t.limits[i]
	}
	s0, s1 := t.speeds[i-1], t.speeds[i]
	l0, l1 := t.limits[i-1], t.limits[i]
	frac := (v - s0) / (s1 - s0)
	return l0 + frac*(l1-l0)
}

// Max returns the largest limit in the table.
func (t *LimitTable) Max() float64 {
	m := t.limits[0]
	for _, l := range t.limits[1:] {
		if l > m {
			m = l
		}
	}
	return m
}

// MaxSpeed returns the largest speed breakpoint.
func (t *LimitTable) MaxSpeed() float64 { return t.speeds[len(t.speeds)-1] }

// Len returns the number of breakpoints.
func (t *LimitTable) Len() int { return len(t.speeds) }
