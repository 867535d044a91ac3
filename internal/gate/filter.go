package gate

import (
	"fmt"
	"math"
	"time"
)

// Below this speed the lateral-acceleration model v²·tan(δ)/L is too close
// to singular to invert, so the filter bounds the steering angle directly.
const latModelMinSpeed = 0.5 // m/s

// FilterLimits holds the five speed-dependent limit tables and the vehicle
// wheelbase used by the rate-limiting filter.
type FilterLimits struct {
	LonAcc    *LimitTable
	LonJerk   *LimitTable
	LatAcc    *LimitTable
	LatJerk   *LimitTable
	SteerDiff *LimitTable
	Wheelbase float64 // m
}

// Validate checks that every table is present and the wheelbase is sane.
func (l FilterLimits) Validate() error {
	for name, t := range map[string]*LimitTable{
		"lon_acc":           l.LonAcc,
		"lon_jerk":          l.LonJerk,
		"lat_acc":           l.LatAcc,
		"lat_jerk":          l.LatJerk,
		"actual_steer_diff": l.SteerDiff,
	} {
		if t == nil {
			return fmt.Errorf("filter limits: missing %s table", name)
		}
	}
	if l.Wheelbase <= 0 {
		return fmt.Errorf("filter limits: wheelbase must be positive, got %v", l.Wheelbase)
	}
	return nil
}

// RateLimitFilter bounds the rate of change and magnitude of the emitted
// command stream so no single tick can command a physically unsafe
// acceleration, jerk, or steering change, independent of what was
// requested. It holds the previous emitted command; it is owned by the
// controller tick and must not be shared across goroutines.
type RateLimitFilter struct {
	limits FilterLimits

	prev     ControlCommand
	prevTime time.Time
	primed   bool
}

// NewRateLimitFilter builds a filter over the given limits. The limits must
// already be validated.
func NewRateLimitFilter(limits FilterLimits) *RateLimitFilter {
	return &RateLimitFilter{limits: limits}
}

// Prev returns the previous emitted command and whether one exists.
func (f *RateLimitFilter) Prev() (ControlCommand, bool) {
	return f.prev, f.primed
}

// Seed installs an initial "previous output", typically derived from the
// measured vehicle state at engage time, so the first engaged tick is
// rate-limited against reality rather than zero.
func (f *RateLimitFilter) Seed(cmd ControlCommand, at time.Time) {
	f.prev = cmd
	f.prevTime = at
	f.primed = true
}

// Reset discards the filter state. The next Apply behaves as a first tick.
func (f *RateLimitFilter) Reset() {
	f.prev = ControlCommand{}
	f.prevTime = time.Time{}
	f.primed = false
}

// Apply clamps cmd against the limit tables at the current speed and
// against the previous emitted command, stores the result as the new
// previous output, and returns it. On the first tick, or when the elapsed
// time is non-positive (clock anomaly), only magnitude clamps are applied
// and no jerk terms are computed.
func (f *RateLimitFilter) Apply(cmd ControlCommand, speed float64, now time.Time) ControlCommand {
	v := math.Abs(speed)
	out := cmd

	// Absolute longitudinal clamp.
	lonAccLim := f.limits.LonAcc.Lookup(v)
	out.Acceleration = clamp(out.Acceleration, -lonAccLim, lonAccLim)

	// Absolute lateral clamp. Near standstill the lateral acceleration is
	// negligible regardless of steering, so the magnitude clamp is skipped
	// and only the rate bound below applies.
	latAccLim := f.limits.LatAcc.Lookup(v)
	if v >= latModelMinSpeed {
		latAcc := lateralAccel(v, out.SteeringAngle, f.limits.Wheelbase)
		bounded := clamp(latAcc, -latAccLim, latAccLim)
		if bounded != latAcc {
			out.SteeringAngle = steeringForLateralAccel(v, bounded, f.limits.Wheelbase)
		}
	}

	dt := now.Sub(f.prevTime).Seconds()
	if !f.primed || dt <= 0 {
		f.prev = out
		f.prevTime = now
		f.primed = true
		return out
	}

	p := f.prev

	// Longitudinal jerk bound, dominating the raw clamp when tighter.
	lonJerkLim := f.limits.LonJerk.Lookup(v)
	out.Acceleration = clamp(out.Acceleration,
		p.Acceleration-lonJerkLim*dt,
		p.Acceleration+lonJerkLim*dt)

	// Lateral jerk bound via the bicycle-model lateral acceleration,
	// inverted back to a steering angle. Below the model cutoff the raw
	// steering value is bounded directly by the steering-rate limit only.
	if v >= latModelMinSpeed {
		latJerkLim := f.limits.LatJerk.Lookup(v)
		latAcc := lateralAccel(v, out.SteeringAngle, f.limits.Wheelbase)
		prevLatAcc := lateralAccel(v, p.SteeringAngle, f.limits.Wheelbase)
		bounded := clamp(latAcc,
			prevLatAcc-latJerkLim*dt,
			prevLatAcc+latJerkLim*dt)
		bounded = clamp(bounded, -latAccLim, latAccLim)
		if bounded != latAcc {
			out.SteeringAngle = steeringForLateralAccel(v, bounded, f.limits.Wheelbase)
		}
	}

	// Steering-rate bound, independent of the lateral dynamics above.
	rateLim := f.limits.SteerDiff.Lookup(v)
	out.SteeringAngle = clamp(out.SteeringAngle,
		p.SteeringAngle-rateLim*dt,
		p.SteeringAngle+rateLim*dt)
	out.SteeringRate = clamp(out.SteeringRate, -rateLim, rateLim)

	f.prev = out
	f.prevTime = now
	return out
}

// lateralAccel is the kinematic bicycle-model lateral acceleration for a
// given speed and steering angle.
func lateralAccel(v, steering, wheelbase float64) float64 {
	return v * v * math.Tan(steering) / wheelbase
}

// steeringForLateralAccel inverts lateralAccel. Callers must keep v away
// from zero; see latModelMinSpeed.
func steeringForLateralAccel(v, latAcc, wheelbase float64) float64 {
	return math.Atan(latAcc * wheelbase / (v * v))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
