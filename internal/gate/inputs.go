package gate

import (
	"sync"
	"time"
)

// slot is a single-value latest-writer-wins cell. Inbound updates from any
// goroutine overwrite it; the controller tick reads a snapshot. There is no
// queueing and no backpressure.
type slot[T any] struct {
	mu    sync.Mutex
	val   T
	stamp time.Time
	set   bool
}

// Store overwrites the slot with a new value.
func (s *slot[T]) Store(v T, at time.Time) {
	s.mu.Lock()
	s.val = v
	s.stamp = at
	s.set = true
	s.mu.Unlock()
}

// Load returns the latest value, its arrival time, and whether any value
// has ever been stored.
func (s *slot[T]) Load() (T, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.stamp, s.set
}

// LoadOr returns the latest value or def when nothing has arrived yet.
func (s *slot[T]) LoadOr(def T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return def
	}
	return s.val
}

// inputs holds every cached upstream feed consumed by the controller tick.
type inputs struct {
	autoCmd slot[ControlCommand]
	extCmd  slot[ControlCommand]

	autoTurn   slot[TurnIndicatorCommand]
	extTurn    slot[TurnIndicatorCommand]
	autoHazard slot[HazardLightsCommand]
	extHazard  slot[HazardLightsCommand]
	autoGear   slot[GearCommand]
	extGear    slot[GearCommand]

	speed    slot[float64]
	steering slot[float64]
	accel    slot[float64]

	opMode      slot[OperationModeState]
	upstreamMrm slot[UpstreamMrmState]
	heartbeat   slot[time.Time]
}

// vehicleState assembles a VehicleState snapshot from the sensor slots,
// defaulting to zero speed so limit lookups fall back to their most
// restrictive low-speed entries when nothing has arrived.
func (in *inputs) vehicleState() VehicleState {
	var vs VehicleState
	vs.Speed, vs.SpeedStamp, _ = in.speed.Load()
	vs.SteeringAngle, vs.SteeringStamp, _ = in.steering.Load()
	vs.Acceleration, vs.AccelStamp, _ = in.accel.Load()
	return vs
}

// sourceCommands snapshots both sources' candidate command sets.
func (in *inputs) sourceCommands() SourceCommands {
	var src SourceCommands
	src.Auto, _, _ = in.autoCmd.Load()
	src.External, _, _ = in.extCmd.Load()
	src.AutoTurn, _, _ = in.autoTurn.Load()
	src.ExternalTurn, _, _ = in.extTurn.Load()
	src.AutoHazard, _, _ = in.autoHazard.Load()
	src.ExternalHazard, _, _ = in.extHazard.Load()
	src.AutoGear, _, _ = in.autoGear.Load()
	src.ExternalGear, _, _ = in.extGear.Load()
	return src
}
