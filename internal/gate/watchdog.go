package gate

import (
	"sync"
	"time"
)

// MrmState is the watchdog's minimal-risk-maneuver state.
type MrmState int

const (
	MrmNormal MrmState = iota
	MrmOperating
	MrmSucceeded
	MrmFailed
)

func (s MrmState) String() string {
	switch s {
	case MrmOperating:
		return "mrm_operating"
	case MrmSucceeded:
		return "mrm_succeeded"
	case MrmFailed:
		return "mrm_failed"
	default:
		return "normal"
	}
}

// MrmBehavior is the maneuver requested while the watchdog is operating.
type MrmBehavior int

const (
	MrmBehaviorNone MrmBehavior = iota
	MrmBehaviorComfortableStop
	MrmBehaviorEmergencyStop
)

func (b MrmBehavior) String() string {
	switch b {
	case MrmBehaviorComfortableStop:
		return "comfortable_stop"
	case MrmBehaviorEmergencyStop:
		return "emergency_stop"
	default:
		return "none"
	}
}

// UpstreamMrmState is the MRM signal reported by the upstream system.
type UpstreamMrmState struct {
	Stamp    time.Time   `json:"stamp"`
	State    MrmState    `json:"state"`
	Behavior MrmBehavior `json:"behavior"`
}

// WatchdogConfig is the watchdog's stop policy. The resolution of an MRM
// (time bound, stationary threshold) is deliberately configuration, not a
// hardcoded constant.
type WatchdogConfig struct {
	// HeartbeatTimeout is the maximum heartbeat age before the external
	// safety channel is considered lost.
	HeartbeatTimeout time.Duration
	// StopTimeout bounds how long an MRM stop may take before the
	// watchdog declares failure.
	StopTimeout time.Duration
	// StopSpeedThreshold is the speed below which the vehicle counts as
	// stationary.
	StopSpeedThreshold float64
	// StopDeceleration is the magnitude of the deceleration commanded
	// while the override is active. The rate-limit filter still bounds
	// the resulting jerk.
	StopDeceleration float64
}

// WatchdogInputs is the per-tick snapshot the watchdog evaluates.
type WatchdogInputs struct {
	HeartbeatAge    time.Duration
	OperationMode   OperationModeState
	Upstream        UpstreamMrmState
	Engaged         bool
	VehicleSpeed    float64
	VehicleSteering float64
}

// TransitionFunc is notified on every watchdog state change.
type TransitionFunc func(from, to MrmState, reason string, at time.Time)

// Watchdog tracks heartbeat freshness and the operation-mode/MRM signals
// and decides per tick whether the arbitrated command must be overridden
// with a fail-safe stop. State persists across ticks; only Reset returns
// it to normal.
type Watchdog struct {
	cfg WatchdogConfig

	// mu guards the state below; Evaluate runs on the tick goroutine while
	// Reset and the accessors are called from the API.
	mu        sync.Mutex
	state     MrmState
	behavior  MrmBehavior
	enteredAt time.Time
	reason    string
	onTransit TransitionFunc
	lastSteer float64
}

// NewWatchdog builds a watchdog with the given stop policy. onTransition
// may be nil.
func NewWatchdog(cfg WatchdogConfig, onTransition TransitionFunc) *Watchdog {
	return &Watchdog{cfg: cfg, state: MrmNormal, onTransit: onTransition}
}

// State returns the current MRM state.
func (w *Watchdog) State() MrmState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Behavior returns the active maneuver, MrmBehaviorNone when normal.
func (w *Watchdog) Behavior() MrmBehavior {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.behavior
}

// Reason returns why the watchdog left the normal state, empty when normal.
func (w *Watchdog) Reason() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reason
}

// Reset returns the watchdog to normal. This is the only path out of the
// terminal states and must be an explicit external action.
func (w *Watchdog) Reset(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transition(MrmNormal, "external reset", now)
	w.behavior = MrmBehaviorNone
	w.reason = ""
}

// Evaluate advances the state machine against the tick snapshot and
// returns the override command if one is active. The override is a bounded
// deceleration with steering held; it is still passed through the
// rate-limit filter by the controller so it cannot violate jerk bounds.
func (w *Watchdog) Evaluate(now time.Time, in WatchdogInputs) (ControlCommand, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Track the last steering value seen while healthy so the override
	// holds a sensible angle.
	if w.state == MrmNormal {
		w.lastSteer = in.VehicleSteering
	}

	switch w.state {
	case MrmNormal:
		if in.HeartbeatAge > w.cfg.HeartbeatTimeout {
			w.behavior = MrmBehaviorEmergencyStop
			w.transition(MrmOperating, "heartbeat stale", now)
		} else if in.Engaged && !operationAuthorized(in.OperationMode) {
			w.behavior = MrmBehaviorComfortableStop
			w.transition(MrmOperating, "operation mode not authorized", now)
		} else if in.Upstream.Behavior != MrmBehaviorNone {
			w.behavior = in.Upstream.Behavior
			w.transition(MrmOperating, "upstream mrm requested", now)
		}

	case MrmOperating:
		if in.VehicleSpeed < w.cfg.StopSpeedThreshold && in.VehicleSpeed > -w.cfg.StopSpeedThreshold {
			w.transition(MrmSucceeded, "vehicle stationary", now)
		} else if now.Sub(w.enteredAt) > w.cfg.StopTimeout {
			w.transition(MrmFailed, "stop not achieved within time bound", now)
		}

	case MrmSucceeded, MrmFailed:
		// Terminal until externally reset.
	}

	if w.state == MrmNormal {
		return ControlCommand{}, false
	}
	return w.overrideCommand(now), true
}

func (w *Watchdog) overrideCommand(now time.Time) ControlCommand {
	return ControlCommand{
		Stamp:         now,
		SteeringAngle: w.lastSteer,
		Speed:         0,
		Acceleration:  -w.cfg.StopDeceleration,
	}
}

func (w *Watchdog) transition(to MrmState, reason string, at time.Time) {
	if w.state == to {
		return
	}
	from := w.state
	w.state = to
	w.enteredAt = at
	w.reason = reason
	if w.onTransit != nil {
		w.onTransit(from, to, reason, at)
	}
}

// operationAuthorized reports whether the upstream operation mode permits
// the gate to keep forwarding commands while engaged.
func operationAuthorized(s OperationModeState) bool {
	return s.Mode == OperationModeAutonomous && s.ControlEnabled
}
