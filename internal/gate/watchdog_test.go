package gate

import (
	"testing"
	"time"
)

func testWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		HeartbeatTimeout:   500 * time.Millisecond,
		StopTimeout:        30 * time.Second,
		StopSpeedThreshold: 0.1,
		StopDeceleration:   2.5,
	}
}

// healthyInputs is a snapshot that keeps the watchdog in the normal state.
func healthyInputs() WatchdogInputs {
	return WatchdogInputs{
		HeartbeatAge:  10 * time.Millisecond,
		OperationMode: OperationModeState{Mode: OperationModeAutonomous, ControlEnabled: true},
		Engaged:       true,
		VehicleSpeed:  8,
	}
}

func TestWatchdogStaysNormalWhenHealthy(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	_, override := w.Evaluate(now, healthyInputs())
	if override {
		t.Fatal("override active on healthy inputs")
	}
	if w.State() != MrmNormal {
		t.Errorf("state = %v, want normal", w.State())
	}
	if w.Behavior() != MrmBehaviorNone {
		t.Errorf("behavior = %v, want none", w.Behavior())
	}
	if w.Reason() != "" {
		t.Errorf("reason = %q, want empty", w.Reason())
	}
}

func TestWatchdogStaleHeartbeatEmergencyStop(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.HeartbeatAge = 600 * time.Millisecond
	in.VehicleSteering = 0.07

	cmd, override := w.Evaluate(now, in)
	if !override {
		t.Fatal("stale heartbeat did not trigger an override")
	}
	if w.State() != MrmOperating {
		t.Errorf("state = %v, want operating", w.State())
	}
	if w.Behavior() != MrmBehaviorEmergencyStop {
		t.Errorf("behavior = %v, want emergency_stop", w.Behavior())
	}

	// A lost safety channel means a bounded deceleration with steering
	// held at the last healthy measurement.
	if cmd.Speed != 0 {
		t.Errorf("override speed = %v, want 0", cmd.Speed)
	}
	if cmd.Acceleration != -2.5 {
		t.Errorf("override acceleration = %v, want -2.5", cmd.Acceleration)
	}
	if cmd.SteeringAngle != 0.07 {
		t.Errorf("override steering = %v, want held 0.07", cmd.SteeringAngle)
	}
}

func TestWatchdogUnauthorizedOperationComfortableStop(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.OperationMode = OperationModeState{Mode: OperationModeLocal, ControlEnabled: true}

	_, override := w.Evaluate(now, in)
	if !override {
		t.Fatal("unauthorized operation mode did not trigger an override")
	}
	if w.Behavior() != MrmBehaviorComfortableStop {
		t.Errorf("behavior = %v, want comfortable_stop", w.Behavior())
	}
}

func TestWatchdogUnauthorizedIgnoredWhenDisengaged(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// Operation mode only matters while the gate is live.
	in := healthyInputs()
	in.Engaged = false
	in.OperationMode = OperationModeState{Mode: OperationModeStop}

	if _, override := w.Evaluate(now, in); override {
		t.Error("disengaged gate tripped on operation mode")
	}
}

func TestWatchdogUpstreamBehaviorForwarded(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.Upstream = UpstreamMrmState{State: MrmOperating, Behavior: MrmBehaviorComfortableStop}

	if _, override := w.Evaluate(now, in); !override {
		t.Fatal("upstream mrm request did not trigger an override")
	}
	if w.Behavior() != MrmBehaviorComfortableStop {
		t.Errorf("behavior = %v, want upstream comfortable_stop", w.Behavior())
	}
}

func TestWatchdogOperatingToSucceeded(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.HeartbeatAge = time.Second
	w.Evaluate(now, in)

	// Still rolling: remains operating.
	in.VehicleSpeed = 0.5
	w.Evaluate(now.Add(time.Second), in)
	if w.State() != MrmOperating {
		t.Fatalf("state = %v, want operating while rolling", w.State())
	}

	// Below the stop threshold (reverse creep counts too).
	in.VehicleSpeed = -0.05
	_, override := w.Evaluate(now.Add(2*time.Second), in)
	if w.State() != MrmSucceeded {
		t.Errorf("state = %v, want succeeded", w.State())
	}
	if !override {
		t.Error("succeeded state dropped the override")
	}
}

func TestWatchdogOperatingToFailedOnTimeout(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.HeartbeatAge = time.Second
	w.Evaluate(now, in)

	// The vehicle never slows down within the stop timeout.
	_, override := w.Evaluate(now.Add(31*time.Second), in)
	if w.State() != MrmFailed {
		t.Errorf("state = %v, want failed", w.State())
	}
	if !override {
		t.Error("failed state dropped the override")
	}
}

func TestWatchdogTerminalUntilReset(t *testing.T) {
	w := NewWatchdog(testWatchdogConfig(), nil)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.HeartbeatAge = time.Second
	w.Evaluate(now, in)
	in.VehicleSpeed = 0
	w.Evaluate(now.Add(time.Second), in)
	if w.State() != MrmSucceeded {
		t.Fatalf("state = %v, want succeeded", w.State())
	}

	// The fault clears but the watchdog must not recover on its own.
	healthy := healthyInputs()
	for i := 0; i < 5; i++ {
		if _, override := w.Evaluate(now.Add(time.Duration(2+i)*time.Second), healthy); !override {
			t.Fatal("watchdog recovered without an explicit reset")
		}
	}
	if w.State() != MrmSucceeded {
		t.Errorf("state = %v, want succeeded held", w.State())
	}

	w.Reset(now.Add(10 * time.Second))
	if w.State() != MrmNormal {
		t.Errorf("state after reset = %v, want normal", w.State())
	}
	if w.Behavior() != MrmBehaviorNone || w.Reason() != "" {
		t.Errorf("reset left behavior %v reason %q", w.Behavior(), w.Reason())
	}
	if _, override := w.Evaluate(now.Add(11*time.Second), healthy); override {
		t.Error("override still active after reset on healthy inputs")
	}
}

func TestWatchdogTransitionCallback(t *testing.T) {
	type transit struct {
		from, to MrmState
		reason   string
	}
	var got []transit
	w := NewWatchdog(testWatchdogConfig(), func(from, to MrmState, reason string, at time.Time) {
		got = append(got, transit{from, to, reason})
	})
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	in := healthyInputs()
	in.HeartbeatAge = time.Second
	w.Evaluate(now, in)
	in.VehicleSpeed = 0
	w.Evaluate(now.Add(time.Second), in)
	w.Reset(now.Add(2 * time.Second))

	want := []transit{
		{MrmNormal, MrmOperating, "heartbeat stale"},
		{MrmOperating, MrmSucceeded, "vehicle stationary"},
		{MrmSucceeded, MrmNormal, "external reset"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d transitions, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMrmStateStrings(t *testing.T) {
	cases := map[MrmState]string{
		MrmNormal:    "normal",
		MrmOperating: "mrm_operating",
		MrmSucceeded: "mrm_succeeded",
		MrmFailed:    "mrm_failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
