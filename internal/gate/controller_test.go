package gate

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/vehicle.gate/internal/timeutil"
)

func testControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval: 33 * time.Millisecond,
		Limits:       testLimits(),
		Watchdog:     testWatchdogConfig(),
	}
}

// collectEmitter records every emitted tick output.
type collectEmitter struct {
	outputs []TickOutput
}

func (e *collectEmitter) Emit(out TickOutput) { e.outputs = append(e.outputs, out) }

func newTestController(t *testing.T, clock *timeutil.MockClock) (*Controller, *collectEmitter) {
	t.Helper()
	emitter := &collectEmitter{}
	c, err := NewController(testControllerConfig(), clock, emitter, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, emitter
}

func TestControllerRejectsInvalidLimits(t *testing.T) {
	cfg := testControllerConfig()
	cfg.Limits.LonAcc = nil
	if _, err := NewController(cfg, timeutil.NewMockClock(time.Now()), nil, nil); err == nil {
		t.Fatal("NewController accepted missing limit table")
	}
}

func TestControllerEmitsOncePerTick(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, emitter := newTestController(t, clock)

	for i := 1; i <= 5; i++ {
		now := start.Add(time.Duration(i) * 33 * time.Millisecond)
		clock.Set(now)
		c.tick(now)
	}

	if len(emitter.outputs) != 5 {
		t.Fatalf("emitted %d outputs for 5 ticks, want 5", len(emitter.outputs))
	}
	for i, out := range emitter.outputs {
		if out.Tick != uint64(i+1) {
			t.Errorf("output %d has tick %d, want %d", i, out.Tick, i+1)
		}
	}
}

func TestControllerDisengagedDefault(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, emitter := newTestController(t, clock)

	c.UpdateSteering(0.06, start)
	c.UpdateOdometry(4.0, start)
	c.UpdateAutoCommand(ControlCommand{SteeringAngle: 0.3, Speed: 10, Acceleration: 1.0})

	now := start.Add(33 * time.Millisecond)
	clock.Set(now)
	out := c.tick(now)

	if out.Engaged {
		t.Fatal("controller engaged by default")
	}
	if out.Raw.Speed != 0 || out.Raw.Acceleration != 0 {
		t.Errorf("disengaged raw command = %+v, want zero speed/accel", out.Raw)
	}
	if out.Raw.SteeringAngle != 0.06 {
		t.Errorf("disengaged steering = %v, want measured 0.06", out.Raw.SteeringAngle)
	}
	if out.Turn != TurnIndicatorNone || out.Hazard != HazardLightsOff {
		t.Errorf("disengaged aux = %v/%v, want none/off", out.Turn, out.Hazard)
	}
	if len(emitter.outputs) != 1 {
		t.Fatalf("emitted %d outputs, want 1", len(emitter.outputs))
	}
}

func TestControllerSeedsFilterOnEngage(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.UpdateSteering(0.05, start)
	c.UpdateOdometry(10.0, start)
	c.UpdateAutoCommand(ControlCommand{SteeringAngle: 0.05, Speed: 10, Acceleration: 2.0})

	// One disengaged tick first so the engage below is an edge.
	now := start.Add(33 * time.Millisecond)
	clock.Set(now)
	c.tick(now)

	c.SetEngaged(true)
	now = now.Add(33 * time.Millisecond)
	clock.Set(now)
	out := c.tick(now)

	// The filter was seeded from the measured state at this tick's time,
	// so dt is zero and only the magnitude clamps apply: the requested
	// 2.0 m/s² comes back at the 1.0 limit for 10 m/s, not at a jerk step
	// away from zero.
	if out.Control.Acceleration != 1.0 {
		t.Errorf("first engaged acceleration = %v, want 1.0", out.Control.Acceleration)
	}

	// The next tick rate-limits against that emission.
	now = now.Add(33 * time.Millisecond)
	clock.Set(now)
	out = c.tick(now)
	want := 1.0 // already at the magnitude limit, jerk bound allows no more
	if out.Control.Acceleration != want {
		t.Errorf("second engaged acceleration = %v, want %v", out.Control.Acceleration, want)
	}
}

func TestControllerModeSelectsSource(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.UpdateOdometry(3.0, start)
	c.UpdateAutoCommand(ControlCommand{Speed: 5})
	c.UpdateExternalCommand(ControlCommand{Speed: 2})
	c.SetEngaged(true)

	now := start.Add(33 * time.Millisecond)
	clock.Set(now)
	if out := c.tick(now); out.Raw.Speed != 5 {
		t.Errorf("auto mode raw speed = %v, want 5", out.Raw.Speed)
	}

	c.SetMode(ModeExternal)
	now = now.Add(33 * time.Millisecond)
	clock.Set(now)
	if out := c.tick(now); out.Raw.Speed != 2 {
		t.Errorf("external mode raw speed = %v, want 2", out.Raw.Speed)
	}
}

func TestControllerHeartbeatTimeoutTripsWatchdog(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.UpdateOdometry(6.0, start)
	c.UpdateSteering(0.02, start)
	c.SetEngaged(true)

	// Process start counts as a heartbeat, so within the timeout the
	// watchdog stays quiet even though no monitor has reported yet.
	now := start.Add(100 * time.Millisecond)
	clock.Set(now)
	out := c.tick(now)
	if out.Override {
		t.Fatal("override active within the heartbeat grace period")
	}

	// A fresh heartbeat keeps it quiet past the original boot deadline.
	c.HeartbeatSeen(now)
	now = start.Add(550 * time.Millisecond)
	clock.Set(now)
	out = c.tick(now)
	if out.Override {
		t.Fatal("override active with a recent heartbeat")
	}

	// Letting the heartbeat go stale trips the emergency stop.
	now = now.Add(600 * time.Millisecond)
	clock.Set(now)
	out = c.tick(now)
	if !out.Override {
		t.Fatal("stale heartbeat did not trip the watchdog")
	}
	if out.Watchdog != MrmOperating {
		t.Errorf("watchdog state = %v, want operating", out.Watchdog)
	}
	if out.Hazard != HazardLightsOn {
		t.Errorf("hazard during override = %v, want on", out.Hazard)
	}
	if out.Raw.Acceleration != -2.5 {
		t.Errorf("override raw acceleration = %v, want -2.5", out.Raw.Acceleration)
	}
}

func TestControllerOverrideIsFiltered(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.UpdateOdometry(10.0, start)
	c.SetEngaged(true)

	// Prime the filter with a steady-state tick.
	now := start.Add(33 * time.Millisecond)
	clock.Set(now)
	c.tick(now)

	// Trip the watchdog; the -2.5 stop request must still come out
	// jerk-bounded, stepping down from the previous emission.
	now = start.Add(600 * time.Millisecond)
	clock.Set(now)
	out := c.tick(now)
	if !out.Override {
		t.Fatal("watchdog did not trip")
	}
	if out.Control.Acceleration <= -2.5 {
		t.Errorf("override emitted unfiltered: %v", out.Control.Acceleration)
	}
	if out.Control.Acceleration >= 0 {
		t.Errorf("override not decelerating: %v", out.Control.Acceleration)
	}
}

func TestControllerResetWatchdog(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.UpdateOdometry(6.0, start)
	now := start.Add(600 * time.Millisecond)
	clock.Set(now)
	c.tick(now)
	if c.Status().Watchdog != MrmOperating {
		t.Fatalf("watchdog = %v, want operating", c.Status().Watchdog)
	}

	c.HeartbeatSeen(now)
	c.ResetWatchdog()
	now = now.Add(33 * time.Millisecond)
	clock.Set(now)
	out := c.tick(now)
	if out.Override {
		t.Error("override still active after reset with fresh heartbeat")
	}
	if out.Watchdog != MrmNormal {
		t.Errorf("watchdog after reset = %v, want normal", out.Watchdog)
	}
}

func TestControllerDeadlineMissCounted(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, emitter := newTestController(t, clock)

	// The tick's trigger time is well in the past relative to the clock,
	// as after a long stall. The emission still happens.
	c.tick(start.Add(-100 * time.Millisecond))

	st := c.Status()
	if st.DeadlineMisses != 1 {
		t.Errorf("deadline misses = %d, want 1", st.DeadlineMisses)
	}
	if len(emitter.outputs) != 1 {
		t.Errorf("missed-deadline tick emitted %d outputs, want 1", len(emitter.outputs))
	}
}

func TestControllerStatus(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	c, _ := newTestController(t, clock)

	c.SetEngaged(true)
	c.SetMode(ModeExternal)
	c.UpdateOdometry(2.0, start)
	now := start.Add(33 * time.Millisecond)
	clock.Set(now)
	c.tick(now)

	st := c.Status()
	if st.Mode != ModeExternal || !st.Engaged {
		t.Errorf("status mode/engaged = %v/%v, want external/true", st.Mode, st.Engaged)
	}
	if st.TickCount != 1 {
		t.Errorf("status tick count = %d, want 1", st.TickCount)
	}
	if st.Watchdog != MrmNormal || st.Behavior != MrmBehaviorNone {
		t.Errorf("status watchdog = %v/%v, want normal/none", st.Watchdog, st.Behavior)
	}
	if st.HeartbeatAge != 33*time.Millisecond {
		t.Errorf("status heartbeat age = %v, want 33ms", st.HeartbeatAge)
	}
	if st.LastOutput.Tick != 1 {
		t.Errorf("status last output tick = %d, want 1", st.LastOutput.Tick)
	}
}

func TestControllerRunDrivenByClock(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)

	outputs := make(chan TickOutput, 16)
	c, err := NewController(testControllerConfig(), clock, EmitterFunc(func(out TickOutput) {
		outputs <- out
	}), nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Keep advancing until three ticks have been emitted; Run registers
	// its ticker asynchronously so the first advances may land early.
	timeout := time.After(2 * time.Second)
	received := 0
	for received < 3 {
		clock.Advance(33 * time.Millisecond)
		select {
		case <-outputs:
			received++
		case <-timeout:
			t.Fatalf("only %d ticks emitted", received)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
