package gate

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/vehicle.gate/internal/monitoring"
	"github.com/banshee-data/vehicle.gate/internal/timeutil"
)

// TickOutput is everything one control tick produced. Exactly one is
// emitted per tick.
type TickOutput struct {
	Tick     uint64         `json:"tick"`
	Stamp    time.Time      `json:"stamp"`
	Raw      ControlCommand `json:"raw"`
	Control  ControlCommand `json:"control"`
	Turn     TurnIndicator  `json:"turn_indicator"`
	Hazard   HazardLights   `json:"hazard_lights"`
	Gear     Gear           `json:"gear"`
	Mode     GateMode       `json:"mode"`
	Engaged  bool           `json:"engaged"`
	Override bool           `json:"override"`
	Watchdog MrmState       `json:"watchdog"`
	Speed    float64        `json:"speed"`
}

// Emitter receives the tick output. Implementations must not block; the
// tick runs synchronously against the control deadline.
type Emitter interface {
	Emit(TickOutput)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(TickOutput)

func (f EmitterFunc) Emit(out TickOutput) { f(out) }

// MultiEmitter fans one tick output out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(out TickOutput) {
	for _, e := range m {
		e.Emit(out)
	}
}

// ControllerConfig is the controller's static configuration.
type ControllerConfig struct {
	TickInterval time.Duration
	Limits       FilterLimits
	Watchdog     WatchdogConfig
}

// GateStatus is the controller's externally reported state.
type GateStatus struct {
	Mode           GateMode      `json:"mode"`
	Engaged        bool          `json:"engaged"`
	Watchdog       MrmState      `json:"watchdog"`
	Behavior       MrmBehavior   `json:"behavior"`
	WatchdogReason string        `json:"watchdog_reason,omitempty"`
	HeartbeatAge   time.Duration `json:"heartbeat_age"`
	TickCount      uint64        `json:"tick_count"`
	DeadlineMisses uint64        `json:"deadline_misses"`
	LastOutput     TickOutput    `json:"last_output"`
}

// Controller drives the gate: one tick per trigger, reading the cached
// input snapshot, consulting the watchdog, arbitrating, filtering, and
// emitting exactly one command set. Ticks never run concurrently and never
// block on I/O.
type Controller struct {
	cfg      ControllerConfig
	clock    timeutil.Clock
	emitter  Emitter
	filter   *RateLimitFilter
	watchdog *Watchdog
	in       inputs

	// Control-plane flags, written by the API and read by the tick.
	flagMu  sync.Mutex
	mode    GateMode
	engaged bool

	// Tick-owned state, only touched from the tick goroutine.
	heldGear    Gear
	lastEngaged bool

	statusMu       sync.Mutex
	tickCount      uint64
	deadlineMisses uint64
	lastOutput     TickOutput

	onTransition TransitionFunc
}

// NewController builds a controller. The clock abstraction exists so tests
// can drive ticks deterministically. onTransition may be nil; it is invoked
// on watchdog state changes in addition to the controller's own logging.
func NewController(cfg ControllerConfig, clock timeutil.Clock, emitter Emitter, onTransition TransitionFunc) (*Controller, error) {
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:      cfg,
		clock:    clock,
		emitter:  emitter,
		filter:   NewRateLimitFilter(cfg.Limits),
		heldGear: GearPark,
	}
	c.onTransition = onTransition
	c.watchdog = NewWatchdog(cfg.Watchdog, func(from, to MrmState, reason string, at time.Time) {
		monitoring.Logf("watchdog: %s -> %s (%s)", from, to, reason)
		if c.onTransition != nil {
			c.onTransition(from, to, reason, at)
		}
	})
	// Until the first heartbeat arrives the process start counts as one,
	// so a monitor that never comes up trips the watchdog exactly one
	// timeout after boot instead of immediately.
	start := clock.Now()
	c.in.heartbeat.Store(start, start)
	return c, nil
}

// Run drives the tick loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			c.tick(now)
		}
	}
}

// tick executes one control cycle. It is only ever called from the Run
// goroutine (or directly by tests); no two ticks execute concurrently.
func (c *Controller) tick(now time.Time) TickOutput {
	state := c.in.vehicleState()
	src := c.in.sourceCommands()
	hb, _, _ := c.in.heartbeat.Load()

	c.flagMu.Lock()
	mode, engaged := c.mode, c.engaged
	c.flagMu.Unlock()

	// Seed the filter from the measured vehicle state on the
	// disengaged->engaged edge so the first engaged tick rate-limits
	// against reality.
	if engaged && !c.lastEngaged {
		c.filter.Seed(ControlCommand{
			Stamp:         now,
			SteeringAngle: state.SteeringAngle,
			Speed:         state.Speed,
			Acceleration:  state.Acceleration,
		}, now)
	}
	c.lastEngaged = engaged

	override, hasOverride := c.watchdog.Evaluate(now, WatchdogInputs{
		HeartbeatAge:    now.Sub(hb),
		OperationMode:   c.in.opMode.LoadOr(OperationModeState{Mode: OperationModeAutonomous, ControlEnabled: true}),
		Upstream:        c.in.upstreamMrm.LoadOr(UpstreamMrmState{}),
		Engaged:         engaged,
		VehicleSpeed:    state.Speed,
		VehicleSteering: state.SteeringAngle,
	})

	var raw ControlCommand
	if hasOverride {
		raw = override
	} else {
		raw = SelectCommand(mode, engaged, src, state, now)
	}

	// The override is filtered like any other command; the fail-safe stop
	// must not itself violate the jerk bounds.
	out := TickOutput{
		Stamp:    now,
		Raw:      raw,
		Control:  c.filter.Apply(raw, state.Speed, now),
		Mode:     mode,
		Engaged:  engaged,
		Override: hasOverride,
		Watchdog: c.watchdog.State(),
		Speed:    state.Speed,
	}

	if hasOverride {
		out.Turn = TurnIndicatorNone
		out.Hazard = HazardLightsOn
		out.Gear = c.heldGear
	} else {
		out.Turn = SelectTurnIndicator(mode, engaged, src)
		out.Hazard = SelectHazardLights(mode, engaged, src)
		out.Gear = SelectGear(mode, engaged, src, c.heldGear)
	}
	c.heldGear = out.Gear

	c.statusMu.Lock()
	c.tickCount++
	out.Tick = c.tickCount
	c.lastOutput = out
	c.statusMu.Unlock()

	if c.emitter != nil {
		c.emitter.Emit(out)
	}

	// A tick that overruns its interval is a deadline miss to be logged,
	// never a skipped emission.
	if elapsed := c.clock.Since(now); elapsed > c.cfg.TickInterval {
		c.statusMu.Lock()
		c.deadlineMisses++
		c.statusMu.Unlock()
		monitoring.Logf("gate: tick %d missed deadline (%v > %v)", out.Tick, elapsed, c.cfg.TickInterval)
	}
	return out
}

// Status reports the gate's operation/engagement state for upstream
// observability.
func (c *Controller) Status() GateStatus {
	c.flagMu.Lock()
	mode, engaged := c.mode, c.engaged
	c.flagMu.Unlock()

	hb, _, _ := c.in.heartbeat.Load()

	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return GateStatus{
		Mode:           mode,
		Engaged:        engaged,
		Watchdog:       c.watchdog.State(),
		Behavior:       c.watchdog.Behavior(),
		WatchdogReason: c.watchdog.Reason(),
		HeartbeatAge:   c.clock.Since(hb),
		TickCount:      c.tickCount,
		DeadlineMisses: c.deadlineMisses,
		LastOutput:     c.lastOutput,
	}
}

// SetEngaged flips the engagement flag.
func (c *Controller) SetEngaged(engaged bool) {
	c.flagMu.Lock()
	c.engaged = engaged
	c.flagMu.Unlock()
	monitoring.Logf("gate: engage = %v", engaged)
}

// SetMode selects the live command source.
func (c *Controller) SetMode(mode GateMode) {
	c.flagMu.Lock()
	c.mode = mode
	c.flagMu.Unlock()
	monitoring.Logf("gate: mode = %s", mode)
}

// ResetWatchdog is the explicit external reset required to leave any MRM
// state; the watchdog never recovers silently.
func (c *Controller) ResetWatchdog() {
	c.watchdog.Reset(c.clock.Now())
}

// UpdateAutoCommand caches the latest autonomous-stack control command.
func (c *Controller) UpdateAutoCommand(cmd ControlCommand) {
	c.in.autoCmd.Store(cmd, c.clock.Now())
}

// UpdateExternalCommand caches the latest external/manual control command.
func (c *Controller) UpdateExternalCommand(cmd ControlCommand) {
	c.in.extCmd.Store(cmd, c.clock.Now())
}

// UpdateTurnIndicator caches a turn indicator candidate for one source.
func (c *Controller) UpdateTurnIndicator(mode GateMode, cmd TurnIndicatorCommand) {
	if mode == ModeExternal {
		c.in.extTurn.Store(cmd, c.clock.Now())
		return
	}
	c.in.autoTurn.Store(cmd, c.clock.Now())
}

// UpdateHazardLights caches a hazard light candidate for one source.
func (c *Controller) UpdateHazardLights(mode GateMode, cmd HazardLightsCommand) {
	if mode == ModeExternal {
		c.in.extHazard.Store(cmd, c.clock.Now())
		return
	}
	c.in.autoHazard.Store(cmd, c.clock.Now())
}

// UpdateGear caches a gear candidate for one source.
func (c *Controller) UpdateGear(mode GateMode, cmd GearCommand) {
	if mode == ModeExternal {
		c.in.extGear.Store(cmd, c.clock.Now())
		return
	}
	c.in.autoGear.Store(cmd, c.clock.Now())
}

// UpdateOdometry caches the measured longitudinal speed.
func (c *Controller) UpdateOdometry(speed float64, stamp time.Time) {
	c.in.speed.Store(speed, stamp)
}

// UpdateSteering caches the measured steering angle.
func (c *Controller) UpdateSteering(angle float64, stamp time.Time) {
	c.in.steering.Store(angle, stamp)
}

// UpdateAcceleration caches the measured longitudinal acceleration.
func (c *Controller) UpdateAcceleration(accel float64, stamp time.Time) {
	c.in.accel.Store(accel, stamp)
}

// UpdateOperationMode caches the upstream operation mode state.
func (c *Controller) UpdateOperationMode(s OperationModeState) {
	c.in.opMode.Store(s, c.clock.Now())
}

// UpdateUpstreamMrm caches the upstream MRM signal.
func (c *Controller) UpdateUpstreamMrm(s UpstreamMrmState) {
	c.in.upstreamMrm.Store(s, c.clock.Now())
}

// HeartbeatSeen records a heartbeat from the external emergency-stop
// monitor.
func (c *Controller) HeartbeatSeen(at time.Time) {
	c.in.heartbeat.Store(at, at)
}
