package gate

import "time"

// SourceCommands is the latest candidate command set from both sources,
// snapshotted by the controller at the top of a tick.
type SourceCommands struct {
	Auto     ControlCommand
	External ControlCommand

	AutoTurn     TurnIndicatorCommand
	ExternalTurn TurnIndicatorCommand

	AutoHazard     HazardLightsCommand
	ExternalHazard HazardLightsCommand

	AutoGear     GearCommand
	ExternalGear GearCommand
}

// DisengagedCommand is the defined safe-default command emitted whenever
// the gate is disengaged: hold the measured steering, command zero speed
// and zero acceleration.
func DisengagedCommand(state VehicleState, now time.Time) ControlCommand {
	return ControlCommand{
		Stamp:         now,
		SteeringAngle: state.SteeringAngle,
		Speed:         0,
		Acceleration:  0,
	}
}

// SelectCommand arbitrates the raw control command for this tick. When
// disengaged the safe default wins regardless of mode; otherwise the mode
// picks the live source.
func SelectCommand(mode GateMode, engaged bool, src SourceCommands, state VehicleState, now time.Time) ControlCommand {
	if !engaged {
		return DisengagedCommand(state, now)
	}
	if mode == ModeExternal {
		return src.External
	}
	return src.Auto
}

// SelectTurnIndicator arbitrates the turn indicator channel. Auxiliary
// channels follow the same mode rule as the control command but pass
// through unfiltered; when disengaged the indicator is off.
func SelectTurnIndicator(mode GateMode, engaged bool, src SourceCommands) TurnIndicator {
	if !engaged {
		return TurnIndicatorNone
	}
	if mode == ModeExternal {
		return src.ExternalTurn.Indicator
	}
	return src.AutoTurn.Indicator
}

// SelectHazardLights arbitrates the hazard light channel. When disengaged
// the hazard lights are off.
func SelectHazardLights(mode GateMode, engaged bool, src SourceCommands) HazardLights {
	if !engaged {
		return HazardLightsOff
	}
	if mode == ModeExternal {
		return src.ExternalHazard.Hazard
	}
	return src.AutoHazard.Hazard
}

// SelectGear arbitrates the gear channel. When disengaged the previously
// arbitrated gear is held rather than forcing a shift while the vehicle
// may still be moving.
func SelectGear(mode GateMode, engaged bool, src SourceCommands, held Gear) Gear {
	if !engaged {
		return held
	}
	if mode == ModeExternal {
		return src.ExternalGear.Gear
	}
	return src.AutoGear.Gear
}
