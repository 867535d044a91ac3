// Package gate implements the vehicle command gate: the single point
// through which every candidate driving command passes before it reaches
// the actuation layer. It arbitrates between command sources, rate-limits
// the output stream, and can substitute a fail-safe stop command when the
// safety watchdog trips.
package gate

import "time"

// ControlCommand is one candidate (or emitted) driving command.
// Angles are in radians, speeds in m/s, accelerations in m/s².
type ControlCommand struct {
	Stamp         time.Time `json:"stamp"`
	SteeringAngle float64   `json:"steering_angle"`
	SteeringRate  float64   `json:"steering_rate,omitempty"`
	Speed         float64   `json:"speed"`
	Acceleration  float64   `json:"acceleration"`
}

// TurnIndicator is the commanded turn indicator state.
type TurnIndicator int

const (
	TurnIndicatorNone TurnIndicator = iota
	TurnIndicatorLeft
	TurnIndicatorRight
)

func (t TurnIndicator) String() string {
	switch t {
	case TurnIndicatorLeft:
		return "left"
	case TurnIndicatorRight:
		return "right"
	default:
		return "none"
	}
}

// HazardLights is the commanded hazard light state.
type HazardLights int

const (
	HazardLightsOff HazardLights = iota
	HazardLightsOn
)

func (h HazardLights) String() string {
	if h == HazardLightsOn {
		return "on"
	}
	return "off"
}

// Gear is the commanded gear selection.
type Gear int

const (
	GearPark Gear = iota
	GearNeutral
	GearDrive
	GearReverse
	GearLow
)

func (g Gear) String() string {
	switch g {
	case GearNeutral:
		return "neutral"
	case GearDrive:
		return "drive"
	case GearReverse:
		return "reverse"
	case GearLow:
		return "low"
	default:
		return "park"
	}
}

// TurnIndicatorCommand is a timestamped turn indicator candidate.
type TurnIndicatorCommand struct {
	Stamp     time.Time     `json:"stamp"`
	Indicator TurnIndicator `json:"indicator"`
}

// HazardLightsCommand is a timestamped hazard light candidate.
type HazardLightsCommand struct {
	Stamp  time.Time    `json:"stamp"`
	Hazard HazardLights `json:"hazard"`
}

// GearCommand is a timestamped gear selection candidate.
type GearCommand struct {
	Stamp time.Time `json:"stamp"`
	Gear  Gear      `json:"gear"`
}

// VehicleState is the most recent value observed from each upstream
// sensor/odometry feed. It is owned by the controller and overwritten
// whenever an update arrives; all other components read a snapshot.
type VehicleState struct {
	Speed         float64   `json:"speed"`
	SpeedStamp    time.Time `json:"speed_stamp"`
	SteeringAngle float64   `json:"steering_angle"`
	SteeringStamp time.Time `json:"steering_stamp"`
	Acceleration  float64   `json:"acceleration"`
	AccelStamp    time.Time `json:"accel_stamp"`
}

// GateMode selects which candidate command stream is live.
type GateMode int

const (
	ModeAuto GateMode = iota
	ModeExternal
)

func (m GateMode) String() string {
	if m == ModeExternal {
		return "external"
	}
	return "auto"
}

// OperationMode describes whether autonomous control is currently authorized.
type OperationMode int

const (
	OperationModeStop OperationMode = iota
	OperationModeAutonomous
	OperationModeLocal
	OperationModeRemote
)

func (m OperationMode) String() string {
	switch m {
	case OperationModeAutonomous:
		return "autonomous"
	case OperationModeLocal:
		return "local"
	case OperationModeRemote:
		return "remote"
	default:
		return "stop"
	}
}

// OperationModeState carries the upstream operation mode together with the
// control-enabled flag reported alongside it.
type OperationModeState struct {
	Stamp          time.Time     `json:"stamp"`
	Mode           OperationMode `json:"mode"`
	ControlEnabled bool          `json:"control_enabled"`
}
