// Package objfilter narrows a perception object list by velocity, class,
// and position along the ego path, and partitions the survivors by lane
// relationship for downstream safety checks. It is a data-reduction
// pipeline over perception output, not a control loop; the gate does not
// depend on its results.
package objfilter

import (
	"time"

	"github.com/google/uuid"
)

// Class is a perception object classification.
type Class string

const (
	ClassUnknown    Class = "unknown"
	ClassCar        Class = "car"
	ClassTruck      Class = "truck"
	ClassBus        Class = "bus"
	ClassTrailer    Class = "trailer"
	ClassMotorcycle Class = "motorcycle"
	ClassBicycle    Class = "bicycle"
	ClassPedestrian Class = "pedestrian"
)

// Point is a 2D map-frame position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is a position with heading.
type Pose struct {
	Point
	Yaw float64 `json:"yaw"`
}

// PathPoint is one pose along a reference path, timestamped for predicted
// paths.
type PathPoint struct {
	Time  float64 `json:"t"` // seconds from path start
	Pose  Pose    `json:"pose"`
	Speed float64 `json:"speed"`
}

// PredictedPath is one hypothesis for an object's future motion.
type PredictedPath struct {
	Confidence float64     `json:"confidence"`
	Points     []PathPoint `json:"points"`
}

// Object is one perceived object.
type Object struct {
	ID             uuid.UUID       `json:"id"`
	Class          Class           `json:"class"`
	Pose           Pose            `json:"pose"`
	VelocityX      float64         `json:"vx"` // body frame, m/s
	VelocityY      float64         `json:"vy"`
	Stamp          time.Time       `json:"stamp"`
	PredictedPaths []PredictedPath `json:"predicted_paths,omitempty"`
}

// Params configures the filter.
type Params struct {
	// IgnoreVelocityThreshold drops objects slower than this (m/s).
	IgnoreVelocityThreshold float64
	// CheckForwardDistance keeps objects up to this far ahead along the
	// path (m).
	CheckForwardDistance float64
	// CheckBackwardDistance keeps objects up to this far behind (m).
	CheckBackwardDistance float64
	// Classes lists the object classes to keep.
	Classes map[Class]bool
	// TimeHorizon and TimeResolution shape the sampled predicted paths.
	TimeHorizon    float64
	TimeResolution float64
	// MinSlowDownSpeed floors the ego predicted speed.
	MinSlowDownSpeed float64
	// EgoAcceleration is the assumed ego acceleration when predicting.
	EgoAcceleration float64
}

// Lane is a navigable lane reference: a closed boundary polygon plus the
// lane's relationship to the ego lane.
type Lane struct {
	ID      string  `json:"id"`
	Polygon []Point `json:"polygon"`
}

// LanePartition groups filtered objects by lane relationship.
type LanePartition struct {
	OnCurrentLane []Object `json:"on_current_lane"`
	OnLeftLane    []Object `json:"on_left_lane"`
	OnRightLane   []Object `json:"on_right_lane"`
}
