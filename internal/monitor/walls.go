package monitor

import (
	"sync"

	"github.com/banshee-data/vehicle.gate/internal/gate"
	"github.com/banshee-data/vehicle.gate/internal/wallmarker"
)

// PublishFunc receives each rendered marker batch.
type PublishFunc func([]wallmarker.Marker)

// StopWallPublisher implements gate.Emitter and keeps a stop wall
// published while the watchdog override is active. When the override
// clears, the next batch carries the delete markers for the stale wall.
type StopWallPublisher struct {
	mu      sync.Mutex
	creator *wallmarker.Creator
	publish PublishFunc
	pose    wallmarker.Pose
	offset  float64
}

// NewStopWallPublisher creates a publisher anchoring the wall at the
// given pose with a longitudinal offset. publish may be nil while no
// downstream consumer exists; batches are still generated so the
// creator's delete bookkeeping stays correct.
func NewStopWallPublisher(pose wallmarker.Pose, offset float64, publish PublishFunc) *StopWallPublisher {
	return &StopWallPublisher{
		creator: wallmarker.NewCreator(),
		publish: publish,
		pose:    pose,
		offset:  offset,
	}
}

// SetPose updates the wall anchor, normally from the latest ego pose.
func (p *StopWallPublisher) SetPose(pose wallmarker.Pose) {
	p.mu.Lock()
	p.pose = pose
	p.mu.Unlock()
}

// Emit implements gate.Emitter.
func (p *StopWallPublisher) Emit(out gate.TickOutput) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if out.Override {
		p.creator.AddWall(wallmarker.Wall{
			Pose:               p.pose,
			Text:               "mrm " + out.Watchdog.String(),
			LongitudinalOffset: p.offset,
			Style:              wallmarker.StyleStop,
			NS:                 "mrm",
		})
	}
	markers := p.creator.CreateMarkers(out.Stamp)
	if p.publish != nil && len(markers) > 0 {
		p.publish(markers)
	}
}
