// Package wallmarker turns geometric virtual-wall descriptors into
// renderable add/delete visualization primitives. It is pure presentation:
// nothing here carries control semantics.
package wallmarker

import (
	"math"
	"time"
)

// Style selects the wall's visual treatment.
type Style int

const (
	StyleStop Style = iota
	StyleSlowDown
	StyleDeadLine
)

func (s Style) String() string {
	switch s {
	case StyleSlowDown:
		return "slow_down"
	case StyleDeadLine:
		return "dead_line"
	default:
		return "stop"
	}
}

// Pose is a 2D pose with heading, in the map frame.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Wall describes one virtual wall to visualize.
type Wall struct {
	Pose               Pose
	Text               string
	LongitudinalOffset float64
	Style              Style
	NS                 string
}

// Action says whether a marker should be added/updated or deleted.
type Action int

const (
	ActionAdd Action = iota
	ActionDelete
)

// Marker is one renderable primitive. Markers are addressed by (NS, ID);
// a delete marker clears whatever was previously published under that
// address.
type Marker struct {
	NS     string    `json:"ns"`
	ID     int       `json:"id"`
	Action Action    `json:"action"`
	Pose   Pose      `json:"pose,omitempty"`
	Text   string    `json:"text,omitempty"`
	Style  Style     `json:"style,omitempty"`
	Stamp  time.Time `json:"stamp"`
}

type markerCount struct {
	previous int
	current  int
}

// Creator batches walls into marker arrays. Each call to CreateMarkers
// consumes the walls added since the previous call and emits DELETE
// markers for any namespace indices that were used last call but not this
// one. The only cross-call memory is the per-namespace previous/current
// count.
type Creator struct {
	walls            []Wall
	markerCountPerNS map[string]*markerCount
}

// NewCreator returns an empty Creator.
func NewCreator() *Creator {
	return &Creator{markerCountPerNS: make(map[string]*markerCount)}
}

// AddWall queues one wall for the next CreateMarkers call.
func (c *Creator) AddWall(w Wall) {
	c.walls = append(c.walls, w)
}

// AddWalls queues several walls.
func (c *Creator) AddWalls(walls []Wall) {
	c.walls = append(c.walls, walls...)
}

// CreateMarkers converts the queued walls into markers, appends DELETE
// markers for stale indices, clears the queue, and drops namespaces that
// were unused in both this and the previous call.
func (c *Creator) CreateMarkers(now time.Time) []Marker {
	// rotate marker counts
	for _, count := range c.markerCountPerNS {
		count.previous = count.current
		count.current = 0
	}

	var markers []Marker
	for _, wall := range c.walls {
		pose := offsetPose(wall.Pose, wall.LongitudinalOffset)
		count, ok := c.markerCountPerNS[wall.NS]
		if !ok {
			count = &markerCount{}
			c.markerCountPerNS[wall.NS] = count
		}
		markers = append(markers, Marker{
			NS:     wall.NS,
			ID:     count.current,
			Action: ActionAdd,
			Pose:   pose,
			Text:   wall.Text,
			Style:  wall.Style,
			Stamp:  now,
		})
		count.current++
	}

	// delete markers for indices populated last call but not this one
	for ns, count := range c.markerCountPerNS {
		for id := count.current; id < count.previous; id++ {
			markers = append(markers, Marker{
				NS:     ns,
				ID:     id,
				Action: ActionDelete,
				Stamp:  now,
			})
		}
	}

	c.cleanup()
	return markers
}

// cleanup drops namespaces unused across two consecutive calls and clears
// the wall queue.
func (c *Creator) cleanup() {
	for ns, count := range c.markerCountPerNS {
		if count.previous == 0 && count.current == 0 {
			delete(c.markerCountPerNS, ns)
		}
	}
	c.walls = nil
}

// offsetPose shifts a pose along its heading by the longitudinal offset.
func offsetPose(p Pose, offset float64) Pose {
	if offset == 0 {
		return p
	}
	return Pose{
		X:   p.X + offset*math.Cos(p.Yaw),
		Y:   p.Y + offset*math.Sin(p.Yaw),
		Yaw: p.Yaw,
	}
}
