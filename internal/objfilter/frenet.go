package objfilter

import "math"

// FrenetPoint is a position expressed as arc length along a reference
// path plus lateral offset from it.
type FrenetPoint struct {
	Length   float64 // s, arc length from the path start
	Distance float64 // d, signed lateral offset (left positive)
}

// SignedArcLength returns the arc-length distance from `from` to `to`
// measured along the path. Positive means `to` is further along the path
// than `from`.
func SignedArcLength(path []PathPoint, from, to Point) float64 {
	if len(path) < 2 {
		return 0
	}
	return projectArcLength(path, to) - projectArcLength(path, from)
}

// ToFrenet projects a point onto the path, returning arc length and
// signed lateral offset.
func ToFrenet(path []PathPoint, p Point) FrenetPoint {
	if len(path) < 2 {
		return FrenetPoint{}
	}
	segIdx, t := nearestSegment(path, p)
	a := path[segIdx].Pose.Point
	b := path[segIdx+1].Pose.Point

	s := cumulativeLength(path, segIdx) + t*dist(a, b)

	// signed lateral offset via the segment normal (left positive)
	dx, dy := b.X-a.X, b.Y-a.Y
	px, py := p.X-a.X, p.Y-a.Y
	cross := dx*py - dy*px
	d := 0.0
	if l := math.Hypot(dx, dy); l > 0 {
		d = cross / l
	}
	return FrenetPoint{Length: s, Distance: d}
}

// InterpolatePose returns the pose at the given arc length along the
// path, clamped to the path's ends.
func InterpolatePose(path []PathPoint, s float64) Pose {
	if len(path) == 0 {
		return Pose{}
	}
	if len(path) == 1 || s <= 0 {
		return path[0].Pose
	}
	acc := 0.0
	for i := 0; i < len(path)-1; i++ {
		a := path[i].Pose.Point
		b := path[i+1].Pose.Point
		segLen := dist(a, b)
		if acc+segLen >= s && segLen > 0 {
			t := (s - acc) / segLen
			return Pose{
				Point: Point{
					X: a.X + t*(b.X-a.X),
					Y: a.Y + t*(b.Y-a.Y),
				},
				Yaw: math.Atan2(b.Y-a.Y, b.X-a.X),
			}
		}
		acc += segLen
	}
	return path[len(path)-1].Pose
}

// projectArcLength returns the arc length of p's projection onto the path.
func projectArcLength(path []PathPoint, p Point) float64 {
	segIdx, t := nearestSegment(path, p)
	a := path[segIdx].Pose.Point
	b := path[segIdx+1].Pose.Point
	return cumulativeLength(path, segIdx) + t*dist(a, b)
}

// nearestSegment finds the path segment closest to p and the clamped
// projection parameter t in [0,1] along it.
func nearestSegment(path []PathPoint, p Point) (int, float64) {
	bestIdx, bestT := 0, 0.0
	bestDist := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		a := path[i].Pose.Point
		b := path[i+1].Pose.Point
		t := projectParam(a, b, p)
		proj := Point{
			X: a.X + t*(b.X-a.X),
			Y: a.Y + t*(b.Y-a.Y),
		}
		d := dist(proj, p)
		if d < bestDist {
			bestDist = d
			bestIdx = i
			bestT = t
		}
	}
	return bestIdx, bestT
}

// projectParam returns the clamped projection parameter of p onto segment
// a->b.
func projectParam(a, b, p Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// cumulativeLength returns the arc length from the path start to the
// beginning of segment segIdx.
func cumulativeLength(path []PathPoint, segIdx int) float64 {
	acc := 0.0
	for i := 0; i < segIdx; i++ {
		acc += dist(path[i].Pose.Point, path[i+1].Pose.Point)
	}
	return acc
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
