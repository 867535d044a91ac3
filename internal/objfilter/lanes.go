package objfilter

// SeparateByLanes splits objects into those whose polygonal footprint
// centroid lies within any of the target lanes and those outside.
func SeparateByLanes(objects []Object, lanes []Lane) (inside, outside []Object) {
	if len(lanes) == 0 {
		return nil, objects
	}
	for _, obj := range objects {
		if centroidWithinLanes(obj, lanes) {
			inside = append(inside, obj)
		} else {
			outside = append(outside, obj)
		}
	}
	return inside, outside
}

// PartitionByLane assigns each filtered object to the current, left, or
// right lane group by centroid containment. Objects outside every lane
// are dropped; the gate's safety checks only reason about laned traffic.
func PartitionByLane(objects []Object, current, left, right []Lane) LanePartition {
	var part LanePartition
	for _, obj := range objects {
		switch {
		case centroidWithinLanes(obj, current):
			part.OnCurrentLane = append(part.OnCurrentLane, obj)
		case centroidWithinLanes(obj, left):
			part.OnLeftLane = append(part.OnLeftLane, obj)
		case centroidWithinLanes(obj, right):
			part.OnRightLane = append(part.OnRightLane, obj)
		}
	}
	return part
}

func centroidWithinLanes(obj Object, lanes []Lane) bool {
	for _, lane := range lanes {
		if pointInPolygon(obj.Pose.Point, lane.Polygon) {
			return true
		}
	}
	return false
}

// pointInPolygon is a standard even-odd ray cast. Polygons need not be
// explicitly closed.
func pointInPolygon(p Point, poly []Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}
