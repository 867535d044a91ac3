package objfilter

import "math"

// FilterObjects narrows the object list for downstream safety checks:
// first by velocity, then by class, then by signed arc-length position
// along the ego path. An empty input yields an empty output.
func FilterObjects(objects []Object, path []PathPoint, egoPos Point, params Params) []Object {
	if len(objects) == 0 {
		return nil
	}
	filtered := FilterByVelocity(objects, params.IgnoreVelocityThreshold, false)
	filtered = FilterByClass(filtered, params.Classes)
	filtered = FilterByPosition(filtered, path, egoPos,
		params.CheckForwardDistance, params.CheckBackwardDistance)
	return filtered
}

// FilterByVelocity keeps objects whose speed exceeds the threshold. With
// removeAboveThreshold set the sense inverts: objects faster than the
// threshold are removed instead.
func FilterByVelocity(objects []Object, threshold float64, removeAboveThreshold bool) []Object {
	lo, hi := threshold, math.Inf(1)
	if removeAboveThreshold {
		lo, hi = -threshold, threshold
	}
	out := make([]Object, 0, len(objects))
	for _, obj := range objects {
		v := math.Hypot(obj.VelocityX, obj.VelocityY)
		if lo < v && v < hi {
			out = append(out, obj)
		}
	}
	return out
}

// FilterByClass keeps objects whose class is enabled in the class set.
func FilterByClass(objects []Object, classes map[Class]bool) []Object {
	out := make([]Object, 0, len(objects))
	for _, obj := range objects {
		if classes[obj.Class] {
			out = append(out, obj)
		}
	}
	return out
}

// FilterByPosition keeps objects within (-backward, +forward) signed arc
// length of the ego position along the reference path.
func FilterByPosition(objects []Object, path []PathPoint, egoPos Point, forward, backward float64) []Object {
	out := make([]Object, 0, len(objects))
	for _, obj := range objects {
		s := SignedArcLength(path, egoPos, obj.Pose.Point)
		if -backward < s && s < forward {
			out = append(out, obj)
		}
	}
	return out
}
