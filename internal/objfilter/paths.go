package objfilter

import "math"

// HighestConfidencePath returns the predicted path with the highest
// confidence, or all paths when useAll is set. A nil slice comes back for
// an object with no prediction.
func HighestConfidencePath(obj Object, useAll bool) []PredictedPath {
	if useAll || len(obj.PredictedPaths) == 0 {
		return obj.PredictedPaths
	}
	best := 0
	for i, p := range obj.PredictedPaths {
		if p.Confidence > obj.PredictedPaths[best].Confidence {
			best = i
		}
	}
	return []PredictedPath{obj.PredictedPaths[best]}
}

// CreateEgoPredictedPath rolls the ego vehicle forward along the
// reference path under constant acceleration, sampling at the configured
// resolution. The predicted speed never drops below the slow-down floor.
func CreateEgoPredictedPath(path []PathPoint, egoPose Pose, currentVelocity float64, params Params) []PathPoint {
	if len(path) == 0 {
		return nil
	}
	start := ToFrenet(path, egoPose.Point)

	var predicted []PathPoint
	for t := 0.0; t < params.TimeHorizon+1e-3; t += params.TimeResolution {
		velocity := math.Max(currentVelocity+params.EgoAcceleration*t, params.MinSlowDownSpeed)
		length := currentVelocity*t + 0.5*params.EgoAcceleration*t*t
		pose := InterpolatePose(path, start.Length+length)
		predicted = append(predicted, PathPoint{
			Time:  t,
			Pose:  pose,
			Speed: velocity,
		})
	}
	return predicted
}

// ResamplePredictedPaths re-samples each of an object's predicted paths
// at the configured time resolution over the horizon, interpolating
// linearly between the original points.
func ResamplePredictedPaths(obj Object, params Params) []PredictedPath {
	out := make([]PredictedPath, 0, len(obj.PredictedPaths))
	for _, p := range obj.PredictedPaths {
		resampled := PredictedPath{Confidence: p.Confidence}
		for t := 0.0; t < params.TimeHorizon+1e-3; t += params.TimeResolution {
			if pt, ok := interpolateAtTime(p.Points, t); ok {
				resampled.Points = append(resampled.Points, pt)
			}
		}
		out = append(out, resampled)
	}
	return out
}

// interpolateAtTime linearly interpolates a path point at time t. It
// reports false when t lies beyond the path's last sample.
func interpolateAtTime(points []PathPoint, t float64) (PathPoint, bool) {
	if len(points) == 0 {
		return PathPoint{}, false
	}
	if t <= points[0].Time {
		pt := points[0]
		pt.Time = t
		return pt, true
	}
	for i := 1; i < len(points); i++ {
		if t <= points[i].Time {
			a, b := points[i-1], points[i]
			span := b.Time - a.Time
			if span <= 0 {
				return b, true
			}
			f := (t - a.Time) / span
			return PathPoint{
				Time: t,
				Pose: Pose{
					Point: Point{
						X: a.Pose.X + f*(b.Pose.X-a.Pose.X),
						Y: a.Pose.Y + f*(b.Pose.Y-a.Pose.Y),
					},
					Yaw: a.Pose.Yaw,
				},
				Speed: a.Speed + f*(b.Speed-a.Speed),
			}, true
		}
	}
	return PathPoint{}, false
}
