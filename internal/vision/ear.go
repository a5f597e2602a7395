// Package vision turns raw eye landmarks into a per-frame eye-state signal.
package vision

import (
	"math"

	"driveguard/internal/model"
)

// Evaluator computes the eye-aspect ratio for each usable eye and folds the
// result into a FrameSignal. Prolonged landmark loss while a face is still
// detected counts as closed eyes after missLimit consecutive frames.
type Evaluator struct {
	threshold  float64
	epsilon    float64
	missLimit  int
	missStreak int
}

func NewEvaluator(threshold, epsilon float64, missLimit int) *Evaluator {
	if epsilon <= 0 {
		epsilon = 0.0001
	}
	if missLimit <= 0 {
		missLimit = 10
	}
	return &Evaluator{threshold: threshold, epsilon: epsilon, missLimit: missLimit}
}

// SetThreshold applies a hot-reloaded EAR threshold.
func (e *Evaluator) SetThreshold(threshold float64) {
	if threshold > 0 {
		e.threshold = threshold
	}
}

// Evaluate produces the FrameSignal for one frame.
func (e *Evaluator) Evaluate(f model.Frame) model.FrameSignal {
	if !f.FaceDetected {
		// No face at all: the presence machine owns this case. EAR 0 here
		// means "eyes open" so the drowsiness machine stays frozen.
		return model.FrameSignal{}
	}

	var sum float64
	included := 0
	// Every included eye must be under the threshold: "both eyes closed",
	// not an average-only check.
	closed := true
	for _, eye := range [][]model.Point{f.LeftEye, f.RightEye} {
		ear, ok := e.eyeAspectRatio(eye, f.Width, f.Height)
		if !ok {
			continue
		}
		sum += ear
		included++
		if ear >= e.threshold {
			closed = false
		}
	}

	if included == 0 {
		e.missStreak++
		return model.FrameSignal{
			FaceDetected: true,
			EyesClosed:   e.missStreak > e.missLimit,
		}
	}
	e.missStreak = 0

	return model.FrameSignal{
		FaceDetected:    true,
		EyesClosed:      closed,
		AvgOpenness:     sum / float64(included),
		LandmarksUsable: true,
	}
}

// MissStreak reports the current consecutive-missing-landmark count.
func (e *Evaluator) MissStreak() int {
	return e.missStreak
}

func (e *Evaluator) eyeAspectRatio(pts []model.Point, width, height int) (float64, bool) {
	if len(pts) != model.EyePoints {
		return 0, false
	}
	for _, p := range pts {
		if p.X < 0 || p.Y < 0 || p.X >= float64(width) || p.Y >= float64(height) {
			return 0, false
		}
	}
	a := dist(pts[1], pts[5])
	b := dist(pts[2], pts[4])
	c := dist(pts[0], pts[3])
	if c < e.epsilon {
		c = e.epsilon
	}
	return (a + b) / (2 * c), true
}

func dist(p, q model.Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}
