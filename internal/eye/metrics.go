// Package eye computes per-frame eye metrics (aspect ratio and gaze) from face
// landmarks and thresholds them into open/closed eye states.
package eye

import (
	"errors"
	"math"

	"github.com/ayusman/nayana/internal/landmark"
)

// Epsilon is the smallest eye extent treated as real geometry.
const Epsilon = 1e-6

var (
	// ErrNoFace is returned when a frame carries no usable landmarks.
	ErrNoFace = errors.New("no face in frame")
	// ErrDegenerateGeometry marks an eye whose corner distance is near zero or
	// whose landmarks are not finite.
	ErrDegenerateGeometry = errors.New("degenerate eye geometry")
)

// Gaze is a normalized gaze coordinate, each component in [0,1].
type Gaze struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyeMetrics holds the values computed for one eye.
type EyeMetrics struct {
	EAR  float64
	Gaze Optional[Gaze]
	// Degenerate is set when the eye width fell below Epsilon or a contour point
	// was not finite. EAR is then 0 and Gaze is absent; callers treat the eye as
	// carrying no data rather than as closed.
	Degenerate bool
}

// Metrics holds the values computed for one frame.
type Metrics struct {
	Left     EyeMetrics
	Right    EyeMetrics
	Combined Optional[Gaze]
}

// Extract computes eye metrics for a frame. It returns ErrNoFace when the frame
// is invalid or lacks a required landmark. Extract is a pure function.
func Extract(frame landmark.Frame) (Metrics, error) {
	if !frame.Valid {
		return Metrics{}, ErrNoFace
	}
	if !frame.Has(landmark.LeftEye.Max(), landmark.RightEye.Max()) {
		return Metrics{}, ErrNoFace
	}

	left := eyeMetrics(frame.Points, landmark.LeftEye)
	right := eyeMetrics(frame.Points, landmark.RightEye)

	return Metrics{
		Left:     left,
		Right:    right,
		Combined: combine(left.Gaze, right.Gaze),
	}, nil
}

func eyeMetrics(points []landmark.Point, idx landmark.EyeIndices) EyeMetrics {
	ear, err := AspectRatio(
		points[idx.P1], points[idx.P2], points[idx.P3],
		points[idx.P4], points[idx.P5], points[idx.P6],
	)
	if errors.Is(err, ErrDegenerateGeometry) {
		return EyeMetrics{EAR: 0, Gaze: None[Gaze](), Degenerate: true}
	}

	contour := idx.Contour()
	var eyePoints [6]landmark.Point
	for i, c := range contour {
		eyePoints[i] = points[c]
	}

	return EyeMetrics{
		EAR:  ear,
		Gaze: gaze(eyePoints[:], points[idx.Iris]),
	}
}

// AspectRatio computes the eye aspect ratio
//
//	EAR = (|p2-p6| + |p3-p5|) / (2 |p1-p4|)
//
// and returns ErrDegenerateGeometry with a value of 0 when |p1-p4| < Epsilon or
// any distance is NaN or infinite.
func AspectRatio(p1, p2, p3, p4, p5, p6 landmark.Point) (float64, error) {
	horizontal := landmark.Distance(p1, p4)
	if !finite(horizontal) || horizontal < Epsilon {
		return 0, ErrDegenerateGeometry
	}
	vertical := landmark.Distance(p2, p6) + landmark.Distance(p3, p5)
	if !finite(vertical) {
		return 0, ErrDegenerateGeometry
	}
	return vertical / (2 * horizontal), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// gaze maps the iris position inside the eye bounding box to [0,1]x[0,1].
// The raw offset (iris - center) / half-size lies in about [-1,1]; it is mapped
// by (v+1)/2 and clamped so that landmark noise outside the box stays in range.
func gaze(eyePoints []landmark.Point, iris landmark.Point) Optional[Gaze] {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range eyePoints {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	halfW := (maxX - minX) / 2
	halfH := (maxY - minY) / 2
	if !finite(halfW) || !finite(halfH) || !finite(iris.X) || !finite(iris.Y) || halfW < Epsilon {
		return None[Gaze]()
	}

	vx := (iris.X - (minX + halfW)) / halfW
	vy := 0.0
	// A shut eye has no vertical extent; its vertical gaze is neutral.
	if halfH >= Epsilon {
		vy = (iris.Y - (minY + halfH)) / halfH
	}

	return Some(Gaze{X: rescale(vx), Y: rescale(vy)})
}

func rescale(v float64) float64 {
	return clamp01((v + 1) / 2)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}

// combine averages the gazes that are present.
func combine(left, right Optional[Gaze]) Optional[Gaze] {
	switch {
	case left.Valid && right.Valid:
		return Some(Gaze{
			X: (left.Value.X + right.Value.X) / 2,
			Y: (left.Value.Y + right.Value.Y) / 2,
		})
	case left.Valid:
		return left
	case right.Valid:
		return right
	default:
		return None[Gaze]()
	}
}
