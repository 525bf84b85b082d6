// Package landmark defines the facial landmark frame consumed by the eye pipeline
// and the detectors that produce it.
package landmark

import "math"

// Face mesh landmark indices following the MediaPipe convention with refined iris
// landmarks enabled. "Left" and "right" are image sides, not anatomical sides.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	LeftEyeOuter      = 33
	LeftEyeInner      = 133
	LeftEyeUpperOuter = 160
	LeftEyeUpperInner = 158
	LeftEyeLowerInner = 153
	LeftEyeLowerOuter = 144
	LeftIris          = 468

	RightEyeInner      = 362
	RightEyeOuter      = 263
	RightEyeUpperInner = 385
	RightEyeUpperOuter = 387
	RightEyeLowerOuter = 373
	RightEyeLowerInner = 380
	RightIris          = 473

	// NumLandmarks is the size of a refined face mesh.
	NumLandmarks = 478
)

// EyeIndices names the six contour points and the iris center of one eye.
// P1 and P4 are the horizontal corners; (P2, P6) and (P3, P5) are the two
// vertical lid pairs.
type EyeIndices struct {
	P1, P2, P3, P4, P5, P6 int
	Iris                   int
}

// Contour returns the six contour indices in P1..P6 order.
func (e EyeIndices) Contour() [6]int {
	return [6]int{e.P1, e.P2, e.P3, e.P4, e.P5, e.P6}
}

// Max returns the largest index referenced by the eye.
func (e EyeIndices) Max() int {
	m := e.Iris
	for _, i := range e.Contour() {
		if i > m {
			m = i
		}
	}
	return m
}

// LeftEye and RightEye are the index tables used by the metric extractor.
var (
	LeftEye = EyeIndices{
		P1: LeftEyeOuter, P2: LeftEyeUpperOuter, P3: LeftEyeUpperInner,
		P4: LeftEyeInner, P5: LeftEyeLowerInner, P6: LeftEyeLowerOuter,
		Iris: LeftIris,
	}
	RightEye = EyeIndices{
		P1: RightEyeInner, P2: RightEyeUpperInner, P3: RightEyeUpperOuter,
		P4: RightEyeOuter, P5: RightEyeLowerOuter, P6: RightEyeLowerInner,
		Iris: RightIris,
	}
)

// Point represents a landmark in normalized image space. Z is relative depth and
// is ignored by the 2D eye metrics.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Frame is one snapshot of detected face landmarks. A frame with Valid == false
// carries no usable points.
type Frame struct {
	Points []Point `json:"points"`
	Valid  bool    `json:"valid"`
}

// NoFace returns an invalid frame.
func NoFace() Frame {
	return Frame{}
}

// Has reports whether every index is present in the frame.
func (f Frame) Has(indices ...int) bool {
	for _, i := range indices {
		if i < 0 || i >= len(f.Points) {
			return false
		}
	}
	return true
}

// Distance returns the 2D Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
