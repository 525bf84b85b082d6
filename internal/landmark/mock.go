package landmark

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance that reports no face.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFrame makes every Detect call return f.
func (m *MockDetector) SetFrame(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = []Frame{f}
	m.next = 0
}

// SetSequence makes Detect return the frames in order, repeating the last one.
func (m *MockDetector) SetSequence(frames []Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.next = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured frame or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return NoFace(), m.err
	}
	if len(m.frames) == 0 {
		return NoFace(), nil
	}
	f := m.frames[m.next]
	if m.next < len(m.frames)-1 {
		m.next++
	}
	return f, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// EyeShape describes a synthetic eye used to build test frames.
//
// The contour is laid out so that the eye aspect ratio equals Openness and the
// normalized iris offset equals (IrisDX, IrisDY).
type EyeShape struct {
	CenterX, CenterY float64
	Width            float64
	Openness         float64
	IrisDX, IrisDY   float64
}

// Default eye shapes for a frontal face.
var (
	DefaultLeftEye  = EyeShape{CenterX: 0.35, CenterY: 0.40, Width: 0.10, Openness: 0.30}
	DefaultRightEye = EyeShape{CenterX: 0.65, CenterY: 0.40, Width: 0.10, Openness: 0.30}
)

// WithOpenness returns a copy of the shape with a different aspect ratio.
func (s EyeShape) WithOpenness(o float64) EyeShape {
	s.Openness = o
	return s
}

// WithIris returns a copy of the shape with the iris moved to (dx, dy).
func (s EyeShape) WithIris(dx, dy float64) EyeShape {
	s.IrisDX = dx
	s.IrisDY = dy
	return s
}

// SynthFrame builds a valid full-size face mesh frame with the given eyes.
func SynthFrame(left, right EyeShape) Frame {
	points := make([]Point, NumLandmarks)
	placeEye(points, LeftEye, left)
	placeEye(points, RightEye, right)
	return Frame{Points: points, Valid: true}
}

// OpenEyesFrame returns a frame with both eyes open and centered gaze.
func OpenEyesFrame() Frame {
	return SynthFrame(DefaultLeftEye, DefaultRightEye)
}

// ClosedEyesFrame returns a frame with both eyes nearly shut.
func ClosedEyesFrame() Frame {
	return SynthFrame(DefaultLeftEye.WithOpenness(0.05), DefaultRightEye.WithOpenness(0.05))
}

func placeEye(points []Point, idx EyeIndices, s EyeShape) {
	halfW := s.Width / 2
	halfH := s.Openness * s.Width / 2
	third := s.Width / 6

	points[idx.P1] = Point{X: s.CenterX - halfW, Y: s.CenterY}
	points[idx.P4] = Point{X: s.CenterX + halfW, Y: s.CenterY}
	points[idx.P2] = Point{X: s.CenterX - third, Y: s.CenterY - halfH}
	points[idx.P3] = Point{X: s.CenterX + third, Y: s.CenterY - halfH}
	points[idx.P5] = Point{X: s.CenterX + third, Y: s.CenterY + halfH}
	points[idx.P6] = Point{X: s.CenterX - third, Y: s.CenterY + halfH}
	points[idx.Iris] = Point{X: s.CenterX + s.IrisDX*halfW, Y: s.CenterY + s.IrisDY*halfH}
}
