package landmark

import "gocv.io/x/gocv"

// Detector defines the interface for face landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the landmarks of the first face.
	// A frame without a face is returned with Valid == false and a nil error.
	Detect(frame *gocv.Mat) (Frame, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the location of the face mesh service script.
	ScriptPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
