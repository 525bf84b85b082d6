package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Positioner is implemented by sources that know the media time of the last
// frame read. Frame timing for such sources follows the media clock instead
// of the wall clock.
type Positioner interface {
	Position() time.Duration
}

// VideoFile plays back a recorded video as a Camera.
type VideoFile struct {
	path     string
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
	fps      int
	position time.Duration
}

// NewVideoFile creates a source for the video at path.
func NewVideoFile(path string) *VideoFile {
	return &VideoFile{path: path, fps: DefaultFPS}
}

// Open opens the file. The native frame rate of the file replaces the
// configured rate when it is known.
func (v *VideoFile) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("failed to open video %s: %w", v.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("failed to open video %s", v.path)
	}
	if fps := capture.Get(gocv.VideoCaptureFPS); fps > 0 {
		v.fps = int(fps + 0.5)
	}

	v.capture = capture
	v.running = true
	v.position = 0
	return nil
}

// Close releases the file.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		v.running = false
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	v.running = false
	return err
}

// ReadFrame returns the next frame, or ErrEndOfStream after the last one.
func (v *VideoFile) ReadFrame() (*gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat, err := readMat(v.capture, ErrEndOfStream)
	if err != nil {
		return nil, err
	}
	ms := v.capture.Get(gocv.VideoCapturePosMsec)
	v.position = time.Duration(ms * float64(time.Millisecond))
	return mat, nil
}

// SetFPS overrides the playback rate used for pacing.
func (v *VideoFile) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fps = fps
}

// FPS returns the playback rate.
func (v *VideoFile) FPS() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fps
}

// IsOpen reports whether the file is open.
func (v *VideoFile) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Source returns "file:" followed by the path.
func (v *VideoFile) Source() string {
	return "file:" + v.path
}

// Position returns the media time of the last frame read.
func (v *VideoFile) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}
