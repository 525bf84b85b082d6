// Package tracker drives the per-frame eye pipeline: metric extraction, blink
// classification, gesture classification and record assembly.
package tracker

import (
	"time"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/landmark"
	"github.com/ayusman/nayana/internal/record"
)

// Pipeline processes the frames of one session. It owns the gesture state and
// is not safe for concurrent use; run one Pipeline per session.
type Pipeline struct {
	classifier *gesture.Classifier
	state      gesture.State
	stats      *Stats

	sessionID string
	start     time.Time
	frames    int
}

// NewPipeline creates a pipeline with the given gesture thresholds.
func NewPipeline(cfg gesture.Config) *Pipeline {
	p := &Pipeline{classifier: gesture.NewClassifier(cfg)}
	p.Reset("", time.Time{})
	return p
}

// Reset starts a new session. Gesture state, frame numbering and statistics
// are cleared.
func (p *Pipeline) Reset(sessionID string, start time.Time) {
	p.state.Reset()
	p.sessionID = sessionID
	p.start = start
	p.frames = 0
	p.stats = NewStats(sessionID, start)
}

// ResetState clears only the gesture state. The next frame starts fresh
// timers, as after a long face gap.
func (p *Pipeline) ResetState() {
	p.state.Reset()
}

// ResetCounters clears the gesture state and the statistics of the running
// session. Frame numbering continues.
func (p *Pipeline) ResetCounters() {
	p.state.Reset()
	p.stats = NewStats(p.sessionID, p.start)
}

// SetConfig replaces the gesture thresholds without clearing state.
func (p *Pipeline) SetConfig(cfg gesture.Config) {
	p.classifier.SetConfig(cfg)
}

// Config returns the active gesture thresholds.
func (p *Pipeline) Config() gesture.Config {
	return p.classifier.Config()
}

// SessionID returns the current session id.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// State returns a copy of the gesture state.
func (p *Pipeline) State() gesture.State {
	return p.state
}

// Summary returns the statistics of the current session.
func (p *Pipeline) Summary() Summary {
	return p.stats.Summary()
}

// Process runs one frame through the pipeline. at is the frame time relative
// to the session start. An unusable threshold falls back to the default.
func (p *Pipeline) Process(frame landmark.Frame, at time.Duration, threshold, fps float64) record.FrameRecord {
	if eye.ValidateThreshold(threshold) != nil {
		threshold = eye.DefaultThreshold
	}

	in := record.Input{
		Timestamp:   p.start.Add(at),
		SessionID:   p.sessionID,
		FrameNumber: p.frames,
		FPS:         fps,
	}
	p.frames++

	metrics, err := eye.Extract(frame)
	if err != nil {
		in.Gesture = p.classifier.Step(&p.state, gesture.Input{At: at})
	} else {
		blink := eye.Classify(metrics, threshold)
		in.Face = true
		in.Metrics = metrics
		in.Blink = blink
		in.Gesture = p.classifier.Step(&p.state, gesture.Input{
			At:          at,
			Face:        true,
			LeftClosed:  blink.Left.Closed,
			RightClosed: blink.Right.Closed,
			Gaze:        metrics.Combined,
		})
	}

	rec := record.Build(in)
	p.stats.Add(rec)
	return rec
}
