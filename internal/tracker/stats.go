package tracker

import (
	"math"
	"time"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/record"
)

// Summary is the aggregate of one session.
type Summary struct {
	SessionID      string                `json:"session_id"`
	StartedAt      time.Time             `json:"started_at"`
	TotalFrames    int                   `json:"total_frames"`
	FramesWithFace int                   `json:"frames_with_face"`
	Blinks         int                   `json:"blinks"`
	GestureCounts  map[gesture.Label]int `json:"gesture_counts"`
	AvgFPS         float64               `json:"avg_fps"`
	MeanEAR        float64               `json:"mean_ear"`
	StdDevEAR      float64               `json:"stddev_ear"`
}

// Stats accumulates per-session counters from frame records. Blinks and
// gestures are counted once per onset, not once per frame.
type Stats struct {
	sessionID string
	startedAt time.Time
	frames    int
	withFace  int
	blinks    int
	gestures  map[gesture.Label]int
	fpsSum    float64

	// Running EAR mean and sum of squared deviations (Welford).
	earN    int
	earMean float64
	earM2   float64

	prevBlinking bool
	prevGesture  gesture.Label
}

// NewStats creates empty counters for a session.
func NewStats(sessionID string, startedAt time.Time) *Stats {
	return &Stats{
		sessionID:   sessionID,
		startedAt:   startedAt,
		gestures:    make(map[gesture.Label]int),
		prevGesture: gesture.None,
	}
}

// Add folds one record into the counters.
func (s *Stats) Add(r record.FrameRecord) {
	s.frames++
	s.fpsSum += r.FPS

	if ear, ok := meanEAR(r); ok {
		s.withFace++
		s.addEAR(ear)
	}
	if r.IsBlinking && !s.prevBlinking {
		s.blinks++
	}
	if gesture.Onset(s.prevGesture, r.Gesture) {
		s.gestures[r.Gesture]++
	}
	s.prevBlinking = r.IsBlinking
	s.prevGesture = r.Gesture
}

// Summary returns a snapshot of the counters.
func (s *Stats) Summary() Summary {
	counts := make(map[gesture.Label]int, len(s.gestures))
	for k, v := range s.gestures {
		counts[k] = v
	}

	sum := Summary{
		SessionID:      s.sessionID,
		StartedAt:      s.startedAt,
		TotalFrames:    s.frames,
		FramesWithFace: s.withFace,
		Blinks:         s.blinks,
		GestureCounts:  counts,
	}
	if s.frames > 0 {
		sum.AvgFPS = s.fpsSum / float64(s.frames)
	}
	sum.MeanEAR = s.earMean
	if s.earN > 1 {
		sum.StdDevEAR = math.Sqrt(s.earM2 / float64(s.earN-1))
	}
	return sum
}

func (s *Stats) addEAR(v float64) {
	s.earN++
	d := v - s.earMean
	s.earMean += d / float64(s.earN)
	s.earM2 += d * (v - s.earMean)
}

// meanEAR averages the measured EARs of a record. An eye without a measured
// EAR is left out.
func meanEAR(r record.FrameRecord) (float64, bool) {
	var sum float64
	var n int
	for _, o := range []eye.Optional[float64]{r.LeftEAR, r.RightEAR} {
		if v, ok := o.Get(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
