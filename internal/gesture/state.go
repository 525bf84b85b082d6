package gesture

import (
	"time"

	"github.com/ayusman/nayana/internal/eye"
)

// Run is the current open or closed run of one eye.
type Run struct {
	Closed bool
	// Since is when the current run began.
	Since time.Duration
	// LastBlink is when the eye last reopened, and LastClosure how long it had
	// been closed. Both are zero until HasBlink is set.
	LastBlink   time.Duration
	LastClosure time.Duration
	HasBlink    bool
}

// Duration returns how long the run has lasted at time at.
func (r Run) Duration(at time.Duration) time.Duration {
	return at - r.Since
}

// toggle applies the eye state for a frame and reports whether the eye reopened.
func (r *Run) toggle(closed bool, at time.Duration) bool {
	if closed == r.Closed {
		return false
	}
	reopened := r.Closed && !closed
	if reopened {
		r.LastClosure = at - r.Since
		r.LastBlink = at
		r.HasBlink = true
	}
	r.Closed = closed
	r.Since = at
	return reopened
}

// State is the cross-frame memory of the classifier. It is owned by exactly one
// pipeline and mutated once per frame; it is never rolled back.
type State struct {
	// Started is false until the first face frame after a reset.
	Started bool
	Left    Run
	Right   Run

	// BothClosed is set once both eyes are closed together and cleared when both
	// have reopened.
	BothClosed bool
	// PendingBlink is the completion time of a blink waiting for its pair.
	PendingBlink    time.Duration
	HasPendingBlink bool

	// Region is the gaze bucket held since RegionSince.
	Region      int
	RegionSince time.Duration
	HasRegion   bool

	// LastFrame is the timestamp of the most recent face frame.
	LastFrame time.Duration
	// InGap is set while no-face frames are arriving; GapStart is the first of them.
	InGap    bool
	GapStart time.Duration

	// per-frame double blink event, consumed by the rule list
	doubleBlink    bool
	doubleBlinkGap time.Duration
}

// Reset returns the state to empty, as at session start.
func (s *State) Reset() {
	*s = State{}
}

// begin initializes the eye runs from the first face frame.
func (s *State) begin(in Input) {
	s.Started = true
	s.Left = Run{Closed: in.LeftClosed, Since: in.At}
	s.Right = Run{Closed: in.RightClosed, Since: in.At}
	s.BothClosed = in.LeftClosed && in.RightClosed
}

// shift moves every timer forward by d, freezing them across a short gap.
func (s *State) shift(d time.Duration) {
	s.Left.Since += d
	s.Right.Since += d
	if s.HasRegion {
		s.RegionSince += d
	}
	if s.HasPendingBlink {
		s.PendingBlink += d
	}
}

// Bucket returns the index of the grid cell holding g on a grid×grid layout.
func Bucket(g eye.Gaze, grid int) int {
	if grid < 1 {
		grid = 1
	}
	col := cell(g.X, grid)
	row := cell(g.Y, grid)
	return row*grid + col
}

func cell(v float64, grid int) int {
	c := int(v * float64(grid))
	if c < 0 {
		return 0
	}
	if c >= grid {
		return grid - 1
	}
	return c
}
