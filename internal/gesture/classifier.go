package gesture

import (
	"time"

	"github.com/ayusman/nayana/internal/eye"
)

// Input is one frame of classifier input.
type Input struct {
	// At is the frame timestamp relative to session start.
	At time.Duration
	// Face is false for frames without a usable face.
	Face        bool
	LeftClosed  bool
	RightClosed bool
	Gaze        eye.Optional[eye.Gaze]
}

// Result is the gesture reported for a frame.
type Result struct {
	Label Label
	// Duration is how long the gesture has been held, or for a double blink the
	// gap between the two blinks. Zero for None.
	Duration time.Duration
}

// Rule is one entry of the priority list. Match reports whether the rule fires
// for the current (already updated) state and the duration to report.
type Rule struct {
	Label Label
	Match func(s *State, at time.Duration, cfg Config) (time.Duration, bool)
}

// Classifier maps frames to gesture labels using an ordered rule list; the
// first matching rule wins. Earlier rules take priority.
type Classifier struct {
	cfg   Config
	rules []Rule
}

// NewClassifier creates a classifier with the default rule order:
// left wink, right wink, double blink, sustained gaze.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{
		cfg:   cfg,
		rules: DefaultRules(),
	}
}

// NewClassifierWithRules creates a classifier that evaluates rules in the given order.
func NewClassifierWithRules(cfg Config, rules []Rule) *Classifier {
	c := &Classifier{cfg: cfg}
	c.rules = append(c.rules, rules...)
	return c
}

// Config returns the active thresholds.
func (c *Classifier) Config() Config {
	return c.cfg
}

// SetConfig replaces the thresholds. Existing state is kept.
func (c *Classifier) SetConfig(cfg Config) {
	c.cfg = cfg
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Step advances s by one frame and returns the gesture for that frame.
func (c *Classifier) Step(s *State, in Input) Result {
	if !in.Face {
		c.gap(s, in.At)
		return Result{Label: None}
	}

	if s.InGap {
		c.resume(s, in.At)
	}

	s.doubleBlink = false
	if !s.Started {
		s.begin(in)
	} else {
		c.advance(s, in)
	}
	c.trackGaze(s, in)
	s.LastFrame = in.At

	for _, r := range c.rules {
		if d, ok := r.Match(s, in.At, c.cfg); ok {
			return Result{Label: r.Label, Duration: d}
		}
	}
	return Result{Label: None}
}

// gap records a no-face frame. Timers are frozen while the gap is within
// tolerance and the state is reset once it is exceeded.
func (c *Classifier) gap(s *State, at time.Duration) {
	if !s.Started {
		return
	}
	if !s.InGap {
		s.InGap = true
		s.GapStart = at
	}
	if at-s.LastFrame > c.cfg.GapTolerance {
		s.Reset()
	}
}

// resume ends a gap. A short gap shifts every timer by the time lost; a long
// one starts over.
func (c *Classifier) resume(s *State, at time.Duration) {
	if at-s.LastFrame > c.cfg.GapTolerance {
		s.Reset()
		return
	}
	s.shift(at - s.GapStart)
	s.InGap = false
}

func (c *Classifier) advance(s *State, in Input) {
	leftOpened := s.Left.toggle(in.LeftClosed, in.At)
	rightOpened := s.Right.toggle(in.RightClosed, in.At)

	if in.LeftClosed && in.RightClosed {
		s.BothClosed = true
		return
	}
	if !s.BothClosed || in.LeftClosed || in.RightClosed {
		return
	}
	if !leftOpened && !rightOpened {
		return
	}

	// Both eyes are open again after closing together: one blink completed.
	s.BothClosed = false
	closure := max(s.Left.LastClosure, s.Right.LastClosure)
	if closure >= c.cfg.BlinkMax {
		s.HasPendingBlink = false
		return
	}
	if s.HasPendingBlink && in.At-s.PendingBlink <= c.cfg.DoubleBlinkWindow {
		s.doubleBlink = true
		s.doubleBlinkGap = in.At - s.PendingBlink
		s.HasPendingBlink = false
		return
	}
	s.PendingBlink = in.At
	s.HasPendingBlink = true
}

func (c *Classifier) trackGaze(s *State, in Input) {
	g, ok := in.Gaze.Get()
	if !ok || in.LeftClosed || in.RightClosed {
		s.HasRegion = false
		return
	}
	region := Bucket(g, c.cfg.GazeGrid)
	if s.HasRegion && region == s.Region {
		return
	}
	s.Region = region
	s.RegionSince = in.At
	s.HasRegion = true
}

// DefaultRules returns the standard priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Label: LeftWink, Match: matchLeftWink},
		{Label: RightWink, Match: matchRightWink},
		{Label: DoubleBlink, Match: matchDoubleBlink},
		{Label: SustainedGaze, Match: matchSustainedGaze},
	}
}

func matchLeftWink(s *State, at time.Duration, cfg Config) (time.Duration, bool) {
	return wink(s.Left, s.Right, at, cfg)
}

func matchRightWink(s *State, at time.Duration, cfg Config) (time.Duration, bool) {
	return wink(s.Right, s.Left, at, cfg)
}

// wink fires while the closed eye has been shut for a wink-length interval and
// the other eye has been open for all of it.
func wink(closed, open Run, at time.Duration, cfg Config) (time.Duration, bool) {
	if !closed.Closed || open.Closed || open.Since > closed.Since {
		return 0, false
	}
	d := closed.Duration(at)
	if d < cfg.WinkMin || d > cfg.WinkMax {
		return 0, false
	}
	return d, true
}

func matchDoubleBlink(s *State, _ time.Duration, _ Config) (time.Duration, bool) {
	if !s.doubleBlink {
		return 0, false
	}
	return s.doubleBlinkGap, true
}

func matchSustainedGaze(s *State, at time.Duration, cfg Config) (time.Duration, bool) {
	if !s.HasRegion {
		return 0, false
	}
	d := at - s.RegionSince
	if d <= cfg.SustainedGazeMin {
		return 0, false
	}
	return d, true
}
