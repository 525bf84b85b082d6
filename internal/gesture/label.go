// Package gesture classifies eye gestures (winks, double blinks, sustained gaze)
// from the per-frame eye-state and gaze streams.
package gesture

import "fmt"

// Label names the gesture reported for a frame.
type Label string

const (
	// None means no gesture is active.
	None Label = "none"
	// LeftWink is a short closure of the left eye while the right eye stays open.
	LeftWink Label = "left_wink"
	// RightWink is a short closure of the right eye while the left eye stays open.
	RightWink Label = "right_wink"
	// DoubleBlink is two quick both-eye blinks in a short window.
	DoubleBlink Label = "double_blink"
	// SustainedGaze is gaze held in one screen region.
	SustainedGaze Label = "sustained_gaze"
)

// Labels returns every label, None first.
func Labels() []Label {
	return []Label{None, LeftWink, RightWink, DoubleBlink, SustainedGaze}
}

// ParseLabel converts a string to a Label.
func ParseLabel(s string) (Label, error) {
	for _, l := range Labels() {
		if string(l) == s {
			return l, nil
		}
	}
	return None, fmt.Errorf("unknown gesture %q", s)
}

func (l Label) String() string {
	return string(l)
}

// Onset reports whether cur starts a new gesture after prev.
func Onset(prev, cur Label) bool {
	return cur != None && cur != "" && cur != prev
}
