package eye

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold is the EAR below which an eye counts as closed.
const DefaultThreshold = 0.25

// ErrInvalidThreshold is returned for a non-positive EAR threshold.
var ErrInvalidThreshold = errors.New("invalid EAR threshold")

// EyeState is the open/closed state of one eye for one frame.
type EyeState struct {
	Closed bool
	EAR    float64
}

// State is the open/closed state of both eyes for one frame.
type State struct {
	Left  EyeState
	Right EyeState
}

// Blinking reports whether both eyes are closed.
func (s State) Blinking() bool {
	return s.Left.Closed && s.Right.Closed
}

// ValidateThreshold checks that an EAR threshold is usable.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Classify thresholds both eyes with the same threshold. It keeps no state.
// A degenerate eye is never closed.
func Classify(m Metrics, threshold float64) State {
	return State{
		Left:  classifyEye(m.Left, threshold),
		Right: classifyEye(m.Right, threshold),
	}
}

func classifyEye(e EyeMetrics, threshold float64) EyeState {
	return EyeState{Closed: !e.Degenerate && e.EAR < threshold, EAR: e.EAR}
}
