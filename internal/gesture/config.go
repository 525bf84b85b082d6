package gesture

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid gesture config")

// Config holds the temporal thresholds of the classifier. All values are
// wall-clock durations so that classification does not depend on frame rate.
type Config struct {
	// WinkMin and WinkMax bound the closed duration of a wink (inclusive).
	WinkMin time.Duration
	WinkMax time.Duration
	// BlinkMax is the longest closure that still counts as a blink.
	BlinkMax time.Duration
	// DoubleBlinkWindow is the largest gap between two blink completions.
	DoubleBlinkWindow time.Duration
	// SustainedGazeMin is how long gaze must stay in one region.
	SustainedGazeMin time.Duration
	// GapTolerance is how long no-face frames freeze timers before a reset.
	GapTolerance time.Duration
	// GazeGrid is the number of region buckets per axis.
	GazeGrid int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		WinkMin:           200 * time.Millisecond,
		WinkMax:           500 * time.Millisecond,
		BlinkMax:          200 * time.Millisecond,
		DoubleBlinkWindow: 500 * time.Millisecond,
		SustainedGazeMin:  time.Second,
		GapTolerance:      300 * time.Millisecond,
		GazeGrid:          3,
	}
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	switch {
	case c.WinkMin <= 0 || c.WinkMax <= 0:
		return fmt.Errorf("%w: wink durations must be positive", ErrInvalidConfig)
	case c.WinkMin > c.WinkMax:
		return fmt.Errorf("%w: wink min %v exceeds max %v", ErrInvalidConfig, c.WinkMin, c.WinkMax)
	case c.BlinkMax <= 0:
		return fmt.Errorf("%w: blink max must be positive", ErrInvalidConfig)
	case c.DoubleBlinkWindow <= 0:
		return fmt.Errorf("%w: double blink window must be positive", ErrInvalidConfig)
	case c.SustainedGazeMin <= 0:
		return fmt.Errorf("%w: sustained gaze minimum must be positive", ErrInvalidConfig)
	case c.GapTolerance < 0:
		return fmt.Errorf("%w: gap tolerance must not be negative", ErrInvalidConfig)
	case c.GazeGrid < 1:
		return fmt.Errorf("%w: gaze grid must be at least 1", ErrInvalidConfig)
	}
	return nil
}
