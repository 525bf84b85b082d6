package app

import (
	"math"
	"time"

	"github.com/ayusman/nayana/internal/gesture"
)

// TrackingSettings is the gesture configuration as exchanged with clients.
// Durations are in seconds and the keys match the tracking section of the
// config file.
type TrackingSettings struct {
	SustainedGazeMinDuration float64    `json:"sustained_gaze_min_duration"`
	WinkDurationRange        [2]float64 `json:"wink_duration_range"`
	BlinkMaxDuration         float64    `json:"blink_max_duration"`
	DoubleBlinkWindow        float64    `json:"double_blink_window"`
	GapTolerance             float64    `json:"gap_tolerance"`
	GazeGrid                 int        `json:"gaze_grid"`
}

// NewTrackingSettings converts a classifier config to settings.
func NewTrackingSettings(c gesture.Config) TrackingSettings {
	return TrackingSettings{
		SustainedGazeMinDuration: c.SustainedGazeMin.Seconds(),
		WinkDurationRange:        [2]float64{c.WinkMin.Seconds(), c.WinkMax.Seconds()},
		BlinkMaxDuration:         c.BlinkMax.Seconds(),
		DoubleBlinkWindow:        c.DoubleBlinkWindow.Seconds(),
		GapTolerance:             c.GapTolerance.Seconds(),
		GazeGrid:                 c.GazeGrid,
	}
}

// Gesture converts the settings back to a classifier config. The result is
// not validated.
func (s TrackingSettings) Gesture() gesture.Config {
	return gesture.Config{
		WinkMin:           seconds(s.WinkDurationRange[0]),
		WinkMax:           seconds(s.WinkDurationRange[1]),
		BlinkMax:          seconds(s.BlinkMaxDuration),
		DoubleBlinkWindow: seconds(s.DoubleBlinkWindow),
		SustainedGazeMin:  seconds(s.SustainedGazeMinDuration),
		GapTolerance:      seconds(s.GapTolerance),
		GazeGrid:          s.GazeGrid,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
