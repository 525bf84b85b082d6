package tracker

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultFPSWindow is the number of instantaneous rates averaged by FPSMeter.
const DefaultFPSWindow = 30

// FPSMeter computes a rolling average frame rate from frame arrival times.
type FPSMeter struct {
	window  int
	samples []float64
	last    time.Time
}

// NewFPSMeter creates a meter averaging the last window samples.
func NewFPSMeter(window int) *FPSMeter {
	if window < 1 {
		window = DefaultFPSWindow
	}
	return &FPSMeter{
		window:  window,
		samples: make([]float64, 0, window),
	}
}

// Tick records a frame arriving at now and returns the current average.
// The first tick has no interval and returns 0.
func (m *FPSMeter) Tick(now time.Time) float64 {
	if !m.last.IsZero() {
		if dt := now.Sub(m.last).Seconds(); dt > 0 {
			if len(m.samples) == m.window {
				copy(m.samples, m.samples[1:])
				m.samples = m.samples[:m.window-1]
			}
			m.samples = append(m.samples, 1/dt)
		}
	}
	m.last = now
	return m.Average()
}

// Average returns the mean of the retained samples, or 0 if there are none.
func (m *FPSMeter) Average() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	return stat.Mean(m.samples, nil)
}

// Reset clears all samples.
func (m *FPSMeter) Reset() {
	m.samples = m.samples[:0]
	m.last = time.Time{}
}
