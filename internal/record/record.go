// Package record assembles the flat per-frame output record.
package record

import (
	"strconv"
	"time"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
)

// TimeFormat is the timestamp layout used in CSV rows.
const TimeFormat = "2006-01-02T15:04:05.000000"

// FrameRecord is the output for one processed frame. Values that could not be
// measured are absent rather than zero.
type FrameRecord struct {
	Timestamp       time.Time              `json:"timestamp"`
	SessionID       string                 `json:"session_id"`
	FrameNumber     int                    `json:"frame_number"`
	LeftEAR         eye.Optional[float64]  `json:"left_ear"`
	RightEAR        eye.Optional[float64]  `json:"right_ear"`
	LeftGaze        eye.Optional[eye.Gaze] `json:"left_gaze"`
	RightGaze       eye.Optional[eye.Gaze] `json:"right_gaze"`
	CombinedGaze    eye.Optional[eye.Gaze] `json:"combined_gaze"`
	IsBlinking      bool                   `json:"is_blinking"`
	Gesture         gesture.Label          `json:"gesture"`
	GestureDuration float64                `json:"gesture_duration"`
	FPS             float64                `json:"fps"`
}

// Input carries everything Build needs for one frame. Metrics is ignored when
// Face is false.
type Input struct {
	Timestamp   time.Time
	SessionID   string
	FrameNumber int
	Face        bool
	Metrics     eye.Metrics
	Blink       eye.State
	Gesture     gesture.Result
	FPS         float64
}

// Build creates the record for one frame.
func Build(in Input) FrameRecord {
	r := FrameRecord{
		Timestamp:   in.Timestamp,
		SessionID:   in.SessionID,
		FrameNumber: in.FrameNumber,
		Gesture:     gesture.None,
		FPS:         in.FPS,
	}
	if !in.Face {
		return r
	}

	r.LeftEAR = earOf(in.Metrics.Left)
	r.RightEAR = earOf(in.Metrics.Right)
	r.LeftGaze = in.Metrics.Left.Gaze
	r.RightGaze = in.Metrics.Right.Gaze
	r.CombinedGaze = in.Metrics.Combined
	r.IsBlinking = in.Blink.Blinking()
	if in.Gesture.Label != "" {
		r.Gesture = in.Gesture.Label
	}
	if r.Gesture != gesture.None {
		r.GestureDuration = in.Gesture.Duration.Seconds()
	}
	return r
}

// Header returns the CSV column names in output order.
func Header() []string {
	return []string{
		"timestamp",
		"session_id",
		"frame_number",
		"left_ear",
		"right_ear",
		"left_gaze_x",
		"left_gaze_y",
		"right_gaze_x",
		"right_gaze_y",
		"combined_gaze_x",
		"combined_gaze_y",
		"is_blinking",
		"gesture",
		"gesture_duration",
		"fps",
	}
}

// CSVRow returns the record as CSV cells in Header order. Absent values are
// empty cells.
func (r FrameRecord) CSVRow() []string {
	lx, ly := gazeCells(r.LeftGaze)
	rx, ry := gazeCells(r.RightGaze)
	cx, cy := gazeCells(r.CombinedGaze)
	return []string{
		r.Timestamp.Format(TimeFormat),
		r.SessionID,
		strconv.Itoa(r.FrameNumber),
		optionalCell(r.LeftEAR),
		optionalCell(r.RightEAR),
		lx, ly,
		rx, ry,
		cx, cy,
		strconv.FormatBool(r.IsBlinking),
		string(r.Gesture),
		formatFloat(r.GestureDuration),
		formatFloat(r.FPS),
	}
}

// HasFace reports whether the frame carried a usable face, that is at least
// one eye with a measured EAR.
func (r FrameRecord) HasFace() bool {
	return r.LeftEAR.Valid || r.RightEAR.Valid
}

func earOf(m eye.EyeMetrics) eye.Optional[float64] {
	if m.Degenerate {
		return eye.None[float64]()
	}
	return eye.Some(m.EAR)
}

func optionalCell(o eye.Optional[float64]) string {
	v, ok := o.Get()
	if !ok {
		return ""
	}
	return formatFloat(v)
}

func gazeCells(o eye.Optional[eye.Gaze]) (string, string) {
	g, ok := o.Get()
	if !ok {
		return "", ""
	}
	return formatFloat(g.X), formatFloat(g.Y)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
