package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/tracker"
)

var t0 = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func records(n int) []record.FrameRecord {
	out := make([]record.FrameRecord, n)
	for i := range out {
		out[i] = record.FrameRecord{
			Timestamp:   t0.Add(time.Duration(i) * time.Second),
			SessionID:   "s",
			FrameNumber: i,
			Gesture:     gesture.None,
			FPS:         30,
		}
		if i%2 == 0 {
			out[i].LeftEAR = eye.Some(0.3)
			out[i].RightEAR = eye.Some(0.3)
		}
	}
	return out
}

// countingWriter counts Write calls reaching the destination.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestCSVWriter_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf, 10)
	require.NoError(t, err)

	for _, rec := range records(3) {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Flush())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, record.Header(), rows[0])
	assert.Equal(t, "0", rows[1][2])
	assert.Equal(t, "0.3", rows[1][3])
	assert.Equal(t, "", rows[2][3], "no-face row leaves EAR empty")
}

func TestCSVWriter_FlushesEveryN(t *testing.T) {
	var dst countingWriter
	w, err := NewCSVWriter(&dst, 5)
	require.NoError(t, err)

	for _, rec := range records(4) {
		require.NoError(t, w.Write(rec))
	}
	assert.Zero(t, dst.writes, "rows stay buffered until the batch is full")

	require.NoError(t, w.Write(records(5)[4]))
	assert.Equal(t, 1, dst.writes)
	assert.Equal(t, 6, strings.Count(dst.String(), "\n"))
}

func TestCSVWriter_EmptyFileHasHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "empty.csv")
	w, err := CreateCSV(path, DefaultFlushEvery)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(record.Header(), ",")+"\n", string(data))
}

type sliceSource []record.FrameRecord

func (s sliceSource) Each(sessionID string, fn func(record.FrameRecord) error) error {
	for _, r := range s {
		if r.SessionID != sessionID {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) Each(string, func(record.FrameRecord) error) error {
	return errors.New("disk on fire")
}

func TestWriteSession(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteSession(&buf, sliceSource(records(250)), "s"))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 251)

	assert.Error(t, WriteSession(&bytes.Buffer{}, failingSource{}, "s"))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	sum := tracker.Summary{
		SessionID:      "abc",
		TotalFrames:    300,
		FramesWithFace: 290,
		Blinks:         7,
		GestureCounts:  map[gesture.Label]int{gesture.LeftWink: 2},
		AvgFPS:         29.456,
		MeanEAR:        0.2812,
		StdDevEAR:      0.0421,
	}

	require.NoError(t, WriteSummary(&buf, sum, t0, "data/x.csv"))

	out := buf.String()
	for _, want := range []string{
		"Session ID: abc\n",
		"Date: 2026-02-03 04:05:06\n",
		"Total Frames: 300\n",
		"Total Blinks: 7\n",
		"Average FPS: 29.46\n",
		"  left_wink: 2\n",
		"  double_blink: 0\n",
		"Data File: data/x.csv\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "  none:")
}

func TestPaths(t *testing.T) {
	csvPath, summaryPath := Paths("data", "20260203_040506")

	assert.Equal(t, filepath.Join("data", "eye_tracking_session_20260203_040506.csv"), csvPath)
	assert.Equal(t, filepath.Join("data", "session_summary_20260203_040506.txt"), summaryPath)
}

func TestSaveSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.txt")

	require.NoError(t, SaveSummary(path, tracker.Summary{SessionID: "z"}, t0, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Eye Tracking Session Summary\n"))
}
