package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/tracker"
)

var t0 = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func createSession(t *testing.T, s *Store, id string, started time.Time) {
	t.Helper()
	require.NoError(t, s.Sessions().Create(&Session{ID: id, StartedAt: started, Source: "camera:0", EARThreshold: 0.25}))
}

func sampleRecords(sessionID string, n int) []record.FrameRecord {
	out := make([]record.FrameRecord, n)
	for i := range out {
		rec := record.FrameRecord{
			Timestamp:   t0.Add(time.Duration(i) * 33 * time.Millisecond),
			SessionID:   sessionID,
			FrameNumber: i,
			Gesture:     gesture.None,
			FPS:         30,
		}
		if i%4 != 3 {
			rec.LeftEAR = eye.Some(0.3)
			rec.RightEAR = eye.Some(0.28)
			rec.LeftGaze = eye.Some(eye.Gaze{X: 0.4, Y: 0.5})
			rec.CombinedGaze = eye.Some(eye.Gaze{X: 0.4, Y: 0.5})
		}
		if i%4 == 1 {
			rec.IsBlinking = true
		}
		if i%4 == 2 {
			rec.Gesture = gesture.SustainedGaze
			rec.GestureDuration = 1.25
		}
		out[i] = rec
	}
	return out
}

var timeEqual = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestRecordRepository_RoundTripWithNulls(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	want := sampleRecords("s1", 8)

	require.NoError(t, s.Records().Append(want))

	got, err := s.Records().ListBySession("s1", 0, 0)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, timeEqual); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got[3].LeftEAR.Valid, "no-face frame must read back as absent")
	assert.False(t, got[0].RightGaze.Valid, "absent gaze must stay absent")
}

func TestRecordRepository_Paging(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	require.NoError(t, s.Records().Append(sampleRecords("s1", 10)))

	page, err := s.Records().ListBySession("s1", 3, 4)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []int{4, 5, 6}, []int{page[0].FrameNumber, page[1].FrameNumber, page[2].FrameNumber})

	n, err := s.Records().Count("s1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestRecordRepository_AppendRequiresSession(t *testing.T) {
	s := newTestStore(t)

	err := s.Records().Append(sampleRecords("missing", 2))

	assert.Error(t, err, "foreign key should reject records of an unknown session")
	n, _ := s.Records().Count("missing")
	assert.Zero(t, n, "failed batch must be rolled back")
}

func TestRecordRepository_Stats(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	require.NoError(t, s.Records().Append(sampleRecords("s1", 8)))

	st, err := s.Records().Stats("s1")
	require.NoError(t, err)

	assert.Equal(t, 8, st.TotalFrames)
	assert.Equal(t, 6, st.FramesWithFace)
	assert.Equal(t, 2, st.BlinkFrames)
	assert.InDelta(t, 30, st.AvgFPS, 1e-9)
	assert.Equal(t, 2, st.GestureFrames[gesture.SustainedGaze])
	assert.Equal(t, 6, st.GestureFrames[gesture.None])
}

func TestRecordRepository_StatsCountsOneEyedFrames(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	recs := sampleRecords("s1", 4)
	recs[0].LeftEAR = eye.None[float64]()

	require.NoError(t, s.Records().Append(recs))

	st, err := s.Records().Stats("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.FramesWithFace)
}

func TestRecordRepository_StatsEmpty(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Records().Stats("nothing")
	require.NoError(t, err)
	assert.Zero(t, st.TotalFrames)
	assert.Zero(t, st.AvgFPS)
}

func TestRecordBuffer(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	buf := NewRecordBuffer(s.Records(), 4)

	for _, rec := range sampleRecords("s1", 6) {
		require.NoError(t, buf.Write(rec))
	}

	n, err := s.Records().Count("s1")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "a full buffer is written out")
	assert.Equal(t, 2, buf.Len())

	require.NoError(t, buf.Flush())
	n, err = s.Records().Count("s1")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Zero(t, buf.Len())
	assert.NoError(t, buf.Flush(), "flushing an empty buffer is a no-op")
}

func TestSessionRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()
	createSession(t, s, "old", t0)
	createSession(t, s, "new", t0.Add(time.Hour))

	got, err := repo.GetByID("old")
	require.NoError(t, err)
	assert.Nil(t, got.EndedAt)
	assert.Equal(t, "camera:0", got.Source)
	assert.Empty(t, got.GestureCounts)

	sum := tracker.Summary{
		TotalFrames:    120,
		FramesWithFace: 100,
		Blinks:         4,
		GestureCounts:  map[gesture.Label]int{gesture.LeftWink: 2, gesture.DoubleBlink: 1},
		AvgFPS:         29.7,
		MeanEAR:        0.28,
		StdDevEAR:      0.04,
	}
	ended := t0.Add(4 * time.Second)
	require.NoError(t, repo.End("old", ended, sum))

	got, err = repo.GetByID("old")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(ended))
	assert.Equal(t, 120, got.TotalFrames)
	assert.Equal(t, 4, got.Blinks)
	assert.InDelta(t, 29.7, got.AvgFPS, 1e-9)
	if diff := cmp.Diff(sum.GestureCounts, got.GestureCounts, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("gesture counts mismatch (-want +got):\n%s", diff)
	}

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, 2, list[1].GestureCounts[gesture.LeftWink])

	assert.ErrorIs(t, repo.End("missing", ended, sum), ErrNotFound)
	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, "s1", t0)
	require.NoError(t, s.Records().Append(sampleRecords("s1", 5)))

	require.NoError(t, s.Sessions().Delete("s1"))

	n, err := s.Records().Count("s1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, s.Sessions().Delete("s1"), ErrNotFound)
}
