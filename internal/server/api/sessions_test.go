package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/store"
	"github.com/ayusman/nayana/internal/tracker"
)

var sessionStart = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

// createTestSession stores an ended session with n records. Every third
// frame has no face.
func createTestSession(t *testing.T, s *store.Store, id string, n int) {
	t.Helper()

	if err := s.Sessions().Create(&store.Session{
		ID:           id,
		StartedAt:    sessionStart,
		Source:       "mock",
		EARThreshold: 0.25,
	}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	records := make([]record.FrameRecord, n)
	for i := range records {
		rec := record.FrameRecord{
			Timestamp:   sessionStart.Add(time.Duration(i) * 33 * time.Millisecond),
			SessionID:   id,
			FrameNumber: i,
			Gesture:     gesture.None,
			FPS:         30,
		}
		if i%3 != 2 {
			rec.LeftEAR = eye.Some(0.3)
			rec.RightEAR = eye.Some(0.3)
		}
		records[i] = rec
	}
	if err := s.Records().Append(records); err != nil {
		t.Fatalf("failed to append records: %v", err)
	}

	sum := tracker.Summary{
		SessionID:      id,
		StartedAt:      sessionStart,
		TotalFrames:    n,
		FramesWithFace: n - n/3,
		Blinks:         2,
		GestureCounts:  map[gesture.Label]int{gesture.LeftWink: 1},
		AvgFPS:         30,
		MeanEAR:        0.3,
	}
	if err := s.Sessions().End(id, sessionStart.Add(time.Minute), sum); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
}

func TestSessionHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 6)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(response.Sessions))
	}

	got := response.Sessions[0]
	if got.ID != "session-1" {
		t.Errorf("expected session-1, got %s", got.ID)
	}
	if got.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}
	if got.TotalFrames != 6 {
		t.Errorf("expected 6 frames, got %d", got.TotalFrames)
	}
	if got.GestureCounts[gesture.LeftWink] != 1 {
		t.Errorf("expected 1 left wink, got %d", got.GestureCounts[gesture.LeftWink])
	}
}

func TestSessionHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 6)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response sessionDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Blinks != 2 {
		t.Errorf("expected 2 blinks, got %d", response.Blinks)
	}
	if response.Stored == nil {
		t.Fatal("expected stored statistics")
	}
	if response.Stored.TotalFrames != 6 {
		t.Errorf("expected 6 stored frames, got %d", response.Stored.TotalFrames)
	}
	if response.Stored.FramesWithFace != 4 {
		t.Errorf("expected 4 frames with face, got %d", response.Stored.FramesWithFace)
	}
}

func TestSessionHandler_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	for _, path := range []string{
		"/api/sessions/missing",
		"/api/sessions/missing/records",
		"/api/sessions/missing/export",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestSessionHandler_Records(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 10)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1/records?limit=4&offset=3", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var response listRecordsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 10 {
		t.Errorf("expected total 10, got %d", response.Total)
	}
	if len(response.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(response.Records))
	}
	if response.Records[0].FrameNumber != 3 {
		t.Errorf("expected first frame 3, got %d", response.Records[0].FrameNumber)
	}
	if response.Records[2].LeftEAR.Valid {
		t.Error("expected frame 5 to have no EAR")
	}
}

func TestSessionHandler_RecordsInvalidPaging(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 3)

	for _, query := range []string{"limit=0", "limit=abc", "offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1/records?"+query, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", query, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestSessionHandler_Export(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1/export", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected Content-Type text/csv, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "eye_tracking_session_session-1.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header and 5 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("expected header to start with timestamp, got %s", rows[0][0])
	}
	if rows[3][3] != "" {
		t.Errorf("expected empty left_ear for faceless frame, got %q", rows[3][3])
	}
}

// stallingWriter blocks every Write until release is closed.
type stallingWriter struct {
	header  http.Header
	started chan struct{}
	release chan struct{}
	once    sync.Once
	body    bytes.Buffer
}

func newStallingWriter() *stallingWriter {
	return &stallingWriter{
		header:  make(http.Header),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *stallingWriter) Header() http.Header { return w.header }

func (w *stallingWriter) WriteHeader(int) {}

func (w *stallingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	<-w.release
	return w.body.Write(p)
}

func TestSessionHandler_ExportSlowClientDoesNotBlockAppend(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 2000)

	w := newStallingWriter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1/export", nil)
		handler.ServeHTTP(w, req)
	}()

	select {
	case <-w.started:
	case <-time.After(5 * time.Second):
		t.Fatal("export never wrote to the client")
	}

	appended := make(chan error, 1)
	go func() {
		appended <- s.Records().Append([]record.FrameRecord{{
			Timestamp:   sessionStart.Add(time.Hour),
			SessionID:   "session-1",
			FrameNumber: 2000,
			Gesture:     gesture.None,
		}})
	}()

	select {
	case err := <-appended:
		if err != nil {
			t.Errorf("append failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("append blocked behind a stalled export")
	}

	close(w.release)
	<-done

	rows, err := csv.NewReader(&w.body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != 2001 {
		t.Errorf("expected header and 2000 rows, got %d", len(rows))
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	createTestSession(t, s, "session-1", 3)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/session-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	count, err := s.Records().Count("session-1")
	if err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if count != 0 {
		t.Errorf("expected records to be deleted, got %d", count)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/session-1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_UnknownRoute(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/a/b/c", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
