package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ayusman/nayana/internal/export"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/logging"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/store"
)

// DefaultRecordLimit is the page size for record listings.
const DefaultRecordLimit = 100

// SessionHandler serves recorded sessions and their frame records.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes:
//
//	GET    /api/sessions
//	GET    /api/sessions/{id}
//	DELETE /api/sessions/{id}
//	GET    /api/sessions/{id}/records?limit=&offset=
//	GET    /api/sessions/{id}/export
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/sessions")

	switch {
	case len(parts) == 0:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "records":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.records(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "export":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type sessionResponse struct {
	ID             string                `json:"id"`
	StartedAt      string                `json:"started_at"`
	EndedAt        *string               `json:"ended_at"`
	Source         string                `json:"source"`
	EARThreshold   float64               `json:"ear_threshold"`
	TotalFrames    int                   `json:"total_frames"`
	FramesWithFace int                   `json:"frames_with_face"`
	Blinks         int                   `json:"blinks"`
	AvgFPS         float64               `json:"avg_fps"`
	MeanEAR        float64               `json:"mean_ear"`
	StdDevEAR      float64               `json:"stddev_ear"`
	GestureCounts  map[gesture.Label]int `json:"gesture_counts"`
}

type sessionDetailResponse struct {
	sessionResponse
	Stored *store.RecordStats `json:"stored"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type listRecordsResponse struct {
	Records []record.FrameRecord `json:"records"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:             s.ID,
		StartedAt:      s.StartedAt.Format(time.RFC3339),
		Source:         s.Source,
		EARThreshold:   s.EARThreshold,
		TotalFrames:    s.TotalFrames,
		FramesWithFace: s.FramesWithFace,
		Blinks:         s.Blinks,
		AvgFPS:         s.AvgFPS,
		MeanEAR:        s.MeanEAR,
		StdDevEAR:      s.StdDevEAR,
		GestureCounts:  s.GestureCounts,
	}
	if resp.GestureCounts == nil {
		resp.GestureCounts = map[gesture.Label]int{}
	}
	if s.EndedAt != nil {
		ended := s.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &ended
	}
	return resp
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := h.lookup(w, id)
	if !ok {
		return
	}

	stats, err := h.store.Records().Stats(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load record statistics")
		return
	}

	writeJSON(w, http.StatusOK, sessionDetailResponse{
		sessionResponse: toSessionResponse(s),
		Stored:          stats,
	})
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// records handles GET /api/sessions/{id}/records.
func (h *SessionHandler) records(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	limit, err := queryInt(r, "limit", DefaultRecordLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	records, err := h.store.Records().ListBySession(id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}
	total, err := h.store.Records().Count(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count records")
		return
	}
	if records == nil {
		records = []record.FrameRecord{}
	}

	writeJSON(w, http.StatusOK, listRecordsResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// export handles GET /api/sessions/{id}/export and streams the session as CSV.
func (h *SessionHandler) export(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	// The store holds a single connection, so rows are read in full before
	// a slow client is written to.
	var buf bytes.Buffer
	if err := export.WriteSession(&buf, h.store.Records(), id); err != nil {
		logging.Error(logging.Fields{"session": id, "error": err.Error()}, "csv export failed")
		writeError(w, http.StatusInternalServerError, "failed to export session")
		return
	}

	csvPath, _ := export.Paths("", id)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(csvPath)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Warn(logging.Fields{"session": id, "error": err.Error()}, "csv export write failed")
	}
}

func (h *SessionHandler) lookup(w http.ResponseWriter, id string) (*store.Session, bool) {
	s, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return s, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
