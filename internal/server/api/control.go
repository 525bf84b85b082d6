package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/nayana/internal/app"
	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
)

// Controller is the part of the application the control endpoint drives.
type Controller interface {
	Start() error
	Stop() error
	Reset()
	SetThreshold(float64) error
	SetEnabled(bool)
	Tracking() gesture.Config
	SetTracking(gesture.Config) error
	Status() app.Status
}

// Control commands accepted by POST /api/control.
const (
	CommandStart     = "start"
	CommandStop      = "stop"
	CommandReset     = "reset"
	CommandThreshold = "threshold"
	CommandEnable    = "enable"
	CommandDisable   = "disable"
	CommandTracking  = "tracking"
)

// ControlHandler reports and changes the tracking state.
type ControlHandler struct {
	ctl Controller
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(ctl Controller) *ControlHandler {
	return &ControlHandler{ctl: ctl}
}

// controlRequest carries a command. Tracking holds a partial
// app.TrackingSettings object; keys it omits keep their current value.
type controlRequest struct {
	Command  string          `json:"command"`
	Value    *float64        `json:"value,omitempty"`
	Tracking json.RawMessage `json:"tracking,omitempty"`
}

// ServeHTTP handles GET /api/control (status) and POST /api/control
// (command).
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(splitPath(r.URL.Path, "/api/control")) != 0 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctl.Status())
	case http.MethodPost:
		h.command(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ControlHandler) command(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch req.Command {
	case CommandStart:
		if err := h.ctl.Start(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to start: "+err.Error())
			return
		}
	case CommandStop:
		if err := h.ctl.Stop(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to stop: "+err.Error())
			return
		}
	case CommandReset:
		h.ctl.Reset()
	case CommandThreshold:
		if req.Value == nil {
			writeError(w, http.StatusBadRequest, "value is required")
			return
		}
		if err := h.ctl.SetThreshold(*req.Value); err != nil {
			if errors.Is(err, eye.ErrInvalidThreshold) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to set threshold")
			return
		}
	case CommandEnable:
		h.ctl.SetEnabled(true)
	case CommandDisable:
		h.ctl.SetEnabled(false)
	case CommandTracking:
		if len(req.Tracking) == 0 {
			writeError(w, http.StatusBadRequest, "tracking is required")
			return
		}
		settings := app.NewTrackingSettings(h.ctl.Tracking())
		if err := json.Unmarshal(req.Tracking, &settings); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tracking settings")
			return
		}
		if err := h.ctl.SetTracking(settings.Gesture()); err != nil {
			if errors.Is(err, gesture.ErrInvalidConfig) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to set tracking")
			return
		}
	case "":
		writeError(w, http.StatusBadRequest, "command is required")
		return
	default:
		writeError(w, http.StatusBadRequest, "unknown command: "+req.Command)
		return
	}

	writeJSON(w, http.StatusOK, h.ctl.Status())
}
