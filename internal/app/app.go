// Package app runs the eye tracking session: it reads frames from a capture
// source, turns them into frame records and fans those out to storage, export
// files, live listeners and gesture-bound plugin actions.
package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/nayana/internal/capture"
	"github.com/ayusman/nayana/internal/config"
	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/landmark"
	"github.com/ayusman/nayana/internal/logging"
	"github.com/ayusman/nayana/internal/plugin"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/store"
	"github.com/ayusman/nayana/internal/tracker"
)

// Config holds configuration options for the application. Camera and
// Detector are built from defaults when nil; Store may be nil, which
// disables persistence and actions.
type Config struct {
	Store         *store.Store
	Camera        capture.Camera
	Detector      landmark.Detector
	Tracking      gesture.Config
	EARThreshold  float64
	PluginDir     string
	PluginTimeout time.Duration
	BufferSize    int
	ExportCSV     bool
	ExportDir     string
	FlushEvery    int
	PreviewMask   bool
}

// FromConfig builds the application config from the loaded file config.
func FromConfig(cfg *config.Config, st *store.Store) Config {
	var cam capture.Camera
	if cfg.Capture.File != "" {
		cam = capture.NewVideoFile(cfg.Capture.File)
	} else {
		cam = capture.NewCameraWithConfig(cfg.Capture.Device, capture.Config{
			Width:  cfg.Capture.Width,
			Height: cfg.Capture.Height,
			FPS:    cfg.Capture.FPS,
		})
	}

	var det landmark.Detector
	mp, err := landmark.NewMediaPipeDetector(landmark.Config{
		MinConfidence:   cfg.Detector.MinDetectionConfidence,
		MinTrackingConf: cfg.Detector.MinTrackingConfidence,
		ScriptPath:      cfg.Detector.ScriptPath,
	})
	if err == nil {
		det = mp
	} else {
		logging.Warn(logging.Fields{"error": err.Error()}, "MediaPipe not available, using mock detector")
	}

	return Config{
		Store:         st,
		Camera:        cam,
		Detector:      det,
		Tracking:      cfg.Tracking.Gesture(),
		EARThreshold:  cfg.Tracking.EARThreshold,
		PluginDir:     cfg.Plugins.Dir,
		PluginTimeout: cfg.Plugins.PluginTimeout(),
		BufferSize:    cfg.Store.BufferSize,
		ExportCSV:     cfg.Export.CSV,
		ExportDir:     cfg.Export.Dir,
		FlushEvery:    cfg.Export.FlushEvery,
		PreviewMask:   cfg.Server.PreviewMask,
	}
}

// Listener receives every frame record of a running session. Listeners are
// called on the capture goroutine and must not block.
type Listener func(record.FrameRecord)

// Status is a snapshot of the application state.
type Status struct {
	Running       bool                  `json:"running"`
	Enabled       bool                  `json:"enabled"`
	SessionID     string                `json:"session_id,omitempty"`
	Source        string                `json:"source"`
	EARThreshold  float64               `json:"ear_threshold"`
	FPS           float64               `json:"fps"`
	TotalFrames   int                   `json:"total_frames"`
	Blinks        int                   `json:"blinks"`
	LastGesture   gesture.Label         `json:"last_gesture"`
	GestureCounts map[gesture.Label]int `json:"gesture_counts"`
	Tracking      TrackingSettings      `json:"tracking"`
}

// App is the main application that orchestrates eye tracking and action
// execution.
type App struct {
	config     Config
	camera     capture.Camera
	detector   landmark.Detector
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor
	preview    *preview
	overlay    *overlay

	// mu guards the control state below.
	mu          sync.RWMutex
	enabled     bool
	threshold   float64
	sess        *session
	listeners   []Listener
	lastGesture gesture.Label

	// pmu guards the pipeline and fps meter, which the capture goroutine
	// drives and control calls reset.
	pmu      sync.Mutex
	pipeline *tracker.Pipeline
	fps      *tracker.FPSMeter

	actions sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Tracking == (gesture.Config{}) {
		config.Tracking = gesture.DefaultConfig()
	}
	if eye.ValidateThreshold(config.EARThreshold) != nil {
		config.EARThreshold = eye.DefaultThreshold
	}

	a := &App{
		config:      config,
		camera:      config.Camera,
		detector:    config.Detector,
		pluginMgr:   plugin.NewManager(config.PluginDir),
		pluginExec:  plugin.NewExecutor(config.PluginTimeout),
		preview:     newPreview(),
		overlay:     newOverlay(config.PreviewMask),
		enabled:     true,
		threshold:   config.EARThreshold,
		lastGesture: gesture.None,
		pipeline:    tracker.NewPipeline(config.Tracking),
		fps:         tracker.NewFPSMeter(tracker.DefaultFPSWindow),
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(0)
	}
	if a.detector == nil {
		a.detector = landmark.NewMockDetector()
	}

	return a
}

// LoadSettings restores the persisted threshold and enabled flag.
func (a *App) LoadSettings() error {
	if a.config.Store == nil {
		return nil
	}
	settings := a.config.Store.Settings()

	threshold, err := settings.GetFloat(store.SettingEARThreshold, a.Threshold())
	if err != nil {
		return err
	}
	if err := eye.ValidateThreshold(threshold); err != nil {
		logging.Warn(logging.Fields{"value": threshold}, "ignoring persisted threshold")
		threshold = a.config.EARThreshold
	}

	enabled := true
	if raw, err := settings.Get(store.SettingEnabled); err == nil {
		enabled = raw != "false"
	}

	a.mu.Lock()
	a.threshold = threshold
	a.enabled = enabled
	a.mu.Unlock()
	return nil
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// SetEnabled pauses or resumes frame processing. The gesture state is
// cleared on resume so timers do not span the pause.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	resumed := enabled && !a.enabled
	a.enabled = enabled
	a.mu.Unlock()

	if resumed {
		a.pmu.Lock()
		a.pipeline.ResetState()
		a.pmu.Unlock()
	}
	a.persist(store.SettingEnabled, fmt.Sprint(enabled))
	logging.Info(logging.Fields{"enabled": enabled}, "tracking toggled")
}

// IsEnabled returns whether frame processing is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetThreshold validates and applies a new EAR threshold. It takes effect
// from the next frame.
func (a *App) SetThreshold(threshold float64) error {
	if err := eye.ValidateThreshold(threshold); err != nil {
		return err
	}
	a.mu.Lock()
	a.threshold = threshold
	a.mu.Unlock()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetFloat(store.SettingEARThreshold, threshold); err != nil {
			return fmt.Errorf("failed to persist threshold: %w", err)
		}
	}
	logging.Info(logging.Fields{"ear_threshold": threshold}, "threshold updated")
	return nil
}

// Threshold returns the active EAR threshold.
func (a *App) Threshold() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threshold
}

// SetTracking replaces the gesture thresholds.
func (a *App) SetTracking(cfg gesture.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.pmu.Lock()
	a.pipeline.SetConfig(cfg)
	a.pmu.Unlock()
	logging.Info(logging.Fields{
		"wink_min":  cfg.WinkMin.String(),
		"wink_max":  cfg.WinkMax.String(),
		"blink_max": cfg.BlinkMax.String(),
		"gaze_min":  cfg.SustainedGazeMin.String(),
		"gaze_grid": cfg.GazeGrid,
	}, "tracking config updated")
	return nil
}

// Tracking returns the active gesture thresholds.
func (a *App) Tracking() gesture.Config {
	a.pmu.Lock()
	defer a.pmu.Unlock()
	return a.pipeline.Config()
}

// Reset clears the gesture state and the session counters.
func (a *App) Reset() {
	a.pmu.Lock()
	a.pipeline.ResetCounters()
	a.fps.Reset()
	a.pmu.Unlock()
	a.overlay.reset()

	a.mu.Lock()
	a.lastGesture = gesture.None
	a.mu.Unlock()
	logging.Info(nil, "counters reset")
}

// AddListener registers fn for every frame record.
func (a *App) AddListener(fn Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Preview subscribes to JPEG-encoded frames of the running session. Call the
// returned function to unsubscribe.
func (a *App) Preview() (<-chan []byte, func()) {
	return a.preview.subscribe()
}

// IsRunning reports whether a session is in progress.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sess != nil
}

// Status returns a snapshot of the application state.
func (a *App) Status() Status {
	a.pmu.Lock()
	sum := a.pipeline.Summary()
	fps := a.fps.Average()
	tracking := a.pipeline.Config()
	a.pmu.Unlock()

	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		Running:       a.sess != nil,
		Enabled:       a.enabled,
		Source:        a.camera.Source(),
		EARThreshold:  a.threshold,
		FPS:           fps,
		TotalFrames:   sum.TotalFrames,
		Blinks:        sum.Blinks,
		LastGesture:   a.lastGesture,
		GestureCounts: sum.GestureCounts,
		Tracking:      NewTrackingSettings(tracking),
	}
	if a.sess != nil {
		st.SessionID = a.sess.id
	}
	return st
}

// Camera returns the capture source.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the landmark detector.
func (a *App) Detector() landmark.Detector {
	return a.detector
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Close stops any running session and releases the detector.
func (a *App) Close() error {
	if err := a.Stop(); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "failed to stop session")
	}
	return a.detector.Close()
}

func (a *App) persist(key, value string) {
	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Settings().Set(key, value); err != nil {
		logging.Warn(logging.Fields{"key": key, "error": err.Error()}, "failed to persist setting")
	}
}
