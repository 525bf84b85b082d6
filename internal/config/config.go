// Package config loads application configuration from a YAML file, an
// optional .env file and NAYANA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NAYANA_"

// Config is the full application configuration.
type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Store    StoreConfig    `yaml:"store"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Log      logging.Config `yaml:"log"`
	Tray     TrayConfig     `yaml:"tray"`
}

// TrackingConfig holds the eye-signal thresholds. Durations are in seconds.
type TrackingConfig struct {
	EARThreshold             float64    `yaml:"ear_threshold"`
	SustainedGazeMinDuration float64    `yaml:"sustained_gaze_min_duration"`
	WinkDurationRange        [2]float64 `yaml:"wink_duration_range"`
	BlinkMaxDuration         float64    `yaml:"blink_max_duration"`
	DoubleBlinkWindow        float64    `yaml:"double_blink_window"`
	GapTolerance             float64    `yaml:"gap_tolerance"`
	GazeGrid                 int        `yaml:"gaze_grid"`
}

// CaptureConfig selects the frame source. A non-empty File takes precedence
// over the camera device.
type CaptureConfig struct {
	Device int    `yaml:"device"`
	File   string `yaml:"file"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// DetectorConfig configures the face-mesh landmark service.
type DetectorConfig struct {
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	ScriptPath             string  `yaml:"script_path"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// ExportConfig configures per-session CSV and summary files.
type ExportConfig struct {
	Dir        string `yaml:"dir"`
	CSV        bool   `yaml:"csv"`
	FlushEvery int    `yaml:"flush_every"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`

	// PreviewMask draws the preview overlay on black instead of the camera
	// image.
	PreviewMask bool `yaml:"preview_mask"`
}

// PluginsConfig configures action plugins.
type PluginsConfig struct {
	Dir     string  `yaml:"dir"`
	Timeout float64 `yaml:"timeout"`
}

// TrayConfig configures the system tray icon.
type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".nayana")
	g := gesture.DefaultConfig()

	return &Config{
		Tracking: TrackingConfig{
			EARThreshold:             eye.DefaultThreshold,
			SustainedGazeMinDuration: g.SustainedGazeMin.Seconds(),
			WinkDurationRange:        [2]float64{g.WinkMin.Seconds(), g.WinkMax.Seconds()},
			BlinkMaxDuration:         g.BlinkMax.Seconds(),
			DoubleBlinkWindow:        g.DoubleBlinkWindow.Seconds(),
			GapTolerance:             g.GapTolerance.Seconds(),
			GazeGrid:                 g.GazeGrid,
		},
		Capture: CaptureConfig{
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Detector: DetectorConfig{
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
		},
		Store: StoreConfig{
			Path:       filepath.Join(base, "nayana.db"),
			BufferSize: 100,
		},
		Export: ExportConfig{
			Dir:        "data",
			FlushEvery: 100,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(base, "plugins"),
			Timeout: 5,
		},
		Log: logging.Config{
			Level: "info",
		},
		Tray: TrayConfig{
			Enabled: true,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides, and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if err := eye.ValidateThreshold(c.Tracking.EARThreshold); err != nil {
		return fmt.Errorf("tracking.ear_threshold: %w", err)
	}
	if err := c.Tracking.Gesture().Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	if c.Capture.Device < 0 {
		return fmt.Errorf("capture.device must not be negative")
	}
	if c.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Plugins.Timeout <= 0 {
		return fmt.Errorf("plugins.timeout must be positive")
	}
	return nil
}

// Gesture converts the tracking section into classifier thresholds.
func (t TrackingConfig) Gesture() gesture.Config {
	return gesture.Config{
		WinkMin:           seconds(t.WinkDurationRange[0]),
		WinkMax:           seconds(t.WinkDurationRange[1]),
		BlinkMax:          seconds(t.BlinkMaxDuration),
		DoubleBlinkWindow: seconds(t.DoubleBlinkWindow),
		SustainedGazeMin:  seconds(t.SustainedGazeMinDuration),
		GapTolerance:      seconds(t.GapTolerance),
		GazeGrid:          t.GazeGrid,
	}
}

// PluginTimeout returns the plugin execution timeout.
func (p PluginsConfig) PluginTimeout() time.Duration {
	return seconds(p.Timeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (c *Config) applyEnv() error {
	var err error
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(EnvPrefix + key); v != "" && err == nil {
			f, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" && err == nil {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
				return
			}
			*dst = b
		}
	}

	setFloat("EAR_THRESHOLD", &c.Tracking.EARThreshold)
	setFloat("SUSTAINED_GAZE_MIN_DURATION", &c.Tracking.SustainedGazeMinDuration)
	setInt("CAMERA", &c.Capture.Device)
	setString("VIDEO_FILE", &c.Capture.File)
	setString("FACE_MESH_SCRIPT", &c.Detector.ScriptPath)
	setString("DB_PATH", &c.Store.Path)
	setString("EXPORT_DIR", &c.Export.Dir)
	setBool("EXPORT_CSV", &c.Export.CSV)
	setString("ADDR", &c.Server.Addr)
	setString("STATIC_DIR", &c.Server.StaticDir)
	setBool("PREVIEW_MASK", &c.Server.PreviewMask)
	setString("PLUGIN_DIR", &c.Plugins.Dir)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FILE", &c.Log.File)
	setBool("TRAY", &c.Tray.Enabled)
	return err
}
