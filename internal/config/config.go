// Package config provides JSON-based application configuration with .env and
// environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aero-vision/internal/canvas"
	"aero-vision/internal/detect"
	"aero-vision/internal/layers"
	"aero-vision/pkg/colorutil"

	"github.com/joho/godotenv"
)

const (
	appDir     = "aero-vision"
	configFile = "config.json"
	historyDB  = "history.db"

	// EnvConfig names an alternative config file.
	EnvConfig = "AV_CONFIG"
)

// Environment variables that override file settings.
const (
	EnvLogLevel     = "AV_LOG_LEVEL"
	EnvLogFormat    = "AV_LOG_FORMAT"
	EnvDetector     = "AV_DETECTOR"
	EnvInferenceURL = "AV_INFERENCE_URL"
	EnvHistoryDB    = "AV_HISTORY_DB"
	EnvStageDelay   = "AV_STAGE_DELAY"
	EnvJobTimeout   = "AV_JOB_TIMEOUT"
	EnvWatch        = "AV_WATCH"
)

// Config holds user-editable settings.
type Config struct {
	Canvas     Canvas     `json:"canvas"`
	Layers     Layers     `json:"layers"`
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	History    History    `json:"history"`
	Watch      Watch      `json:"watch"`
}

// Canvas configures view limits and drawing.
type Canvas struct {
	MinScale    float64       `json:"min_scale"`
	MaxScale    float64       `json:"max_scale"`
	FitMargin   float64       `json:"fit_margin"` // pixels on every side
	WheelStep   float64       `json:"wheel_step"` // zoom factor per wheel notch
	ZoomInStep  float64       `json:"zoom_in_step"`
	ZoomOutStep float64       `json:"zoom_out_step"`
	StrokeWidth float64       `json:"stroke_width"`
	Background  colorutil.RGB `json:"background"`
}

// Layers configures defaults for new detection layers.
type Layers struct {
	DefaultOpacity float64         `json:"default_opacity"`
	Palette        []colorutil.RGB `json:"palette"`
}

// Processing configures the detection job.
type Processing struct {
	Detector        string   `json:"detector"` // simulated, contour, remote
	StageDelay      Duration `json:"stage_delay"`
	Timeout         Duration `json:"timeout"` // 0 disables
	ROIFraction     float64  `json:"roi_fraction"`
	MinArea         float64  `json:"min_area"`
	SimplifyEpsilon float64  `json:"simplify_epsilon"`
	InferenceURL    string   `json:"inference_url"`
	RequestTimeout  Duration `json:"request_timeout"`
	OCRLabels       bool     `json:"ocr_labels"`
}

// Logging controls log verbosity and format.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// History configures the run history database.
type History struct {
	DatabasePath string `json:"database_path"` // empty disables history
}

// Watch configures reloading of the loaded image when its file changes.
type Watch struct {
	Enabled  bool     `json:"enabled"`
	Debounce Duration `json:"debounce"`
}

// Duration is a time.Duration written as a Go duration string ("500ms").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Dir returns the per-user configuration directory.
func Dir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, appDir)
}

// DefaultPath returns the config file location, honouring AV_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(Dir(), configFile)
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := canvas.DefaultOptions()
	theme := canvas.DefaultTheme()
	det := detect.DefaultOptions()
	return &Config{
		Canvas: Canvas{
			MinScale:    opts.MinScale,
			MaxScale:    opts.MaxScale,
			FitMargin:   opts.FitMargin,
			WheelStep:   opts.WheelStep,
			ZoomInStep:  opts.ZoomInStep,
			ZoomOutStep: opts.ZoomOutStep,
			StrokeWidth: theme.StrokeWidth,
			Background:  colorutil.FromColor(theme.Background),
		},
		Layers: Layers{
			DefaultOpacity: layers.DefaultOpacity,
			Palette:        append([]colorutil.RGB(nil), colorutil.DefaultPalette...),
		},
		Processing: Processing{
			Detector:        detect.KindSimulated,
			StageDelay:      Duration(det.StageDelay),
			ROIFraction:     det.ROIFraction,
			MinArea:         det.MinArea,
			SimplifyEpsilon: det.SimplifyEpsilon,
			RequestTimeout:  Duration(det.RequestTimeout),
		},
		Logging: Logging{Level: "info", Format: "text"},
		History: History{DatabasePath: filepath.Join(Dir(), historyDB)},
		Watch:   Watch{Debounce: Duration(250 * time.Millisecond)},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment. Missing files are ignored and
// variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// Load reads the config file at path (DefaultPath when empty) over the
// defaults, then applies environment overrides. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", expanded, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.History.DatabasePath, err = expandUser(cfg.History.DatabasePath)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Save writes the config to path (DefaultPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	expanded, err := expandUser(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o644)
}

// ApplyEnv overrides fields from AV_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := lookup(EnvDetector); ok && v != "" {
		c.Processing.Detector = v
	}
	if v, ok := lookup(EnvInferenceURL); ok {
		c.Processing.InferenceURL = v
	}
	if v, ok := lookup(EnvHistoryDB); ok {
		c.History.DatabasePath = v
	}
	if v, ok := lookup(EnvStageDelay); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStageDelay, err)
		}
		c.Processing.StageDelay = Duration(d)
	}
	if v, ok := lookup(EnvJobTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJobTimeout, err)
		}
		c.Processing.Timeout = Duration(d)
	}
	if v, ok := lookup(EnvWatch); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWatch, err)
		}
		c.Watch.Enabled = b
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	cv := c.Canvas
	switch {
	case cv.MinScale <= 0 || cv.MaxScale <= 0:
		return fmt.Errorf("canvas scale limits must be positive (min %g, max %g)", cv.MinScale, cv.MaxScale)
	case cv.MinScale > cv.MaxScale:
		return fmt.Errorf("canvas min_scale %g exceeds max_scale %g", cv.MinScale, cv.MaxScale)
	case cv.FitMargin < 0:
		return fmt.Errorf("canvas fit_margin must not be negative")
	case cv.WheelStep <= 0 || cv.ZoomInStep <= 0 || cv.ZoomOutStep <= 0:
		return fmt.Errorf("canvas zoom steps must be positive")
	case cv.StrokeWidth < 0:
		return fmt.Errorf("canvas stroke_width must not be negative")
	}

	if o := c.Layers.DefaultOpacity; o < 0 || o > 1 {
		return fmt.Errorf("layers default_opacity %g outside [0,1]", o)
	}
	if len(c.Layers.Palette) == 0 {
		return fmt.Errorf("layers palette is empty")
	}

	p := c.Processing
	known := false
	for _, k := range detect.Kinds() {
		if p.Detector == k {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown detector %q (want one of %s)", p.Detector, strings.Join(detect.Kinds(), ", "))
	}
	if p.Detector == detect.KindRemote && p.InferenceURL == "" {
		return fmt.Errorf("detector %q requires processing.inference_url", p.Detector)
	}
	if p.ROIFraction <= 0 || p.ROIFraction > 1 {
		return fmt.Errorf("processing roi_fraction %g outside (0,1]", p.ROIFraction)
	}
	if p.StageDelay < 0 || p.Timeout < 0 {
		return fmt.Errorf("processing durations must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// CanvasOptions returns the canvas engine options.
func (c *Config) CanvasOptions() canvas.Options {
	return canvas.Options{
		MinScale:    c.Canvas.MinScale,
		MaxScale:    c.Canvas.MaxScale,
		FitMargin:   c.Canvas.FitMargin,
		WheelStep:   c.Canvas.WheelStep,
		ZoomInStep:  c.Canvas.ZoomInStep,
		ZoomOutStep: c.Canvas.ZoomOutStep,
	}
}

// Theme returns the render theme.
func (c *Config) Theme() canvas.Theme {
	return canvas.Theme{
		Background:  c.Canvas.Background.Opaque(),
		StrokeWidth: c.Canvas.StrokeWidth,
	}
}

// DetectOptions returns the detector options.
func (c *Config) DetectOptions() detect.Options {
	p := c.Processing
	return detect.Options{
		StageDelay:      p.StageDelay.Std(),
		ROIFraction:     p.ROIFraction,
		MinArea:         p.MinArea,
		SimplifyEpsilon: p.SimplifyEpsilon,
		InferenceURL:    p.InferenceURL,
		RequestTimeout:  p.RequestTimeout.Std(),
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
