package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aero-vision/internal/detect"
	"aero-vision/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.4, cfg.Layers.DefaultOpacity)
	assert.Equal(t, colorutil.DefaultPalette, cfg.Layers.Palette)
	assert.Equal(t, detect.KindSimulated, cfg.Processing.Detector)
	assert.Equal(t, 500*time.Millisecond, cfg.Processing.StageDelay.Std())
	assert.Equal(t, 1.15, cfg.CanvasOptions().WheelStep)
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Canvas, cfg.Canvas)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Canvas.FitMargin = 32
	cfg.Processing.StageDelay = Duration(50 * time.Millisecond)
	cfg.Layers.Palette = []colorutil.RGB{colorutil.Blue}
	cfg.History.DatabasePath = ""
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32.0, got.Canvas.FitMargin)
	assert.Equal(t, 50*time.Millisecond, got.Processing.StageDelay.Std())
	assert.Equal(t, []colorutil.RGB{colorutil.Blue}, got.Layers.Palette)
	assert.Empty(t, got.History.DatabasePath)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"processing": {"stage_delay": "10ms"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.Processing.StageDelay.Std())
	assert.Equal(t, 0.5, cfg.Processing.ROIFraction)
	assert.Equal(t, 50.0, cfg.Canvas.MaxScale)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"canvas": `), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		EnvLogLevel:     "debug",
		EnvDetector:     "remote",
		EnvInferenceURL: "http://localhost:8000/detect",
		EnvStageDelay:   "0s",
		EnvJobTimeout:   "2m",
		EnvHistoryDB:    "",
		EnvWatch:        "true",
	})))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, detect.KindRemote, cfg.Processing.Detector)
	assert.Equal(t, "http://localhost:8000/detect", cfg.DetectOptions().InferenceURL)
	assert.Zero(t, cfg.Processing.StageDelay)
	assert.Equal(t, 2*time.Minute, cfg.Processing.Timeout.Std())
	assert.Empty(t, cfg.History.DatabasePath)
	assert.True(t, cfg.Watch.Enabled)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, Default().ApplyEnv(env(map[string]string{EnvJobTimeout: "soon"})))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AV_TEST_DOTENV=hello\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AV_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("AV_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"non-positive scale": func(c *Config) { c.Canvas.MinScale = 0 },
		"min above max":      func(c *Config) { c.Canvas.MinScale = 100 },
		"opacity":            func(c *Config) { c.Layers.DefaultOpacity = 1.5 },
		"empty palette":      func(c *Config) { c.Layers.Palette = nil },
		"unknown detector":   func(c *Config) { c.Processing.Detector = "magic" },
		"remote without url": func(c *Config) { c.Processing.Detector = detect.KindRemote },
		"roi fraction":       func(c *Config) { c.Processing.ROIFraction = 0 },
		"log format":         func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestThemeUsesBackground(t *testing.T) {
	cfg := Default()
	cfg.Canvas.Background = colorutil.MustParseHex("#102030")
	r, g, b, a := cfg.Theme().Background.RGBA()
	assert.Equal(t, uint32(0x1010), r)
	assert.Equal(t, uint32(0x2020), g)
	assert.Equal(t, uint32(0x3030), b)
	assert.Equal(t, uint32(0xffff), a)
}
