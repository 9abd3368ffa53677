package bootstrap

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"aero-vision/internal/app"
	"aero-vision/internal/config"
	avimage "aero-vision/internal/image"
	"aero-vision/internal/pipeline"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Processing.StageDelay = 0
	cfg.History.DatabasePath = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func TestBuildRunsSimulatedDetection(t *testing.T) {
	log, _ := test.NewNullLogger()
	c, err := Build(testConfig(t), log)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NotNil(t, c.History)

	c.Engine.Resize(800, 600)
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	require.NoError(t, c.Session.SetImage(&avimage.Raster{Format: "png", Image: img}))
	require.NoError(t, c.Session.StartProcessing(context.Background(), pipeline.Params{}))
	c.Session.Wait()

	assert.Equal(t, app.StateResults, c.Session.State())
	vectors := c.Registry.Vectors()
	require.Len(t, vectors, 1)
	assert.Equal(t, "AI Detection 1", vectors[0].Name)
	assert.Equal(t, 0.4, vectors[0].Style.Opacity)

	require.Eventually(t, func() bool {
		runs, err := c.History.List(context.Background(), 10)
		return err == nil && len(runs) == 1 && runs[0].State == pipeline.StateSucceeded.String()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBuildRejectsUnknownDetector(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.Detector = "magic"
	_, err := Build(cfg, nil)
	assert.Error(t, err)
}

func TestBuildWithoutHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.DatabasePath = ""
	c, err := Build(cfg, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.History)
}
