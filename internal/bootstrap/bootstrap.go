// Package bootstrap assembles a session from configuration. The GUI and the
// command line tool share it.
package bootstrap

import (
	"fmt"

	"aero-vision/internal/app"
	"aero-vision/internal/canvas"
	"aero-vision/internal/config"
	"aero-vision/internal/detect"
	"aero-vision/internal/history"
	"aero-vision/internal/layers"
	"aero-vision/internal/ocr"
	"aero-vision/internal/pipeline"

	"github.com/sirupsen/logrus"
)

// Components is everything a running session needs.
type Components struct {
	Config   *config.Config
	Registry *layers.Registry
	Engine   *canvas.Engine
	Job      *pipeline.Job
	Session  *app.Session
	History  *history.Store // nil when history is disabled

	ocr *ocr.Engine
	log logrus.FieldLogger
}

// Build wires the detector, job, registry, engine and session described by
// cfg. Extra session options are applied after the configured ones.
func Build(cfg *config.Config, log logrus.FieldLogger, opts ...app.SessionOption) (*Components, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Components{Config: cfg, log: log}

	detector, err := detect.New(cfg.Processing.Detector, cfg.DetectOptions())
	if err != nil {
		return nil, err
	}
	if cfg.Processing.OCRLabels {
		engine, err := ocr.NewEngine()
		if err != nil {
			// Detection still works without names
			log.WithError(err).Warn("OCR unavailable; detections will not be labelled")
		} else {
			engine.SetMarkingMode(true)
			c.ocr = engine
			detector = detect.WithLabels(detector, engine, log)
		}
	}

	jobOpts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithTimeout(cfg.Processing.Timeout.Std()),
		pipeline.WithPalette(cfg.Layers.Palette),
	}
	if path := cfg.History.DatabasePath; path != "" {
		store, err := history.Open(path, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		c.History = store
		jobOpts = append(jobOpts, pipeline.WithRecorder(store))
	}

	c.Job = pipeline.NewJob(detector, jobOpts...)
	c.Registry = layers.NewRegistry(layers.WithDefaultOpacity(cfg.Layers.DefaultOpacity))
	c.Engine = canvas.NewEngine(c.Registry, cfg.CanvasOptions(), log)

	sessionOpts := []app.SessionOption{app.WithLogger(log)}
	if cfg.Watch.Enabled {
		sessionOpts = append(sessionOpts, app.WithWatch(cfg.Watch.Debounce.Std()))
	}
	c.Session = app.NewSession(c.Engine, c.Job, append(sessionOpts, opts...)...)

	log.WithFields(logrus.Fields{
		"detector": detector.Name(),
		"history":  c.History != nil,
		"watch":    cfg.Watch.Enabled,
	}).Info("Session ready")
	return c, nil
}

// Close cancels any run, waits for it to settle and releases resources.
func (c *Components) Close() {
	// Session.Wait is not called: once the fyne event loop has stopped, a
	// cancelled run's final event is never delivered. Job.Wait covers the
	// run goroutine and its history record.
	if c.Session != nil {
		c.Session.Close()
	}
	if c.Job != nil {
		c.Job.Wait()
	}
	if c.Engine != nil {
		c.Engine.Close()
	}
	if c.History != nil {
		if err := c.History.Close(); err != nil {
			c.log.WithError(err).Warn("Closing history failed")
		}
	}
	if c.ocr != nil {
		c.ocr.Close()
	}
}
