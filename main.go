// Package main provides the entry point for the Aero-Vision application.
package main

import (
	"os"

	"aero-vision/internal/app"
	"aero-vision/internal/bootstrap"
	"aero-vision/internal/config"
	"aero-vision/internal/logging"
	"aero-vision/internal/version"
	"aero-vision/ui/canvas"
	"aero-vision/ui/mainwindow"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"github.com/sirupsen/logrus"
)

const appID = "com.aerovision.app"

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.WithError(err).Warn("Ignoring .env")
	}
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}
	log.Infof("Starting %s", version.Get())

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(&app.AeroVisionTheme{})

	// Job events and file reloads run on the fyne event goroutine, which
	// owns the registry, the canvas and every widget.
	components, err := bootstrap.Build(cfg, log, app.WithDispatcher(fyne.Do))
	if err != nil {
		log.WithError(err).Fatal("Cannot start session")
	}
	defer components.Close()

	mc := canvas.NewMapCanvas(components.Engine, cfg.Theme())
	win := mainwindow.New(fyneApp, components.Session, mc)

	// Optional image path on the command line
	if len(os.Args) > 1 {
		win.OpenImage(os.Args[1])
	}

	win.ShowAndRun()
}
