// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup applies level ("debug", "info", "warn", "error") and format ("text"
// or "json") to the standard logger, writing to w (stderr when nil).
func Setup(level, format string, w io.Writer) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	if err := Configure(log, level, format, w); err != nil {
		return nil, err
	}
	return log, nil
}

// New returns a separate logger configured like Setup.
func New(level, format string, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	if err := Configure(log, level, format, w); err != nil {
		return nil, err
	}
	return log, nil
}

// Configure applies level, format and output to log.
func Configure(log *logrus.Logger, level, format string, w io.Writer) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	if w == nil {
		w = os.Stderr
	}
	log.SetOutput(w)
	log.SetLevel(lvl)
	return nil
}

// Component returns a logger tagged with the component name.
func Component(log logrus.FieldLogger, name string) logrus.FieldLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("component", name)
}
