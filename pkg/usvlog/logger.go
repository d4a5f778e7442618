// Package usvlog provides the structured logger shared by every component
// of the digital-twin numerical core.
package usvlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger used by components that don't hold
// their own logger reference (mainly cmd/usvtwin wiring).
var Log *logrus.Logger

func init() {
	Log = New("info", "stdout")
}

// New creates a configured logger. level is one of "debug", "info",
// "warn", "error"; output is "stdout" or a file path.
func New(level, output string) *logrus.Logger {
	logger := logrus.New()

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if output == "stdout" || output == "" {
		logger.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logger.SetOutput(file)
		} else {
			logger.SetOutput(os.Stdout)
			logger.Warnf("failed to open log file %s, using stdout", output)
		}
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	return logger
}

// SetLevel changes the package logger's level at runtime.
func SetLevel(level string) {
	switch level {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	}
}

// WithComponent tags an Entry with the same "component" name used in
// internal/usverr's error taxonomy (e.g. "ekf.Predict", "codec.Decode"),
// so a log line and any usverr.Error it reports can be correlated by name.
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
