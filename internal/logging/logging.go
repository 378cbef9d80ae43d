// Package logging configures logrus for the command line tools
package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// TimestampFormat is the millisecond RFC 3339 layout used in log lines
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Formatter returns the JSON formatter shared by all tools
func Formatter() log.Formatter {
	return &log.JSONFormatter{
		TimestampFormat: TimestampFormat,
		FieldMap: log.FieldMap{
			log.FieldKeyTime:  "timestamp",
			log.FieldKeyLevel: "level",
			log.FieldKeyMsg:   "message",
		},
	}
}

// New creates a logger writing JSON lines to out at the given level.
// An invalid level falls back to INFO with a warning.
func New(out io.Writer, logLevel string) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(Formatter())
	setLevel(logger, logLevel)
	return logger
}

// Setup configures the standard logger
func Setup(logLevel string) {
	log.SetFormatter(Formatter())
	setLevel(log.StandardLogger(), logLevel)
}

func setLevel(logger *log.Logger, logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, defaulting to INFO")
		level = log.InfoLevel
	}
	logger.SetLevel(level)
}
