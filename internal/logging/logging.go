package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger represents a logger instance.
type Logger = *logrus.Logger

// Fields represents structured logging fields.
type Fields = logrus.Fields

// New creates a logger writing to stderr. format is "text" or "json".
func New(level, format string) Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, level, format string) Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	}
	logger.SetLevel(ParseLevel(level))
	return logger
}

// Discard returns a logger that drops everything. Used as the nil default.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ParseLevel maps a config string to a logrus level, defaulting to info.
func ParseLevel(value string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
