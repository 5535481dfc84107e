package core

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a logrus entry to the service Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps a logrus logger. A nil logger falls back to the
// logrus standard logger.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logger.WithField("component", "calibration_service")}
}

// Info logs at info level with structured fields.
func (l *LogrusLogger) Info(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

// Warn logs at warn level with structured fields.
func (l *LogrusLogger) Warn(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

// Error logs at error level with structured fields.
func (l *LogrusLogger) Error(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}
