package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to provide structured, component-scoped logging.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus settings. JSON output keeps the logs
// machine-parseable for downstream collection.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// New creates a Logger scoped to the given component name.
func New(component string) *Logger {
	return &Logger{
		entry: logrus.WithField("component", component),
	}
}

// WithField returns a Logger carrying an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError attaches an error to the log entry.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Info logs a message at info level.
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn logs a message at warning level.
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error logs a message at error level.
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug logs a message at debug level.
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal logs a message at fatal level and terminates the process.
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
