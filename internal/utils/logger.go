package utils

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging with verbose mode support.
type Logger struct {
	entry   *logrus.Logger
	verbose bool
	mu      sync.RWMutex
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the singleton logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
			TimestampFormat:  "15:04:05",
		})
		loggerInstance = &Logger{entry: l}
	})
	return loggerInstance
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose sets the verbose mode for this logger instance.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.entry.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.SetLevel(logrus.InfoLevel)
	}
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects all log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.SetOutput(w)
}

// Logrus exposes the underlying logrus logger for middleware that wants it directly.
func (l *Logger) Logrus() *logrus.Logger {
	return l.entry
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}

// formatMessage formats a message with optional printf-style arguments.
func formatMessage(msgOrFormat string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(msgOrFormat, args...)
	}
	return msgOrFormat
}

// Debug logs a debug message (only shown when verbose=true).
func (l *Logger) Debug(msgOrFormat string, args ...interface{}) {
	l.entry.Debug(formatMessage(msgOrFormat, args...))
}

// Info logs an info message.
func (l *Logger) Info(msgOrFormat string, args ...interface{}) {
	l.entry.Info(formatMessage(msgOrFormat, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(msgOrFormat string, args ...interface{}) {
	l.entry.Warn(formatMessage(msgOrFormat, args...))
}

// Error logs an error message.
func (l *Logger) Error(msgOrFormat string, args ...interface{}) {
	l.entry.Error(formatMessage(msgOrFormat, args...))
}

// Debugf logs a debug message using the global logger.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof logs an info message using the global logger.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf logs a warning message using the global logger.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf logs an error message using the global logger.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// BackgroundLogger mirrors daemon logs to a PID-specific file.
type BackgroundLogger struct {
	logFile  *os.File
	enabled  bool
	filePath string
}

// NewBackgroundLoggerWithEnabled creates a background logger with explicit enabled control.
// Pass config.IsBackgroundLoggingEnabled() to honor the logging.background_enabled config.
func NewBackgroundLoggerWithEnabled(enabled bool) (*BackgroundLogger, error) {
	if !enabled {
		return &BackgroundLogger{}, nil
	}

	logPath := fmt.Sprintf("%s/pinmark-%d.log", os.TempDir(), os.Getpid())
	return NewBackgroundLoggerWithPath(logPath)
}

// NewBackgroundLoggerWithPath opens path and tees the global logger into it.
func NewBackgroundLoggerWithPath(path string) (*BackgroundLogger, error) {
	bl := &BackgroundLogger{filePath: path}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Gracefully degrade to stderr only
		return bl, err
	}

	bl.logFile = file
	bl.enabled = true
	GetLogger().SetOutput(io.MultiWriter(os.Stderr, file))
	return bl, nil
}

// Close restores stderr-only output and closes the log file.
func (bl *BackgroundLogger) Close() {
	if bl.logFile != nil {
		GetLogger().SetOutput(os.Stderr)
		_ = bl.logFile.Close()
		bl.logFile = nil
	}
	bl.enabled = false
}

// GetLogPath returns the log file path.
func (bl *BackgroundLogger) GetLogPath() string {
	return bl.filePath
}

// IsEnabled returns whether background logging is enabled.
func (bl *BackgroundLogger) IsEnabled() bool {
	return bl.enabled
}
