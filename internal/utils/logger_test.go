package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// resetLogger gives each test a fresh singleton writing into a buffer.
func resetLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	once = sync.Once{}
	loggerInstance = nil

	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return logger, &buf
}

// TestGetLogger verifies singleton pattern - same instance returned
func TestGetLogger(t *testing.T) {
	logger1 := GetLogger()
	logger2 := GetLogger()

	if logger1 != logger2 {
		t.Error("GetLogger() should return same singleton instance")
	}
}

// TestLoggerDefaultVerboseMode verifies verbose is false by default
func TestLoggerDefaultVerboseMode(t *testing.T) {
	logger, _ := resetLogger(t)
	if logger.IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

// TestSetVerboseMode verifies SetVerboseMode changes verbose state
func TestSetVerboseMode(t *testing.T) {
	logger, _ := resetLogger(t)

	SetVerboseMode(true)
	if !logger.IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}

	SetVerboseMode(false)
	if logger.IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

// TestDebugOnlyShownWhenVerbose verifies Debug output only when verbose=true
func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	logger, buf := resetLogger(t)

	logger.Debug("test message")
	if buf.Len() > 0 {
		t.Errorf("Debug should not output when verbose=false, got: %s", buf.String())
	}

	logger.SetVerbose(true)
	logger.Debug("test message %s", "verbose")

	if !strings.Contains(buf.String(), "level=debug") {
		t.Errorf("Debug should log at debug level when verbose=true, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "test message verbose") {
		t.Errorf("Debug should output formatted message, got: %s", buf.String())
	}
}

// TestLevelsAlwaysShown verifies Info, Warn and Error ignore verbose mode
func TestLevelsAlwaysShown(t *testing.T) {
	_, buf := resetLogger(t)

	Infof("info %d", 1)
	Warnf("warn %d", 2)
	Errorf("error %d", 3)

	out := buf.String()
	for _, want := range []string{"level=info", "info 1", "level=warning", "warn 2", "level=error", "error 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

// TestWithFields verifies structured fields are rendered
func TestWithFields(t *testing.T) {
	logger, buf := resetLogger(t)

	logger.WithFields(map[string]interface{}{"tab": 7}).Info("refreshed")

	if !strings.Contains(buf.String(), "tab=7") {
		t.Errorf("expected field tab=7, got: %s", buf.String())
	}
}

// TestBackgroundLoggerDisabled verifies a disabled logger creates no file
func TestBackgroundLoggerDisabled(t *testing.T) {
	bl, err := NewBackgroundLoggerWithEnabled(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer bl.Close()

	if bl.IsEnabled() {
		t.Error("expected disabled background logger")
	}
	if bl.GetLogPath() != "" {
		t.Errorf("expected empty path, got %q", bl.GetLogPath())
	}
}

// TestBackgroundLoggerWithPath verifies log lines reach the file
func TestBackgroundLoggerWithPath(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "pinmark.log")

	bl, err := NewBackgroundLoggerWithPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bl.IsEnabled() {
		t.Fatal("expected enabled background logger")
	}

	Infof("daemon started")
	bl.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "daemon started") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if bl.IsEnabled() {
		t.Error("expected logger disabled after Close")
	}
}

// TestBackgroundLoggerBadPath verifies graceful degradation
func TestBackgroundLoggerBadPath(t *testing.T) {
	bl, err := NewBackgroundLoggerWithPath(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	if err == nil {
		t.Error("expected error for unwritable path")
	}
	if bl.IsEnabled() {
		t.Error("expected disabled logger on error")
	}
}
