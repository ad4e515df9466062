package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the current process id at path.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the PID file, ignoring errors.
func RemovePIDFile(path string) {
	_ = os.Remove(path)
}

// RunningPID returns the pid recorded at path if that process is alive.
// A stale PID file is removed.
func RunningPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence
	if err := process.Signal(syscall.Signal(0)); err != nil {
		RemovePIDFile(path)
		return 0, false
	}
	return pid, true
}

// DefaultPIDPath returns the PID file location under the runtime directory.
func DefaultPIDPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "pinmark", "serve.pid")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("pinmark-serve-%d.pid", os.Getuid()))
}
