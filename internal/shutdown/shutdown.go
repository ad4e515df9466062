// Package shutdown coordinates an orderly stop of the background service:
// signals trigger it, and registered cleanups run last-registered first.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"pinmark/internal/utils"
)

// CleanupFunc releases one resource. The context ends when the shutdown
// deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles graceful shutdown coordination.
type Manager struct {
	mu         sync.Mutex
	cleanups   []cleanupEntry
	shutdown   bool
	reason     string
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	stopSignal func()
}

// NewManager creates a new shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// ListenForSignals starts a shutdown on the first SIGINT or SIGTERM.
func (m *Manager) ListenForSignals() {
	m.listen(syscall.SIGINT, syscall.SIGTERM)
}

func (m *Manager) listen(sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	stop := make(chan struct{})

	m.mu.Lock()
	m.stopSignal = func() {
		signal.Stop(ch)
		close(stop)
	}
	m.mu.Unlock()

	go func() {
		select {
		case sig := <-ch:
			m.ShutdownWithReason("received " + sig.String())
		case <-stop:
		}
	}()
}

// Shutdown initiates a graceful shutdown. Only the first call has effect.
func (m *Manager) Shutdown() {
	m.ShutdownWithReason("requested")
}

// ShutdownWithReason initiates a shutdown and records why.
func (m *Manager) ShutdownWithReason(reason string) {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.reason = reason
		stop := m.stopSignal
		m.stopSignal = nil
		m.mu.Unlock()

		utils.Infof("shutting down: %s", reason)
		if stop != nil {
			stop()
		}
		m.cancel()
		close(m.shutdownCh)
	})
}

// Done is closed once shutdown has been initiated.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownCh
}

// runCleanups executes all cleanups in LIFO order. A failing cleanup is
// logged and does not stop the rest.
func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		utils.Debugf("cleanup: %s", c.name)
		if err := c.fn(ctx); err != nil {
			utils.Warnf("cleanup %s failed: %v", c.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait runs the cleanups and returns their joined errors, or ctx's error if
// they do not finish in time.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- m.runCleanups(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown returns true if shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Reason returns why shutdown was initiated, or "".
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Context returns a context that is cancelled when shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}
