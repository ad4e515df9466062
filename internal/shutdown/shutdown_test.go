package shutdown_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"pinmark/internal/shutdown"
)

// TestShutdownRunsCleanups verifies registered cleanups run on Wait.
func TestShutdownRunsCleanups(t *testing.T) {
	mgr := shutdown.NewManager()

	var cleanupCalled atomic.Bool
	mgr.RegisterCleanup("store", func(ctx context.Context) error {
		cleanupCalled.Store(true)
		return nil
	})

	mgr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if !cleanupCalled.Load() {
		t.Error("expected cleanup to be called")
	}
}

// TestShutdownOrder verifies cleanups run last-registered first.
func TestShutdownOrder(t *testing.T) {
	mgr := shutdown.NewManager()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"storage", "watcher", "server"} {
		name := name
		mgr.RegisterCleanup(name, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	mgr.Shutdown()
	if err := mgr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	if got := strings.Join(order, ","); got != "server,watcher,storage" {
		t.Errorf("cleanup order = %s", got)
	}
}

// TestShutdownCleanupErrorsJoined verifies a failing cleanup does not stop the others.
func TestShutdownCleanupErrorsJoined(t *testing.T) {
	mgr := shutdown.NewManager()
	boom := errors.New("boom")

	var ranFirst atomic.Bool
	mgr.RegisterCleanup("first", func(ctx context.Context) error {
		ranFirst.Store(true)
		return nil
	})
	mgr.RegisterCleanup("second", func(ctx context.Context) error { return boom })

	mgr.Shutdown()
	err := mgr.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Wait error = %v, want boom", err)
	}
	if !ranFirst.Load() {
		t.Error("remaining cleanups should still run")
	}
}

// TestShutdownTimeout verifies Wait gives up when cleanups overrun the deadline.
func TestShutdownTimeout(t *testing.T) {
	mgr := shutdown.NewManager()
	release := make(chan struct{})
	defer close(release)

	mgr.RegisterCleanup("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := mgr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want deadline exceeded", err)
	}
}

// TestShutdownContextAndDone verifies the context and Done channel follow Shutdown.
func TestShutdownContextAndDone(t *testing.T) {
	mgr := shutdown.NewManager()

	if mgr.IsShutdown() {
		t.Fatal("should not be shut down yet")
	}
	select {
	case <-mgr.Done():
		t.Fatal("Done closed before Shutdown")
	default:
	}

	mgr.ShutdownWithReason("test")

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if mgr.Context().Err() == nil {
		t.Error("context should be cancelled")
	}
	if !mgr.IsShutdown() || mgr.Reason() != "test" {
		t.Errorf("IsShutdown=%v Reason=%q", mgr.IsShutdown(), mgr.Reason())
	}
}

// TestShutdownConcurrentSafety verifies concurrent Shutdown calls are safe.
func TestShutdownConcurrentSafety(t *testing.T) {
	mgr := shutdown.NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Shutdown()
		}()
	}
	wg.Wait()

	if !mgr.IsShutdown() {
		t.Error("expected shutdown")
	}
}

// TestShutdownOnSignal verifies SIGTERM starts a shutdown.
func TestShutdownOnSignal(t *testing.T) {
	mgr := shutdown.NewManager()
	mgr.ListenForSignals()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to signal self: %v", err)
	}

	select {
	case <-mgr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered by SIGTERM")
	}
	if !strings.Contains(mgr.Reason(), "terminated") {
		t.Errorf("Reason = %q", mgr.Reason())
	}
}
