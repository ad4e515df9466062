package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

// TestSystemKeyringSetGetDelete exercises systemKeyring against go-keyring's
// in-memory provider.
func TestSystemKeyringSetGetDelete(t *testing.T) {
	keyring.MockInit()
	sysKeyring := &systemKeyring{}

	service := "pinmark-test-keyring-crud"
	if err := sysKeyring.Set(service, "alice", "alice:ABC"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := sysKeyring.Get(service, "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "alice:ABC" {
		t.Errorf("Get() = %q", got)
	}

	if err := sysKeyring.Delete(service, "alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := sysKeyring.Get(service, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}

// TestSystemKeyringUnavailable verifies provider failures map to ErrKeyringNotAvailable
func TestSystemKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("org.freedesktop.DBus.Error.ServiceUnknown"))
	t.Cleanup(keyring.MockInit)
	sysKeyring := &systemKeyring{}

	err := sysKeyring.Set("pinmark-test", "alice", "alice:ABC")
	if !errors.Is(err, ErrKeyringNotAvailable) {
		t.Errorf("Set error = %v, want ErrKeyringNotAvailable", err)
	}
}

// TestManagerWithSystemKeyring verifies the default manager round-trips through go-keyring
func TestManagerWithSystemKeyring(t *testing.T) {
	keyring.MockInit()
	manager := NewManager(WithEnv(envMap(nil)))
	ctx := context.Background()

	if err := manager.Set(ctx, "", "alice:ABC"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	info, err := manager.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Source != SourceKeyring || info.Token != "alice:ABC" {
		t.Errorf("unexpected info: %+v", info)
	}
	if err := manager.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
