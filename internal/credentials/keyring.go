package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

var (
	// ErrKeyringNotAvailable is returned when no OS keyring service can be reached
	// (e.g. a headless session without D-Bus Secret Service).
	ErrKeyringNotAvailable = errors.New("system keyring not available")

	// ErrNotFound is returned when the keyring holds no entry for the account.
	ErrNotFound = errors.New("credential not found")
)

// MockKeyring is an in-memory Keyring for tests
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
}

// NewMockKeyring creates an empty mock keyring
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// Set stores a secret in the mock keyring
func (m *MockKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = secret
	return nil
}

// Get retrieves a secret from the mock keyring
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if secret, ok := m.store[service][account]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNotFound, service, account)
}

// Delete removes a secret from the mock keyring
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.store[service][account]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, service, account)
	}
	delete(m.store[service], account)
	return nil
}

// systemKeyring stores secrets in the OS keyring via go-keyring
type systemKeyring struct{}

func (s *systemKeyring) Set(service, account, secret string) error {
	return translateKeyringError(keyring.Set(service, account, secret))
}

func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		return "", translateKeyringError(err)
	}
	return secret, nil
}

func (s *systemKeyring) Delete(service, account string) error {
	return translateKeyringError(keyring.Delete(service, account))
}

// translateKeyringError maps go-keyring errors onto this package's sentinels.
func translateKeyringError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrUnsupportedPlatform):
		return ErrKeyringNotAvailable
	}
	// Secret Service failures (no D-Bus session, locked collection) surface
	// as plain errors; treat them as an unavailable keyring.
	return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
}
