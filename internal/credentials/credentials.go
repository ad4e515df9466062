// Package credentials stores the Pinboard API token in the OS keyring with a
// fallback to environment variables.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"pinmark/internal/utils"
)

// KeyringService is the keyring service name under which tokens are stored.
const KeyringService = "pinmark-pinboard"

// EnvToken is the environment variable consulted when the keyring has no token.
const EnvToken = "PINMARK_PINBOARD_TOKEN"

// Source indicates where a token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo describes a token lookup
type CredentialInfo struct {
	Source  Source
	Account string
	Token   string
	Found   bool
}

// JSON serializes the credential info to JSON (token excluded)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Account: c.Account,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles token storage
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnv overrides environment lookup
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccountFromToken returns the user part of a "user:HEX" API token.
func AccountFromToken(token string) string {
	user, _, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok {
		return ""
	}
	return user
}

// ValidateTokenFormat checks the "user:HEX" shape of an API token.
func ValidateTokenFormat(token string) error {
	user, secret, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || user == "" || secret == "" {
		return errors.New("API token must look like username:TOKEN")
	}
	return nil
}

// Set stores the token for account in the keyring. An empty account is
// derived from the token.
func (m *Manager) Set(ctx context.Context, account, token string) error {
	if err := ValidateTokenFormat(token); err != nil {
		return err
	}
	if account == "" {
		account = AccountFromToken(token)
	}
	return m.keyring.Set(KeyringService, account, strings.TrimSpace(token))
}

// Get retrieves the token for account, keyring first, then environment.
// An empty account only matches the environment token.
func (m *Manager) Get(ctx context.Context, account string) (*CredentialInfo, error) {
	if account != "" {
		token, err := m.keyring.Get(KeyringService, account)
		switch {
		case err == nil && token != "":
			return &CredentialInfo{Source: SourceKeyring, Account: account, Token: token, Found: true}, nil
		case err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable):
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		envAccount := AccountFromToken(token)
		if account == "" || envAccount == account {
			return &CredentialInfo{Source: SourceEnvironment, Account: envAccount, Token: token, Found: true}, nil
		}
	}

	return &CredentialInfo{Source: SourceNone, Account: account}, nil
}

// Delete removes the token for account from the keyring. Deleting a missing
// entry is not an error.
func (m *Manager) Delete(ctx context.Context, account string) error {
	err := m.keyring.Delete(KeyringService, account)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PromptToken asks for a token. Input is hidden when reader is a terminal.
func PromptToken(reader io.Reader, writer io.Writer, account string) (string, error) {
	if account != "" {
		_, _ = fmt.Fprintf(writer, "Enter Pinboard API token for %s: ", account)
	} else {
		_, _ = fmt.Fprint(writer, "Enter Pinboard API token (username:TOKEN): ")
	}

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	// Non-TTY input (pipes, tests): read a line
	token, err := utils.ReadStringWithReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}
