package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

// TestCredentialsSetKeyring verifies tokens are stored under the pinmark service
func TestCredentialsSetKeyring(t *testing.T) {
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring), WithEnv(envMap(nil)))

	if err := manager.Set(context.Background(), "", "alice:ABC123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	stored, err := mockKeyring.Get(KeyringService, "alice")
	if err != nil {
		t.Fatalf("Keyring Get failed: %v", err)
	}
	if stored != "alice:ABC123" {
		t.Errorf("Expected token 'alice:ABC123', got %q", stored)
	}
}

func TestCredentialsSetRejectsMalformedToken(t *testing.T) {
	manager := NewManager(WithKeyring(NewMockKeyring()), WithEnv(envMap(nil)))

	for _, token := range []string{"", "abc", ":abc", "alice:"} {
		if err := manager.Set(context.Background(), "alice", token); err == nil {
			t.Errorf("Set(%q) should fail", token)
		}
	}
}

// TestCredentialsGetKeyring verifies the keyring is consulted first
func TestCredentialsGetKeyring(t *testing.T) {
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring), WithEnv(envMap(map[string]string{EnvToken: "alice:FROMENV"})))
	_ = mockKeyring.Set(KeyringService, "alice", "alice:FROMKEYRING")

	info, err := manager.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Source != SourceKeyring || info.Token != "alice:FROMKEYRING" || !info.Found {
		t.Errorf("unexpected info: %+v", info)
	}
}

// TestCredentialsGetEnvVar verifies the environment fallback
func TestCredentialsGetEnvVar(t *testing.T) {
	tests := []struct {
		name      string
		account   string
		env       string
		wantFound bool
	}{
		{"matching account", "alice", "alice:XYZ", true},
		{"no account given", "", "alice:XYZ", true},
		{"other account", "bob", "alice:XYZ", false},
		{"no env", "alice", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(WithKeyring(NewMockKeyring()), WithEnv(envMap(map[string]string{EnvToken: tt.env})))
			info, err := manager.Get(context.Background(), tt.account)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if info.Found != tt.wantFound {
				t.Fatalf("Found = %v, want %v", info.Found, tt.wantFound)
			}
			if tt.wantFound && (info.Source != SourceEnvironment || info.Account != "alice") {
				t.Errorf("unexpected info: %+v", info)
			}
			if !tt.wantFound && info.Source != SourceNone {
				t.Errorf("Source = %s, want none", info.Source)
			}
		})
	}
}

// failingKeyring simulates a keyring that is present but broken
type failingKeyring struct{ err error }

func (f failingKeyring) Set(service, account, secret string) error   { return f.err }
func (f failingKeyring) Get(service, account string) (string, error) { return "", f.err }
func (f failingKeyring) Delete(service, account string) error        { return f.err }

func TestCredentialsGetKeyringUnavailableFallsBack(t *testing.T) {
	manager := NewManager(
		WithKeyring(failingKeyring{err: ErrKeyringNotAvailable}),
		WithEnv(envMap(map[string]string{EnvToken: "alice:XYZ"})),
	)
	info, err := manager.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Source != SourceEnvironment {
		t.Errorf("Source = %s, want environment", info.Source)
	}

	manager = NewManager(WithKeyring(failingKeyring{err: errors.New("locked")}), WithEnv(envMap(nil)))
	if _, err := manager.Get(context.Background(), "alice"); err == nil {
		t.Error("expected unexpected keyring errors to surface")
	}
}

// TestCredentialsDeleteIdempotent verifies deleting twice is not an error
func TestCredentialsDeleteIdempotent(t *testing.T) {
	mockKeyring := NewMockKeyring()
	manager := NewManager(WithKeyring(mockKeyring), WithEnv(envMap(nil)))
	ctx := context.Background()
	_ = manager.Set(ctx, "alice", "alice:ABC")

	if err := manager.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := manager.Delete(ctx, "alice"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if info, _ := manager.Get(ctx, "alice"); info.Found {
		t.Error("token should be gone")
	}
}

// TestCredentialInfoJSONOmitsToken verifies JSON output never contains the token
func TestCredentialInfoJSONOmitsToken(t *testing.T) {
	info := &CredentialInfo{Source: SourceKeyring, Account: "alice", Token: "alice:SECRET", Found: true}
	data, err := info.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if strings.Contains(string(data), "SECRET") {
		t.Errorf("JSON leaked the token: %s", data)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["account"] != "alice" || decoded["found"] != true {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestAccountFromToken(t *testing.T) {
	tests := map[string]string{
		"alice:ABC":   "alice",
		" bob:DEF ":   "bob",
		"no-colon":    "",
		"":            "",
		"carol:x:y:z": "carol",
	}
	for token, want := range tests {
		if got := AccountFromToken(token); got != want {
			t.Errorf("AccountFromToken(%q) = %q, want %q", token, got, want)
		}
	}
}

// TestPromptTokenNonTTY verifies piped input is read as a line
func TestPromptTokenNonTTY(t *testing.T) {
	var out bytes.Buffer
	token, err := PromptToken(strings.NewReader("alice:ABC\n"), &out, "alice")
	if err != nil {
		t.Fatalf("PromptToken failed: %v", err)
	}
	if token != "alice:ABC" {
		t.Errorf("token = %q", token)
	}
	if !strings.Contains(out.String(), "alice") {
		t.Errorf("prompt = %q", out.String())
	}

	if _, err := PromptToken(strings.NewReader(""), &out, ""); err == nil {
		t.Error("expected error on empty input")
	}
}
