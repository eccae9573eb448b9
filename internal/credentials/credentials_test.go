package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"planday/internal/utils"
)

const validToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

// TestResolvePriority verifies keyring > environment > config
func TestResolvePriority(t *testing.T) {
	tests := []struct {
		name       string
		keyring    string
		env        string
		config     string
		wantSource Source
		wantToken  string
	}{
		{"keyring wins", "1:keyring-token-aaaaaaaaaaaaaaaa", "2:env-token-bbbbbbbbbbbbbbbbbbb", "3:cfg", SourceKeyring, "1:keyring-token-aaaaaaaaaaaaaaaa"},
		{"environment next", "", "2:env-token-bbbbbbbbbbbbbbbbbbb", "3:cfg", SourceEnvironment, "2:env-token-bbbbbbbbbbbbbbbbbbb"},
		{"config last", "", "", "3:cfg", SourceConfig, "3:cfg"},
		{"nothing", "", "", "  ", SourceNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvToken, tt.env)
			kr := NewMockKeyring()
			if tt.keyring != "" {
				_ = kr.Set(ServiceName, Account, tt.keyring)
			}

			info, err := NewManager(WithKeyring(kr)).Resolve(context.Background(), tt.config)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if info.Source != tt.wantSource || info.Token != tt.wantToken {
				t.Errorf("Resolve() = %+v, want source %s token %q", info, tt.wantSource, tt.wantToken)
			}
			if info.Found != (tt.wantSource != SourceNone) {
				t.Errorf("Found = %v", info.Found)
			}
		})
	}
}

// TestResolveKeyringUnavailable verifies fallback when the OS keyring is down
func TestResolveKeyringUnavailable(t *testing.T) {
	t.Setenv(EnvToken, validToken)

	info, err := NewManager(WithKeyring(unavailableKeyring{})).Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if info.Source != SourceEnvironment {
		t.Errorf("expected environment fallback, got %s", info.Source)
	}
}

// TestTokenNotConfigured verifies the suggestion-carrying error
func TestTokenNotConfigured(t *testing.T) {
	t.Setenv(EnvToken, "")

	_, err := NewManager(WithKeyring(NewMockKeyring())).Token(context.Background(), "")
	var withSuggestion *utils.ErrorWithSuggestion
	if !errors.As(err, &withSuggestion) {
		t.Fatalf("expected ErrorWithSuggestion, got %v", err)
	}
	if !strings.Contains(withSuggestion.GetSuggestion(), "planday token set") {
		t.Errorf("unexpected suggestion %q", withSuggestion.GetSuggestion())
	}
}

// TestSetTokenValidates verifies malformed tokens are never stored
func TestSetTokenValidates(t *testing.T) {
	kr := NewMockKeyring()
	m := NewManager(WithKeyring(kr))

	for _, bad := range []string{"", "nocolon", ":secretsecretsecretsecret", "abc:secretsecretsecretsecret", "123:short"} {
		if err := m.SetToken(context.Background(), bad); err == nil {
			t.Errorf("SetToken(%q) should fail", bad)
		}
	}
	if _, err := kr.Get(ServiceName, Account); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}

	if err := m.SetToken(context.Background(), "  "+validToken+"\n"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	stored, _ := kr.Get(ServiceName, Account)
	if stored != validToken {
		t.Errorf("stored %q, want trimmed token", stored)
	}
}

// TestDeleteTokenIdempotent verifies deleting twice is fine
func TestDeleteTokenIdempotent(t *testing.T) {
	kr := NewMockKeyring()
	_ = kr.Set(ServiceName, Account, validToken)
	m := NewManager(WithKeyring(kr))

	if err := m.DeleteToken(context.Background()); err != nil {
		t.Fatalf("first DeleteToken() error = %v", err)
	}
	if err := m.DeleteToken(context.Background()); err != nil {
		t.Fatalf("second DeleteToken() error = %v", err)
	}
}

// TestTokenInfoJSONHidesToken verifies the secret never reaches JSON output
func TestTokenInfoJSONHidesToken(t *testing.T) {
	info := &TokenInfo{Source: SourceKeyring, Token: validToken, Found: true}
	data, err := info.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if bytes.Contains(data, []byte("ABC-DEF")) {
		t.Errorf("token leaked into JSON: %s", data)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["source"] != "keyring" || decoded["found"] != true {
		t.Errorf("unexpected JSON %s", data)
	}
}

// TestMaskToken verifies masking
func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":         "",
		validToken: "123456:****ew11",
		"garbage":  "********",
		"1:abc":    "********",
	}
	for in, want := range tests {
		if got := MaskToken(in); got != want {
			t.Errorf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestPromptTokenFromReader verifies non-terminal input is read as a line
func TestPromptTokenFromReader(t *testing.T) {
	out := &bytes.Buffer{}
	token, err := PromptToken(strings.NewReader(validToken+"\n"), out)
	if err != nil {
		t.Fatalf("PromptToken() error = %v", err)
	}
	if token != validToken {
		t.Errorf("token = %q", token)
	}
	if !strings.Contains(out.String(), "Enter Telegram bot token") {
		t.Errorf("expected prompt, got %q", out.String())
	}

	if _, err := PromptToken(strings.NewReader(""), out); err == nil {
		t.Error("expected error on empty input")
	}
}

// unavailableKeyring simulates a headless machine without Secret Service
type unavailableKeyring struct{}

func (unavailableKeyring) Set(string, string, string) error   { return ErrKeyringNotAvailable }
func (unavailableKeyring) Get(string, string) (string, error) { return "", ErrKeyringNotAvailable }
func (unavailableKeyring) Delete(string, string) error        { return ErrKeyringNotAvailable }
