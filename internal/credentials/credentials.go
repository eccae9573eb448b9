// Package credentials provides secure storage and retrieval of the Telegram
// bot token using the OS-native keyring with fallback to the environment and
// the config file.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"

	"planday/internal/utils"
)

// Keyring coordinates of the bot token
const (
	ServiceName = "planday-telegram"
	Account     = "bot-token"
	EnvToken    = "PLANDAY_BOT_TOKEN"
)

// Source indicates where the token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceConfig      Source = "config"
	SourceNone        Source = "none"
)

// TokenInfo is the outcome of token resolution
type TokenInfo struct {
	Source Source
	Token  string
	Found  bool
}

// JSON serializes the token info to JSON (token excluded for security)
func (i *TokenInfo) JSON() ([]byte, error) {
	output := struct {
		Source string `json:"source"`
		Found  bool   `json:"found"`
		Masked string `json:"token,omitempty"`
	}{
		Source: string(i.Source),
		Found:  i.Found,
		Masked: MaskToken(i.Token),
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
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

// SetToken validates and stores the token in the keyring
func (m *Manager) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if err := ValidateToken(token); err != nil {
		return err
	}
	return m.keyring.Set(ServiceName, Account, token)
}

// Resolve returns the first token found in the keyring, the environment and
// finally configToken.
func (m *Manager) Resolve(ctx context.Context, configToken string) (*TokenInfo, error) {
	// Priority 1: Try keyring
	token, err := m.keyring.Get(ServiceName, Account)
	switch {
	case err == nil && token != "":
		return &TokenInfo{Source: SourceKeyring, Token: token, Found: true}, nil
	case errors.Is(err, ErrKeyringNotAvailable):
		utils.Debugf("keyring unavailable, falling back to %s", EnvToken)
	}

	// Priority 2: Try environment variable
	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		return &TokenInfo{Source: SourceEnvironment, Token: token, Found: true}, nil
	}

	// Priority 3: Config file
	if token := strings.TrimSpace(configToken); token != "" {
		return &TokenInfo{Source: SourceConfig, Token: token, Found: true}, nil
	}

	return &TokenInfo{Source: SourceNone}, nil
}

// Token resolves the token or returns ErrTokenNotConfigured
func (m *Manager) Token(ctx context.Context, configToken string) (string, error) {
	info, err := m.Resolve(ctx, configToken)
	if err != nil {
		return "", err
	}
	if !info.Found {
		return "", utils.ErrTokenNotConfigured()
	}
	return info.Token, nil
}

// DeleteToken removes the token from the keyring
func (m *Manager) DeleteToken(ctx context.Context) error {
	err := m.keyring.Delete(ServiceName, Account)
	// Idempotent: return nil if not found
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ValidateToken checks the "<bot id>:<secret>" shape of a Bot API token
func ValidateToken(token string) error {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || len(secret) < 20 || strings.ContainsFunc(id, func(r rune) bool { return !unicode.IsDigit(r) }) {
		return utils.WrapWithSuggestion(
			errors.New("malformed bot token"),
			"Copy the token exactly as @BotFather sent it, e.g. 123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11",
		)
	}
	return nil
}

// MaskToken hides all but the bot id and the last four characters
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	id, secret, ok := strings.Cut(token, ":")
	if !ok || len(secret) <= 4 {
		return "********"
	}
	return id + ":****" + secret[len(secret)-4:]
}

// PromptToken asks for the token. On a terminal the input is not echoed;
// otherwise a line is read from in.
func PromptToken(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Enter Telegram bot token: ")

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	token, err := utils.ReadStringWithReader(in)
	if err != nil {
		return "", fmt.Errorf("no input received: %w", err)
	}
	return token, nil
}
