package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CLIHandler handles the token subcommands
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIHandler creates a new CLI handler for token commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Set prompts for the token and stores it in the keyring
func (h *CLIHandler) Set() error {
	token, err := PromptToken(h.stdin, h.stdout)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	err = h.manager.SetToken(context.Background(), token)
	if err != nil {
		// Check if keyring is not available and provide helpful guidance
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError()
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError returns a helpful error message when keyring is not available
func (h *CLIHandler) keyringNotAvailableError() error {
	msg := fmt.Sprintf(`System keyring not available on this machine.

Alternative: provide the token through the environment:
  export %s="123456:your-bot-token"

or set telegram.token in the config file (keep it readable only by you).
Run 'planday token status' to verify the token is detected.
`, EnvToken)

	return errors.New(msg)
}

// Status shows where the token would be resolved from
func (h *CLIHandler) Status(configToken string, jsonOutput bool) error {
	info, err := h.manager.Resolve(context.Background(), configToken)
	if err != nil {
		return fmt.Errorf("failed to resolve token: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(data))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No bot token found\n")
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring (%s): Not found\n", ServiceName)
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variable %s: Not set\n", EnvToken)
		_, _ = fmt.Fprintf(h.stdout, "  - Config telegram.token: Not set\n")
		_, _ = fmt.Fprintf(h.stdout, "\nSuggestion: Run 'planday token set'\n")
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: %s\n", MaskToken(info.Token))
	_, _ = fmt.Fprintf(h.stdout, "Status: Available\n")
	return nil
}

// Delete removes the token from the keyring
func (h *CLIHandler) Delete() error {
	if err := h.manager.DeleteToken(context.Background()); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError()
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}
