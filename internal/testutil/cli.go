// Package testutil provides shared test utilities: a temporary task store,
// a recording chat transport and a CLI harness with isolated paths.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"planday/cmd/planday/cmd"
	"planday/internal/credentials"
)

// defaultTestConfig keeps tests away from the user's data and analytics.
const defaultTestConfig = `# test config
reminder:
  enabled: true
  time: "07:00"
logging:
  background_enabled: false
analytics:
  enabled: false
`

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	keyring    *credentials.MockKeyring
}

// NewCLITest creates a CLI test helper with its own config file, database
// and in-memory keyring.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(defaultTestConfig), 0600); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv(credentials.EnvToken, "")
	t.Setenv("PLANDAY_ANALYTICS_ENABLED", "")

	keyring := credentials.NewMockKeyring()
	cfg := &cmd.Config{
		ConfigPath: configPath,
		DBPath:     filepath.Join(tmpDir, "planday.db"),
		Keyring:    keyring,
	}

	return &CLITest{
		t:          t,
		cfg:        cfg,
		tmpDir:     tmpDir,
		configPath: configPath,
		keyring:    keyring,
	}
}

// Config returns the command configuration, for injecting a transport or
// event source before Execute.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// Keyring returns the in-memory keyring used by token commands.
func (c *CLITest) Keyring() *credentials.MockKeyring {
	return c.keyring
}

// TmpDir returns the test's temporary directory.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path of the test config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// DBPath returns the path of the test task database.
func (c *CLITest) DBPath() string {
	return c.cfg.DBPath
}

// SetFullConfig replaces the config file content.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0600); err != nil {
		c.t.Fatalf("failed to write config: %v", err)
	}
}

// Execute runs a CLI command and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()
	var outBuf, errBuf bytes.Buffer
	exitCode = cmd.Execute(args, &outBuf, &errBuf, c.cfg)
	return outBuf.String(), errBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()
	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstdout: %s\nstderr: %s", args, exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()
	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}
	return stdout, stderr
}
