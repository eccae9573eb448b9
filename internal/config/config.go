// Package config handles application configuration
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"planday/internal/notification"
	"planday/internal/reminder"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Reminder  ReminderConfig  `yaml:"reminder"`
	Logging   LoggingConfig   `yaml:"logging"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig holds the task database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig holds Bot API settings
type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout int    `yaml:"poll_timeout"` // seconds
	Debug       bool   `yaml:"debug"`
}

// ReminderConfig holds daily digest settings
type ReminderConfig struct {
	Enabled         *bool  `yaml:"enabled"` // default: true
	Time            string `yaml:"time"`
	LogNotification bool   `yaml:"log_notification"`
	LogPath         string `yaml:"log_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose           bool   `yaml:"verbose"`
	Format            string `yaml:"format"`
	BackgroundEnabled *bool  `yaml:"background_enabled"` // Controls background log file creation (default: true)
}

// AnalyticsConfig holds analytics settings
type AnalyticsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(GetDataDir(), "planday.db"),
		},
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Reminder: ReminderConfig{
			Time: reminder.DefaultTime,
		},
		Logging: LoggingConfig{
			Format: "text",
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			RetentionDays: 365,
		},
	}
}

// DefaultConfigPath returns the XDG location of the config file
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the documented sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML and applies defaults for unset fields
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(GetDataDir(), "planday.db")
	}
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Reminder.LogPath = ExpandPath(cfg.Reminder.LogPath)

	return cfg, nil
}

// WriteSample writes the documented sample config to path, creating parent
// directories. An existing file is left untouched.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may later hold the bot token
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %q (must be 'text' or 'json')", c.Logging.Format)
	}

	if c.Reminder.Time != "" {
		if _, err := reminder.ParseClockTime(c.Reminder.Time); err != nil {
			return fmt.Errorf("invalid reminder.time: %w", err)
		}
	}

	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must not be negative, got %d", c.Telegram.PollTimeout)
	}

	if c.Analytics.RetentionDays < 0 {
		return fmt.Errorf("analytics.retention_days must not be negative, got %d", c.Analytics.RetentionDays)
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(dbPath string, verbose bool) {
	if dbPath != "" {
		c.Database.Path = ExpandPath(dbPath)
	}
	if verbose {
		c.Logging.Verbose = true
	}
}

// GetDatabasePath returns the path to the SQLite database
func (c *Config) GetDatabasePath() string {
	return c.Database.Path
}

// GetAnalyticsPath returns the analytics database, next to the task database
func (c *Config) GetAnalyticsPath() string {
	return filepath.Join(filepath.Dir(c.Database.Path), "analytics.db")
}

// IsReminderEnabled returns true unless reminders are explicitly disabled
func (c *Config) IsReminderEnabled() bool {
	if c.Reminder.Enabled == nil {
		return true
	}
	return *c.Reminder.Enabled
}

// GetNotificationLogPath returns the digest log file.
// Defaults to notifications.log in the data directory.
func (c *Config) GetNotificationLogPath() string {
	if c.Reminder.LogPath != "" {
		return c.Reminder.LogPath
	}
	return filepath.Join(GetDataDir(), "notifications.log")
}

// ReminderSettings converts the reminder section for the reminder service
func (c *Config) ReminderSettings() *reminder.Config {
	at := c.Reminder.Time
	if at == "" {
		at = reminder.DefaultTime
	}
	return &reminder.Config{
		Enabled:         c.IsReminderEnabled(),
		Time:            at,
		LogNotification: c.Reminder.LogNotification,
		LogPath:         c.GetNotificationLogPath(),
	}
}

// NotificationSettings builds the digest delivery channels: always the chat,
// plus the log file when reminder.log_notification is set.
func (c *Config) NotificationSettings() *notification.Config {
	return &notification.Config{
		Enabled: true,
		ChatNotification: notification.ChatNotificationConfig{
			Enabled:  true,
			OnDigest: true,
			OnTest:   true,
		},
		LogNotification: notification.LogNotificationConfig{
			Enabled:   c.Reminder.LogNotification,
			Path:      c.GetNotificationLogPath(),
			MaxSizeMB: 10,
		},
	}
}

// GetPollTimeout returns the long polling timeout in seconds.
// Returns 60 (default) if not configured.
func (c *Config) GetPollTimeout() int {
	if c.Telegram.PollTimeout <= 0 {
		return 60
	}
	return c.Telegram.PollTimeout
}

// GetLogFormat returns the log format, "text" by default
func (c *Config) GetLogFormat() string {
	if c.Logging.Format == "" {
		return "text"
	}
	return c.Logging.Format
}

// IsAnalyticsEnabled returns true if analytics is enabled in config
func (c *Config) IsAnalyticsEnabled() bool {
	return c.Analytics.Enabled
}

// GetAnalyticsRetentionDays returns the analytics retention period in days.
// Returns 365 (default) if not configured.
func (c *Config) GetAnalyticsRetentionDays() int {
	if c.Analytics.RetentionDays <= 0 {
		return 365 // Default retention period
	}
	return c.Analytics.RetentionDays
}

// IsBackgroundLoggingEnabled returns true if background logging is enabled.
// Background logging creates PID-specific log files in /tmp while the console runs.
// Returns true (default) if not configured.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true // Default: enabled
	}
	return *c.Logging.BackgroundEnabled
}

// LoadFromPath loads configuration from a specific path without creating defaults
func LoadFromPath(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist, return nil config
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "planday")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "planday")
	}
	return filepath.Join(home, fallbackPath, "planday")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
