// Package analytics provides local SQLite-based analytics for tracking which
// chat commands and buttons are used, how often they fail and how long they take.
package analytics

import "os"

// Event represents a single analytics event
type Event struct {
	ID         int64
	Timestamp  int64
	RequestID  string
	Kind       string // command, text or button
	Command    string // command name or button action
	UserID     int64
	Success    bool
	DurationMs int64
	ErrorType  string
}

// CommandStats summarizes the events of one command
type CommandStats struct {
	Kind          string
	Command       string
	Count         int64
	Failures      int64
	AvgDurationMs float64
}

// SuccessRate returns the share of successful events in percent.
func (s CommandStats) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Count-s.Failures) * 100 / float64(s.Count)
}

// IsEnabledFromEnv checks the PLANDAY_ANALYTICS_ENABLED environment variable
// and returns the effective enabled state. Environment variable overrides the
// config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv("PLANDAY_ANALYTICS_ENABLED")
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
