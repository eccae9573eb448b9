package notification

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const logTimeLayout = "2006-01-02T15:04:05Z"

// LogEntry is one line of the notification log:
//
//	2026-01-16T07:00:00Z [DIGEST] owner=100 chat=42 Good morning! | • Buy milk
//
// OwnerID is 0 when the notification carried no owner.
type LogEntry struct {
	Time    time.Time
	Type    NotificationType
	OwnerID int64
	ChatID  int64
	Message string
}

func entryFor(n Notification) LogEntry {
	entry := LogEntry{
		Time:    n.Timestamp.UTC(),
		Type:    n.Type,
		ChatID:  n.ChatID,
		Message: strings.ReplaceAll(n.Message, "\n", " | "),
	}
	if raw, ok := n.Metadata[MetaOwnerID]; ok {
		entry.OwnerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	return entry
}

// String renders the entry in log-file form
func (e LogEntry) String() string {
	owner := "-"
	if e.OwnerID != 0 {
		owner = strconv.FormatInt(e.OwnerID, 10)
	}
	return fmt.Sprintf("%s [%s] owner=%s chat=%d %s",
		e.Time.Format(logTimeLayout), strings.ToUpper(string(e.Type)), owner, e.ChatID, e.Message)
}

// parseLogEntry reverses String.
func parseLogEntry(line string) (LogEntry, error) {
	fields := strings.SplitN(line, " ", 5)
	if len(fields) < 4 {
		return LogEntry{}, fmt.Errorf("malformed log line %q", line)
	}

	var entry LogEntry
	ts, err := time.Parse(logTimeLayout, fields[0])
	if err != nil {
		return LogEntry{}, fmt.Errorf("malformed log time %q: %w", fields[0], err)
	}
	entry.Time = ts

	kind := strings.TrimSuffix(strings.TrimPrefix(fields[1], "["), "]")
	entry.Type = NotificationType(strings.ToLower(kind))

	owner := strings.TrimPrefix(fields[2], "owner=")
	if owner != "-" {
		if entry.OwnerID, err = strconv.ParseInt(owner, 10, 64); err != nil {
			return LogEntry{}, fmt.Errorf("malformed owner %q", fields[2])
		}
	}
	if entry.ChatID, err = strconv.ParseInt(strings.TrimPrefix(fields[3], "chat="), 10, 64); err != nil {
		return LogEntry{}, fmt.Errorf("malformed chat %q", fields[3])
	}
	if len(fields) == 5 {
		entry.Message = fields[4]
	}
	return entry, nil
}

// =============================================================================
// Channel
// =============================================================================

// logNotificationChannel appends delivered digests to a local file
type logNotificationChannel struct {
	config *LogNotificationConfig
	file   *os.File
	mu     sync.Mutex
}

// NewLogNotificationChannel creates a new log notification channel
func NewLogNotificationChannel(cfg *LogNotificationConfig) NotificationChannel {
	return &logNotificationChannel{
		config: cfg,
	}
}

// Send appends one entry and syncs the file
func (c *logNotificationChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(); err != nil {
		return err
	}

	if _, err := c.file.WriteString(entryFor(n).String() + "\n"); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return c.file.Sync()
}

func (c *logNotificationChannel) open() error {
	if c.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := c.rotate(); err != nil {
		return err
	}

	file, err := os.OpenFile(c.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	c.file = file
	return nil
}

// rotate moves a log over MaxSizeMB aside to <path>.old. Only checked when
// the file is opened, so once per process.
func (c *logNotificationChannel) rotate() error {
	if c.config.MaxSizeMB <= 0 {
		return nil
	}
	info, err := os.Stat(c.config.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < int64(c.config.MaxSizeMB)*1024*1024 {
		return nil
	}
	if err := os.Rename(c.config.Path, c.config.Path+".old"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Close closes the log file
func (c *logNotificationChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// =============================================================================
// Reading
// =============================================================================

// ReadLog returns the logged entries, oldest first. A missing file reads as
// empty. Lines that do not parse are skipped.
func ReadLog(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry, err := parseLogEntry(scanner.Text())
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// FilterByOwner keeps the entries addressed to one user
func FilterByOwner(entries []LogEntry, ownerID int64) []LogEntry {
	var out []LogEntry
	for _, e := range entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

// ClearLog truncates the log file
func ClearLog(path string) error {
	return os.WriteFile(path, []byte{}, 0644)
}
