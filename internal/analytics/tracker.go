package analytics

import (
	"database/sql"
	"strings"
	"sync"
	"time"
)

// Tracker handles analytics event recording
type Tracker struct {
	db      *sql.DB
	enabled bool
	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewTracker creates a new analytics tracker.
// If enabled is false, tracking is disabled but the database is still created.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:      db,
		enabled: enabled,
	}, nil
}

// Enabled reports whether events are recorded
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Close waits for pending writes and closes the database connection
func (t *Tracker) Close() error {
	t.pending.Wait()
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// Flush blocks until every event recorded so far is written
func (t *Tracker) Flush() {
	t.pending.Wait()
}

// TrackEvent wraps the handling of one chat event with analytics tracking.
// The provided function is always executed, but events are only recorded
// when analytics is enabled.
func (t *Tracker) TrackEvent(requestID, kind, command string, userID int64, fn func() error) error {
	if !t.enabled {
		return fn()
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	event := Event{
		Timestamp:  time.Now().Unix(),
		RequestID:  requestID,
		Kind:       kind,
		Command:    command,
		UserID:     userID,
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		event.ErrorType = categorizeError(err)
	}

	// Log asynchronously to avoid slowing down replies
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.logEvent(event)
	}()

	return err
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, _ = t.db.Exec(`
		INSERT INTO events (timestamp, request_id, kind, command, user_id, success, duration_ms, error_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.Timestamp, nullString(event.RequestID), event.Kind, event.Command, event.UserID,
		boolToInt(event.Success), event.DurationMs, nullString(event.ErrorType))
}

// Summary aggregates events newer than since, busiest commands first
func (t *Tracker) Summary(since time.Time) ([]CommandStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.db.Query(`
		SELECT kind, command, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), AVG(duration_ms)
		FROM events
		WHERE timestamp >= ?
		GROUP BY kind, command
		ORDER BY COUNT(*) DESC, kind, command
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []CommandStats
	for rows.Next() {
		var s CommandStats
		var avg sql.NullFloat64
		if err := rows.Scan(&s.Kind, &s.Command, &s.Count, &s.Failures, &avg); err != nil {
			return nil, err
		}
		s.AvgDurationMs = avg.Float64
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Vacuum to reclaim space
	_, _ = t.db.Exec("VACUUM")

	return deleted, nil
}

// categorizeError categorizes an error into a general type
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return "network"
	case strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "forbidden"):
		return "auth"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validation"):
		return "validation"
	case strings.Contains(errStr, "database") || strings.Contains(errStr, "sqlite"):
		return "storage"
	default:
		return "unknown"
	}
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
