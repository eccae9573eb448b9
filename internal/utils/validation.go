package utils

import (
	"strconv"
	"strings"
	"time"

	"planday/backend"
)

// ParseDay parses a strict YYYY-MM-DD calendar date.
// Surrounding whitespace is ignored; anything else must match exactly.
// Dates are handled in UTC so day arithmetic never crosses a DST gap.
func ParseDay(dateStr string) (time.Time, error) {
	trimmed := strings.TrimSpace(dateStr)
	parsed, err := time.ParseInLocation(backend.DateLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate(dateStr)
	}
	return parsed, nil
}

// NormalizeDay validates a date and returns its canonical string form.
func NormalizeDay(dateStr string) (string, error) {
	day, err := ParseDay(dateStr)
	if err != nil {
		return "", err
	}
	return day.Format(backend.DateLayout), nil
}

// ShiftDay returns the calendar day offset by the given number of days.
func ShiftDay(dateStr string, days int) (string, error) {
	day, err := ParseDay(dateStr)
	if err != nil {
		return "", err
	}
	return day.AddDate(0, 0, days).Format(backend.DateLayout), nil
}

// FormatDay renders the calendar date of t in its own location.
func FormatDay(t time.Time) string {
	return t.Format(backend.DateLayout)
}

// ParseTaskID parses a user-supplied task identifier.
func ParseTaskID(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, ErrInvalidTaskID(input)
	}
	return id, nil
}
