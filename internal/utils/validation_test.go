package utils

import (
	"errors"
	"testing"
)

// =============================================================================
// Date and id validation
// =============================================================================

// TestParseDayValid verifies strict YYYY-MM-DD dates parse
func TestParseDayValid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2024-03-10", "2024-03-10"},
		{"2024-02-29", "2024-02-29"},
		{"  2025-12-31\n", "2025-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeDay(tt.input)
			if err != nil {
				t.Fatalf("NormalizeDay(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDay(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseDayInvalid verifies malformed dates return ErrorWithSuggestion
func TestParseDayInvalid(t *testing.T) {
	invalid := []string{"not-a-date", "", "2024-13-01", "2023-02-29", "2024/03/10", "10-03-2024", "2024-3-1"}

	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDay(input)
			if err == nil {
				t.Fatalf("ParseDay(%q) = nil error, want error", input)
			}
			var errWithSuggestion *ErrorWithSuggestion
			if !errors.As(err, &errWithSuggestion) {
				t.Errorf("ParseDay(%q) should return *ErrorWithSuggestion", input)
			}
		})
	}
}

// TestShiftDay verifies calendar arithmetic across month, leap-year and year boundaries
func TestShiftDay(t *testing.T) {
	tests := []struct {
		date string
		days int
		want string
	}{
		{"2024-03-01", -1, "2024-02-29"},
		{"2024-03-01", 1, "2024-03-02"},
		{"2024-01-01", -1, "2023-12-31"},
		{"2023-03-01", -1, "2023-02-28"},
		{"2024-12-31", 1, "2025-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := ShiftDay(tt.date, tt.days)
			if err != nil {
				t.Fatalf("ShiftDay error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ShiftDay(%q, %d) = %q, want %q", tt.date, tt.days, got, tt.want)
			}
		})
	}
}

// TestParseTaskID verifies numeric ids parse and everything else fails
func TestParseTaskID(t *testing.T) {
	id, err := ParseTaskID(" 7 ")
	if err != nil || id != 7 {
		t.Errorf("ParseTaskID(\" 7 \") = (%d, %v), want (7, nil)", id, err)
	}

	for _, input := range []string{"seven", "", "7.5", "7a"} {
		if _, err := ParseTaskID(input); err == nil {
			t.Errorf("ParseTaskID(%q) = nil error, want error", input)
		}
	}
}
