package utils

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a task that does not exist or is not owned by the caller.
var ErrNotFound = errors.New("not found")

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for a task id that is missing or not owned.
func ErrTaskNotFound(id int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task %d: %w", id, ErrNotFound),
		Suggestion: "Use /list to see the ids of your tasks",
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15)",
	}
}

// ErrInvalidTaskID returns an error for a task id that is not an integer.
func ErrInvalidTaskID(input string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid task id: %s", input),
		Suggestion: "Task ids are whole numbers, e.g. 7",
	}
}

// ErrTokenNotConfigured returns an error when no bot token can be resolved.
func ErrTokenNotConfigured() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("telegram bot token not configured"),
		Suggestion: "Run 'planday token set', export PLANDAY_BOT_TOKEN, or set telegram.token in the config file",
	}
}

// ErrInvalidActionPayload returns an error for an unrecognized button payload.
func ErrInvalidActionPayload(payload string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid action payload: %q", payload),
		Suggestion: "Open a fresh task list with /list",
	}
}
