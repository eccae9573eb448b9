package backend

import (
	"context"
)

// DateLayout is the storage and wire format of a task's day bucket.
const DateLayout = "2006-01-02"

// Task represents a dated todo item owned by a single chat user
type Task struct {
	ID          int64
	OwnerID     int64
	Date        string // YYYY-MM-DD
	Description string
	Completed   bool
}

// TaskStore defines the interface for task persistence.
//
// Every method is scoped by the owning user. Mutations report the number of
// affected rows; zero means the task does not exist or belongs to someone else.
type TaskStore interface {
	CreateTask(ctx context.Context, ownerID int64, date, description string) (int64, error)
	ListTasksForDay(ctx context.Context, ownerID int64, date string) ([]Task, error)
	ListPendingForDay(ctx context.Context, ownerID int64, date string) ([]Task, error)
	GetTask(ctx context.Context, id, ownerID int64) (*Task, error)
	UpdateDescription(ctx context.Context, id, ownerID int64, text string) (int64, error)
	MarkComplete(ctx context.Context, id, ownerID int64) (int64, error)
	DeleteTask(ctx context.Context, id, ownerID int64) (int64, error)

	// Connection management
	Close() error
}

// StatusGlyph returns the marker shown next to a task in listings.
func StatusGlyph(completed bool) string {
	if completed {
		return "✅"
	}
	return "🟩"
}
