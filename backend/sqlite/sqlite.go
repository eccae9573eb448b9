package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
	"planday/backend"
)

// Backend implements backend.TaskStore using SQLite
type Backend struct {
	db *sql.DB
}

// New opens the SQLite database at path and initializes the schema
func New(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serializes
	// writers on the local file.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

// initSchema creates the tasks table if it doesn't exist
func (b *Backend) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// DB exposes the underlying handle so sibling services can share the file.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// CreateTask inserts a pending task and returns its identifier
func (b *Backend) CreateTask(ctx context.Context, ownerID int64, date, description string) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		"INSERT INTO tasks (owner_id, date, description, completed) VALUES (?, ?, ?, 0)",
		ownerID, date, description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTasksForDay returns the owner's tasks for a date in insertion order
func (b *Backend) ListTasksForDay(ctx context.Context, ownerID int64, date string) ([]backend.Task, error) {
	return b.queryTasks(ctx,
		`SELECT id, owner_id, date, description, completed
		 FROM tasks WHERE owner_id = ? AND date = ? ORDER BY id ASC`,
		ownerID, date,
	)
}

// ListPendingForDay returns the owner's incomplete tasks for a date
func (b *Backend) ListPendingForDay(ctx context.Context, ownerID int64, date string) ([]backend.Task, error) {
	return b.queryTasks(ctx,
		`SELECT id, owner_id, date, description, completed
		 FROM tasks WHERE owner_id = ? AND date = ? AND completed = 0 ORDER BY id ASC`,
		ownerID, date,
	)
}

func (b *Backend) queryTasks(ctx context.Context, query string, args ...any) ([]backend.Task, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []backend.Task
	for rows.Next() {
		t, err := scanTaskFrom(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}

	if tasks == nil {
		tasks = []backend.Task{}
	}
	return tasks, rows.Err()
}

// GetTask returns a specific task, or nil if it does not exist for this owner
func (b *Backend) GetTask(ctx context.Context, id, ownerID int64) (*backend.Task, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, owner_id, date, description, completed
		 FROM tasks WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)

	t, err := scanTaskFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// scanner is an interface satisfied by both *sql.Rows and *sql.Row
type scanner interface {
	Scan(dest ...any) error
}

// scanTaskFrom scans a task from any scanner (Rows or Row)
func scanTaskFrom(s scanner) (*backend.Task, error) {
	var t backend.Task
	var completed int
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Date, &t.Description, &completed); err != nil {
		return nil, err
	}
	t.Completed = completed != 0
	return &t, nil
}

// UpdateDescription replaces a task's text
func (b *Backend) UpdateDescription(ctx context.Context, id, ownerID int64, text string) (int64, error) {
	return b.exec(ctx, "UPDATE tasks SET description = ? WHERE id = ? AND owner_id = ?", text, id, ownerID)
}

// MarkComplete flags a task as done
func (b *Backend) MarkComplete(ctx context.Context, id, ownerID int64) (int64, error) {
	return b.exec(ctx, "UPDATE tasks SET completed = 1 WHERE id = ? AND owner_id = ?", id, ownerID)
}

// DeleteTask removes a task
func (b *Backend) DeleteTask(ctx context.Context, id, ownerID int64) (int64, error) {
	return b.exec(ctx, "DELETE FROM tasks WHERE id = ? AND owner_id = ?", id, ownerID)
}

func (b *Backend) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Verify interface compliance at compile time
var _ backend.TaskStore = (*Backend)(nil)
