// Package browser renders a user's tasks as day and detail views with
// selectable controls, and applies the button actions that mutate tasks.
package browser

import (
	"context"
	"fmt"
	"strings"

	"planday/backend"
	"planday/internal/chat"
	"planday/internal/utils"
)

// previewLength is the number of characters of a description shown on a
// day view button.
const previewLength = 15

// Browser renders views from a task store. It holds no per-user state.
type Browser struct {
	store backend.TaskStore
}

// New creates a browser over the given store
func New(store backend.TaskStore) *Browser {
	return &Browser{store: store}
}

// =============================================================================
// Views
// =============================================================================

// DayView renders the tasks of one day for an owner. A day without tasks
// renders a plain "no tasks" message without navigation controls.
func (b *Browser) DayView(ctx context.Context, ownerID int64, date string) (chat.Reply, error) {
	tasks, err := b.store.ListTasksForDay(ctx, ownerID, date)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("list tasks for %s: %w", date, err)
	}
	return renderDay(date, tasks)
}

// DetailView renders a single task with its actions. A task that does not
// exist or belongs to another user renders a not-found message.
func (b *Browser) DetailView(ctx context.Context, taskID, ownerID int64) (chat.Reply, error) {
	task, err := b.store.GetTask(ctx, taskID, ownerID)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	if task == nil {
		return NotFound(taskID), nil
	}
	return renderDetail(task), nil
}

// =============================================================================
// Actions
// =============================================================================

// MarkDone completes a task and returns a confirmation followed by the
// refreshed day view of the task's date.
func (b *Browser) MarkDone(ctx context.Context, taskID, ownerID int64) (chat.Reply, error) {
	return b.mutate(ctx, taskID, ownerID, b.store.MarkComplete,
		fmt.Sprintf("✅ Task #%d marked as done!", taskID))
}

// Delete removes a task and returns a confirmation followed by the
// refreshed day view of the task's former date.
func (b *Browser) Delete(ctx context.Context, taskID, ownerID int64) (chat.Reply, error) {
	return b.mutate(ctx, taskID, ownerID, b.store.DeleteTask,
		fmt.Sprintf("❌ Task #%d deleted!", taskID))
}

// ConfirmWithDay prefixes the day view of date with a confirmation line.
func (b *Browser) ConfirmWithDay(ctx context.Context, ownerID int64, date, confirmation string) (chat.Reply, error) {
	view, err := b.DayView(ctx, ownerID, date)
	if err != nil {
		return chat.Reply{}, err
	}
	view.Text = confirmation + "\n\n" + view.Text
	return view, nil
}

type mutation func(ctx context.Context, id, ownerID int64) (int64, error)

func (b *Browser) mutate(ctx context.Context, taskID, ownerID int64, apply mutation, confirmation string) (chat.Reply, error) {
	// The date is read first so the day can be re-rendered after a delete.
	task, err := b.store.GetTask(ctx, taskID, ownerID)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	if task == nil {
		return NotFound(taskID), nil
	}

	affected, err := apply(ctx, taskID, ownerID)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("update task %d: %w", taskID, err)
	}
	if affected == 0 {
		return NotFound(taskID), nil
	}

	return b.ConfirmWithDay(ctx, ownerID, task.Date, confirmation)
}

// NotFound is the reply for a task id that is missing or owned by someone else.
func NotFound(taskID int64) chat.Reply {
	return chat.Text(fmt.Sprintf("❌ Task #%d not found.", taskID))
}

// =============================================================================
// Rendering
// =============================================================================

func renderDay(date string, tasks []backend.Task) (chat.Reply, error) {
	if len(tasks) == 0 {
		return chat.Text(fmt.Sprintf("🤷 No tasks for %s!", date)), nil
	}

	prev, err := utils.ShiftDay(date, -1)
	if err != nil {
		return chat.Reply{}, err
	}
	next, err := utils.ShiftDay(date, 1)
	if err != nil {
		return chat.Reply{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 Tasks for %s:\n\n", date)

	keyboard := make(chat.Keyboard, 0, len(tasks)+1)
	for _, task := range tasks {
		glyph := backend.StatusGlyph(task.Completed)
		fmt.Fprintf(&sb, "%d. [%s] %s\n", task.ID, glyph, task.Description)
		keyboard = append(keyboard, []chat.Button{{
			Label:   fmt.Sprintf("%d. %s %s", task.ID, glyph, preview(task.Description)),
			Payload: ViewAction(task.ID).Payload(),
		}})
	}
	keyboard = append(keyboard, []chat.Button{
		{Label: "◀️ Previous day", Payload: PrevAction(prev).Payload()},
		{Label: "▶️ Next day", Payload: NextAction(next).Payload()},
	})

	return chat.Reply{Text: strings.TrimRight(sb.String(), "\n"), Keyboard: keyboard}, nil
}

func renderDetail(task *backend.Task) chat.Reply {
	status := "🟩 Pending"
	if task.Completed {
		status = "✅ Done"
	}

	text := fmt.Sprintf("📝 Task #%d\n\n🗓 Date: %s\n📌 Description: %s\n🔰 Status: %s",
		task.ID, task.Date, task.Description, status)

	return chat.Reply{
		Text: text,
		Keyboard: chat.Keyboard{
			{{Label: "✅ Mark done", Payload: DoneAction(task.ID).Payload()}},
			{{Label: "✏️ Edit", Payload: EditAction(task.ID).Payload()}},
			{{Label: "❌ Delete", Payload: DeleteAction(task.ID).Payload()}},
			{{Label: "🔙 Back to tasks", Payload: BackAction(task.Date).Payload()}},
		},
	}
}

// preview returns the first previewLength characters of s, marking a cut
// with an ellipsis.
func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLength {
		return s
	}
	return string(runes[:previewLength]) + "..."
}
