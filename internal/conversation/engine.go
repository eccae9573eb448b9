// Package conversation drives the per-user add, edit and delete dialogs.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"planday/backend"
	"planday/internal/browser"
	"planday/internal/chat"
	"planday/internal/utils"
)

// Prompts shown while a flow is active.
const (
	promptDate        = "📅 Enter the date in YYYY-MM-DD format:"
	promptDateRetry   = "❌ Invalid date format! Try again (YYYY-MM-DD):"
	promptTaskText    = "✏️ Enter the task description:"
	promptEmptyText   = "✏️ The description cannot be empty. Enter the task description:"
	promptEditID      = "✏️ Enter the ID of the task to edit:"
	promptDeleteID    = "❌ Enter the ID of the task to delete:"
	promptIDRetry     = "❌ Invalid ID! Enter a number:"
	promptNewTextFor  = "📝 Enter the new text for task #%d:"
	messageCancelled  = "❌ Operation cancelled."
	messageNoFlow     = "Nothing to cancel."
	messageTaskAdded  = "✅ Task added for %s!"
	messageUpdated    = "✅ Task updated!"
	messageDeletedFmt = "✅ Task %d deleted!"
)

// TransitionFunc observes every state change of a flow.
type TransitionFunc func(flow Flow, from, to State)

// Option configures an Engine
type Option func(*Engine)

// WithTransitionHook registers a callback invoked on every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(e *Engine) {
		e.onTransition = fn
	}
}

// WithLogger sets the logger used for infrastructure failures.
func WithLogger(l *utils.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine advances the dialogs stored in a session table
type Engine struct {
	store        backend.TaskStore
	browser      *browser.Browser
	sessions     *Sessions
	logger       *utils.Logger
	onTransition TransitionFunc
}

// New creates an engine. The session table is owned by the caller so it can
// be shared or inspected.
func New(store backend.TaskStore, b *browser.Browser, sessions *Sessions, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		browser:  b,
		sessions: sessions,
		logger:   utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns a snapshot of the user's active flow.
func (e *Engine) Session(userID int64) (Session, bool) {
	return e.sessions.Get(userID)
}

// =============================================================================
// Entry points
// =============================================================================

// Starting any flow silently replaces a flow the user left unfinished.

// StartAdd begins the add flow.
func (e *Engine) StartAdd(userID int64) []chat.Reply {
	e.begin(userID, Session{Flow: FlowAdd, State: StateAwaitingDate})
	return replies(promptDate)
}

// StartEdit begins the edit flow by asking for a task id.
func (e *Engine) StartEdit(userID int64) []chat.Reply {
	e.begin(userID, Session{Flow: FlowEdit, State: StateAwaitingTaskID})
	return replies(promptEditID)
}

// StartEditAt begins the edit flow for a known task, skipping the id prompt.
func (e *Engine) StartEditAt(userID, taskID int64) []chat.Reply {
	e.begin(userID, Session{Flow: FlowEdit, State: StateAwaitingNewText, TaskID: taskID})
	return replies(fmt.Sprintf(promptNewTextFor, taskID))
}

// StartDelete begins the delete flow.
func (e *Engine) StartDelete(userID int64) []chat.Reply {
	e.begin(userID, Session{Flow: FlowDelete, State: StateAwaitingDeleteID})
	return replies(promptDeleteID)
}

// Cancel ends the user's flow, whatever its state.
func (e *Engine) Cancel(userID int64) []chat.Reply {
	sess, ok := e.sessions.Get(userID)
	if !ok {
		return replies(messageNoFlow)
	}
	e.finish(userID, sess)
	return replies(messageCancelled)
}

// Abort drops the user's flow without replying. It is used when a prompt
// could not be delivered, so the user is never left in a flow they did not
// see. It reports whether a flow was active.
func (e *Engine) Abort(userID int64) bool {
	sess, ok := e.sessions.Get(userID)
	if !ok {
		return false
	}
	e.logger.Warn("user %d: %s flow aborted in %s", userID, sess.Flow, sess.State)
	e.finish(userID, sess)
	return true
}

// HandleText feeds free text into the user's active flow. It reports false
// when the user has no active flow and the text was not consumed.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) ([]chat.Reply, bool) {
	sess, ok := e.sessions.Get(userID)
	if !ok {
		return nil, false
	}

	switch sess.State {
	case StateAwaitingDate:
		return e.handleDate(userID, sess, text), true
	case StateAwaitingTaskText:
		return e.handleTaskText(ctx, userID, sess, text), true
	case StateAwaitingTaskID:
		return e.handleEditID(ctx, userID, sess, text), true
	case StateAwaitingNewText:
		return e.handleNewText(ctx, userID, sess, text), true
	case StateAwaitingDeleteID:
		return e.handleDeleteID(ctx, userID, sess, text), true
	default:
		e.sessions.Clear(userID)
		return nil, false
	}
}

// =============================================================================
// Add flow
// =============================================================================

func (e *Engine) handleDate(userID int64, sess Session, text string) []chat.Reply {
	date, err := utils.NormalizeDay(text)
	if err != nil {
		e.logger.Debug("user %d: rejected date %q", userID, text)
		return replies(promptDateRetry)
	}

	next := sess
	next.State = StateAwaitingTaskText
	next.Date = date
	e.advance(userID, sess, next)
	return replies(promptTaskText)
}

func (e *Engine) handleTaskText(ctx context.Context, userID int64, sess Session, text string) []chat.Reply {
	description := strings.TrimSpace(text)
	if description == "" {
		return replies(promptEmptyText)
	}

	id, err := e.store.CreateTask(ctx, userID, sess.Date, description)
	if err != nil {
		return e.abort(userID, sess, "create task", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"task_id": id,
		"date":    sess.Date,
	}).Info("task created")
	e.finish(userID, sess)
	return replies(fmt.Sprintf(messageTaskAdded, sess.Date))
}

// =============================================================================
// Edit flow
// =============================================================================

func (e *Engine) handleEditID(ctx context.Context, userID int64, sess Session, text string) []chat.Reply {
	id, err := utils.ParseTaskID(text)
	if err != nil {
		return replies(promptIDRetry)
	}

	task, err := e.store.GetTask(ctx, id, userID)
	if err != nil {
		return e.abort(userID, sess, "get task", err)
	}
	if task == nil {
		e.finish(userID, sess)
		return []chat.Reply{browser.NotFound(id)}
	}

	next := sess
	next.State = StateAwaitingNewText
	next.TaskID = id
	e.advance(userID, sess, next)
	return replies(fmt.Sprintf(promptNewTextFor, id))
}

func (e *Engine) handleNewText(ctx context.Context, userID int64, sess Session, text string) []chat.Reply {
	description := strings.TrimSpace(text)
	if description == "" {
		return replies(promptEmptyText)
	}

	affected, err := e.store.UpdateDescription(ctx, sess.TaskID, userID, description)
	if err != nil {
		return e.abort(userID, sess, "update task", err)
	}
	if affected == 0 {
		e.finish(userID, sess)
		return []chat.Reply{browser.NotFound(sess.TaskID)}
	}

	task, err := e.store.GetTask(ctx, sess.TaskID, userID)
	if err != nil {
		return e.abort(userID, sess, "get task", err)
	}
	if task == nil {
		// Deleted between the update and the lookup.
		e.finish(userID, sess)
		return replies(messageUpdated)
	}

	return e.confirmWithDay(ctx, userID, sess, task.Date, messageUpdated)
}

// =============================================================================
// Delete flow
// =============================================================================

func (e *Engine) handleDeleteID(ctx context.Context, userID int64, sess Session, text string) []chat.Reply {
	id, err := utils.ParseTaskID(text)
	if err != nil {
		return replies(promptIDRetry)
	}

	task, err := e.store.GetTask(ctx, id, userID)
	if err != nil {
		return e.abort(userID, sess, "get task", err)
	}
	if task == nil {
		e.finish(userID, sess)
		return []chat.Reply{browser.NotFound(id)}
	}

	affected, err := e.store.DeleteTask(ctx, id, userID)
	if err != nil {
		return e.abort(userID, sess, "delete task", err)
	}
	if affected == 0 {
		e.finish(userID, sess)
		return []chat.Reply{browser.NotFound(id)}
	}

	return e.confirmWithDay(ctx, userID, sess, task.Date, fmt.Sprintf(messageDeletedFmt, id))
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) confirmWithDay(ctx context.Context, userID int64, sess Session, date, confirmation string) []chat.Reply {
	e.finish(userID, sess)
	view, err := e.browser.ConfirmWithDay(ctx, userID, date, confirmation)
	if err != nil {
		// The mutation already happened; report it even without the day view.
		e.logFailure(userID, sess, "render day", err)
		return replies(confirmation)
	}
	return []chat.Reply{view}
}

func (e *Engine) begin(userID int64, sess Session) {
	prev, ok := e.sessions.Get(userID)
	if ok {
		e.logger.Debug("user %d: %s flow replaced by %s", userID, prev.Flow, sess.Flow)
		e.transition(prev.Flow, prev.State, StateIdle)
	}
	e.sessions.Put(userID, sess)
	e.transition(sess.Flow, StateIdle, sess.State)
}

func (e *Engine) advance(userID int64, from, to Session) {
	e.sessions.Put(userID, to)
	e.transition(to.Flow, from.State, to.State)
}

func (e *Engine) finish(userID int64, sess Session) {
	e.sessions.Clear(userID)
	e.transition(sess.Flow, sess.State, StateIdle)
}

// abort ends the flow after an infrastructure failure.
func (e *Engine) abort(userID int64, sess Session, op string, err error) []chat.Reply {
	e.logFailure(userID, sess, op, err)
	e.finish(userID, sess)
	return []chat.Reply{chat.Apology()}
}

func (e *Engine) logFailure(userID int64, sess Session, op string, err error) {
	e.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"flow":    sess.Flow.String(),
		"state":   sess.State.String(),
	}).Errorf("%s: %v", op, err)
}

func (e *Engine) transition(flow Flow, from, to State) {
	if e.onTransition != nil {
		e.onTransition(flow, from, to)
	}
}

func replies(texts ...string) []chat.Reply {
	out := make([]chat.Reply, 0, len(texts))
	for _, t := range texts {
		out = append(out, chat.Text(t))
	}
	return out
}
