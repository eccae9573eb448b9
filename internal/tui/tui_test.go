package tui_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"planday/internal/bot"
	"planday/internal/browser"
	"planday/internal/chat"
	"planday/internal/conversation"
	"planday/internal/testutil"
	"planday/internal/tui"
)

const user int64 = 42

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(50 * time.Millisecond)
}

// typeLine types text and presses enter.
func typeLine(tm *teatest.TestModel, text string) {
	for _, r := range text {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
}

// readAll reads all output from a reader and returns as bytes
func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

type fixture struct {
	console *tui.Console
	store   interface {
		CreateTask(ctx context.Context, ownerID int64, date, description string) (int64, error)
	}
	handle tui.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	console := tui.NewConsole()
	b := browser.New(store)
	engine := conversation.New(store, b, conversation.NewSessions())
	planner := bot.New(console, engine, b)
	return &fixture{console: console, store: store, handle: planner.Handle}
}

func (f *fixture) start(t *testing.T) *teatest.TestModel {
	t.Helper()
	tm := teatest.NewTestModel(t, tui.New(f.handle, f.console, user), teatest.WithInitialTermSize(100, 40))
	time.Sleep(50 * time.Millisecond)
	return tm
}

func (f *fixture) finish(t *testing.T, tm *teatest.TestModel) []byte {
	t.Helper()
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyCtrlC})
	return readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(2*time.Second)))
}

// =============================================================================
// Console transport
// =============================================================================

func TestConsoleSendAndEdit(t *testing.T) {
	console := tui.NewConsole()
	ctx := context.Background()

	notified := 0
	console.SetNotify(func() { notified++ })

	if err := console.Send(ctx, 1, chat.Reply{Text: "first", Keyboard: chat.Keyboard{{{Label: "a", Payload: "view_1"}}}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msgs := console.Messages()
	if len(msgs) != 1 || msgs[0].ID != 1 || msgs[0].FromUser {
		t.Fatalf("unexpected transcript %+v", msgs)
	}

	if err := console.Edit(ctx, 1, msgs[0].ID, chat.Text("second")); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	msgs = console.Messages()
	if msgs[0].Text != "second" || len(msgs[0].Keyboard) != 0 {
		t.Errorf("expected edited message without keyboard, got %+v", msgs[0])
	}

	if err := console.Edit(ctx, 1, 99, chat.Text("x")); err == nil {
		t.Error("expected error editing unknown message")
	}
	if notified != 1 {
		t.Errorf("expected one notification, got %d", notified)
	}
}

// =============================================================================
// Terminal UI
// =============================================================================

// TestTUILaunch - the console renders and quits cleanly
func TestTUILaunch(t *testing.T) {
	f := newFixture(t)
	tm := f.start(t)

	out := f.finish(t, tm)
	if !bytes.Contains(out, []byte("planday console")) {
		t.Error("expected status bar to be rendered")
	}
}

// TestTUIHelpCommand - typed commands reach the bot
func TestTUIHelpCommand(t *testing.T) {
	f := newFixture(t)
	tm := f.start(t)

	typeLine(tm, "/help")
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("/cancel"))
	}, teatest.WithDuration(2*time.Second))

	_ = f.finish(t, tm)
}

// TestTUIAddFlow - a full add dialog through the console
func TestTUIAddFlow(t *testing.T) {
	f := newFixture(t)
	tm := f.start(t)

	typeLine(tm, "/add")
	typeLine(tm, "2024-03-10")
	typeLine(tm, "Buy milk")
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Task added for 2024-03-10"))
	}, teatest.WithDuration(2*time.Second))

	_ = f.finish(t, tm)

	msgs := f.console.Messages()
	if last := msgs[len(msgs)-1]; !strings.Contains(last.Text, "Task added") {
		t.Errorf("unexpected last message %+v", last)
	}
}

// TestTUIButtonPress - tab selects the keyboard and enter presses a button
func TestTUIButtonPress(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.CreateTask(context.Background(), user, "2024-03-10", "Buy milk"); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	tm := f.start(t)

	typeLine(tm, "/list 2024-03-10")
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Buy milk"))
	}, teatest.WithDuration(2*time.Second))

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyTab})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Mark done"))
	}, teatest.WithDuration(2*time.Second))

	_ = f.finish(t, tm)

	// The day view message was replaced by the detail view
	var replies []tui.Message
	for _, m := range f.console.Messages() {
		if !m.FromUser {
			replies = append(replies, m)
		}
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Task #") {
		t.Errorf("expected the list to be replaced by the detail view, got %+v", replies)
	}
}

// TestTUIHandlerError - failures show in the status bar
func TestTUIHandlerError(t *testing.T) {
	console := tui.NewConsole()
	handle := func(context.Context, chat.Event) error { return errors.New("boom") }

	tm := teatest.NewTestModel(t, tui.New(handle, console, user), teatest.WithInitialTermSize(100, 40))
	time.Sleep(50 * time.Millisecond)

	typeLine(tm, "hello")
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("boom"))
	}, teatest.WithDuration(2*time.Second))

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}
