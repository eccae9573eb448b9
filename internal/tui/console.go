package tui

import (
	"context"
	"fmt"
	"sync"

	"planday/internal/chat"
)

// Message is one entry of the console transcript
type Message struct {
	ID       int
	FromUser bool
	Text     string
	Keyboard chat.Keyboard
}

// Console is an in-process chat.Transport that keeps the transcript shown by
// the terminal UI.
type Console struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
	notify   func()
}

var _ chat.Transport = (*Console)(nil)

// NewConsole creates an empty transcript
func NewConsole() *Console {
	return &Console{nextID: 1}
}

// SetNotify registers a callback run after every change made outside of the
// UI's own event handling, such as a scheduled digest.
func (c *Console) SetNotify(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Send appends a bot message
func (c *Console) Send(_ context.Context, _ int64, reply chat.Reply) error {
	c.mu.Lock()
	c.appendLocked(Message{Text: reply.Text, Keyboard: reply.Keyboard})
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Edit replaces the text and buttons of a bot message
func (c *Console) Edit(_ context.Context, _ int64, messageID int, reply chat.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.messages {
		if c.messages[i].ID == messageID && !c.messages[i].FromUser {
			c.messages[i].Text = reply.Text
			c.messages[i].Keyboard = reply.Keyboard
			return nil
		}
	}
	return fmt.Errorf("message %d not found", messageID)
}

// Acknowledge is a no-op: the console has no pending indicator
func (c *Console) Acknowledge(context.Context, string) error {
	return nil
}

// Messages returns a snapshot of the transcript
func (c *Console) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// addUser records a line typed by the user
func (c *Console) addUser(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(Message{FromUser: true, Text: text})
}

func (c *Console) appendLocked(m Message) {
	m.ID = c.nextID
	c.nextID++
	c.messages = append(c.messages, m)
}
