// Package chat defines the transport-neutral events and replies exchanged
// between the planner and a messaging gateway.
package chat

import (
	"context"
	"strings"
)

// EventKind identifies what the user did
type EventKind int

const (
	EventCommand EventKind = iota
	EventText
	EventButton
)

// String returns the event kind as used in logs and metrics labels.
func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventButton:
		return "button"
	default:
		return "unknown"
	}
}

// Event is one inbound unit of work from the transport
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int    // message carrying the pressed button (EventButton only)
	Command   string // without the leading slash, lower-case
	Args      []string
	Text      string
	Payload   string // opaque button payload
	QueryID   string // transport acknowledgement handle for button presses
}

// Button is a labeled selectable control with an opaque payload
type Button struct {
	Label   string
	Payload string
}

// Keyboard is a grid of buttons, one slice per row
type Keyboard [][]Button

// Reply is an outbound message. When Replace is set the transport edits the
// message the pressed button belongs to instead of sending a new one.
type Reply struct {
	Text     string
	Keyboard Keyboard
	Replace  bool
}

// Text builds a plain reply without controls.
func Text(text string) Reply {
	return Reply{Text: text}
}

// Transport delivers replies to a chat.
type Transport interface {
	Send(ctx context.Context, chatID int64, reply Reply) error
	Edit(ctx context.Context, chatID int64, messageID int, reply Reply) error
	// Acknowledge confirms receipt of a button press.
	Acknowledge(ctx context.Context, queryID string) error
}

// ParseCommand splits "/list 2024-03-10" into its command and arguments.
// It returns ok=false when text is not a command. A "@botname" suffix on the
// command is stripped.
func ParseCommand(text string) (command string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) == 1 {
		return "", nil, false
	}
	command = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:], true
}

// NewTextEvent classifies a typed line as a command or free text.
func NewTextEvent(userID, chatID int64, text string) Event {
	if command, args, ok := ParseCommand(text); ok {
		return Event{Kind: EventCommand, UserID: userID, ChatID: chatID, Command: command, Args: args, Text: text}
	}
	return Event{Kind: EventText, UserID: userID, ChatID: chatID, Text: text}
}

// ApologyText is shown when an operation failed for reasons the user cannot fix.
const ApologyText = "⚠️ Something went wrong. Please try again later."

// Apology builds the generic failure reply.
func Apology() Reply {
	return Reply{Text: ApologyText}
}
