package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"planday/internal/chat"
	"planday/internal/ratelimit"
)

func TestEventFromUpdate(t *testing.T) {
	user := &tgbotapi.User{ID: 7}
	group := &tgbotapi.Chat{ID: 70}

	tests := []struct {
		name   string
		update tgbotapi.Update
		want   chat.Event
		ok     bool
	}{
		{
			name:   "command with argument",
			update: tgbotapi.Update{Message: &tgbotapi.Message{From: user, Chat: group, Text: "/list@planday_bot 2024-03-10"}},
			want:   chat.Event{Kind: chat.EventCommand, UserID: 7, ChatID: 70, Command: "list", Args: []string{"2024-03-10"}, Text: "/list@planday_bot 2024-03-10"},
			ok:     true,
		},
		{
			name:   "free text",
			update: tgbotapi.Update{Message: &tgbotapi.Message{From: user, Chat: group, Text: "Buy milk"}},
			want:   chat.Event{Kind: chat.EventText, UserID: 7, ChatID: 70, Text: "Buy milk"},
			ok:     true,
		},
		{
			name: "button press",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				ID:      "cb-1",
				From:    user,
				Data:    "view_3",
				Message: &tgbotapi.Message{MessageID: 12, Chat: group},
			}},
			want: chat.Event{Kind: chat.EventButton, UserID: 7, ChatID: 70, MessageID: 12, Payload: "view_3", QueryID: "cb-1"},
			ok:   true,
		},
		{
			name:   "sticker",
			update: tgbotapi.Update{Message: &tgbotapi.Message{From: user, Chat: group}},
			ok:     false,
		},
		{
			name:   "callback without message",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb-2", From: user, Data: "view_3"}},
			ok:     false,
		},
		{
			name:   "edited message",
			update: tgbotapi.Update{EditedMessage: &tgbotapi.Message{From: user, Chat: group, Text: "x"}},
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EventFromUpdate(tt.update)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Kind != tt.want.Kind || got.UserID != tt.want.UserID || got.ChatID != tt.want.ChatID ||
				got.MessageID != tt.want.MessageID || got.Command != tt.want.Command || got.Text != tt.want.Text ||
				got.Payload != tt.want.Payload || got.QueryID != tt.want.QueryID || len(got.Args) != len(tt.want.Args) {
				t.Errorf("EventFromUpdate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransportSendWithKeyboard(t *testing.T) {
	client := &fakeClient{}
	transport := NewTransport(client)

	reply := chat.Reply{
		Text: "📝 Tasks for 2024-03-10:",
		Keyboard: chat.Keyboard{
			{{Label: "1. 🟩 Buy milk", Payload: "view_1"}},
			{{Label: "◀️ Previous day", Payload: "prev_2024-03-09"}, {Label: "▶️ Next day", Payload: "next_2024-03-11"}},
		},
	}
	if err := transport.Send(context.Background(), 70, reply); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msg, ok := client.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", client.sent[0])
	}
	if msg.ChatID != 70 || msg.Text != reply.Text {
		t.Errorf("unexpected message %+v", msg)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[1]) != 2 {
		t.Fatalf("unexpected layout %+v", markup.InlineKeyboard)
	}
	next := markup.InlineKeyboard[1][1]
	if next.Text != "▶️ Next day" || next.CallbackData == nil || *next.CallbackData != "next_2024-03-11" {
		t.Errorf("unexpected button %+v", next)
	}
}

func TestTransportSendPlain(t *testing.T) {
	client := &fakeClient{}
	if err := NewTransport(client).Send(context.Background(), 70, chat.Text("hi")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msg := client.sent[0].(tgbotapi.MessageConfig)
	if msg.ReplyMarkup != nil {
		t.Errorf("expected no markup, got %v", msg.ReplyMarkup)
	}
}

func TestTransportEdit(t *testing.T) {
	client := &fakeClient{}
	transport := NewTransport(client)

	if err := transport.Edit(context.Background(), 70, 12, chat.Text("🤷 No tasks for 2024-03-10!")); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	edit, ok := client.sent[0].(tgbotapi.EditMessageTextConfig)
	if !ok {
		t.Fatalf("expected EditMessageTextConfig, got %T", client.sent[0])
	}
	if edit.ChatID != 70 || edit.MessageID != 12 || edit.ReplyMarkup != nil {
		t.Errorf("unexpected edit %+v", edit)
	}
}

func TestTransportEditNotModified(t *testing.T) {
	client := &fakeClient{err: errors.New("Bad Request: message is not modified")}
	if err := NewTransport(client).Edit(context.Background(), 70, 12, chat.Text("same")); err != nil {
		t.Errorf("expected unchanged edit to succeed, got %v", err)
	}

	client.err = errors.New("Bad Request: message to edit not found")
	if err := NewTransport(client).Edit(context.Background(), 70, 12, chat.Text("same")); err == nil {
		t.Error("expected edit error")
	}
}

func TestTransportThrottled(t *testing.T) {
	client := &fakeClient{err: &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 3",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3},
	}}

	err := NewTransport(client).Send(context.Background(), 70, chat.Text("hi"))

	var tooMany *ratelimit.TooManyRequestsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyRequestsError, got %v", err)
	}
	if tooMany.RetryAfter != 3*time.Second {
		t.Errorf("expected retry after 3s, got %v", tooMany.RetryAfter)
	}

	client.err = &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	err = NewTransport(client).Send(context.Background(), 70, chat.Text("hi"))
	if errors.As(err, &tooMany) {
		t.Errorf("expected a plain error for 400, got %v", err)
	}
}

func TestTransportAcknowledge(t *testing.T) {
	client := &fakeClient{}
	transport := NewTransport(client)

	if err := transport.Acknowledge(context.Background(), "cb-1"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	cb, ok := client.requested[0].(tgbotapi.CallbackConfig)
	if !ok || cb.CallbackQueryID != "cb-1" {
		t.Errorf("unexpected callback %+v", client.requested[0])
	}

	if err := transport.Acknowledge(context.Background(), ""); err != nil {
		t.Errorf("empty query id should be a no-op, got %v", err)
	}
	if len(client.requested) != 1 {
		t.Errorf("expected a single request, got %d", len(client.requested))
	}
}

func TestPollerEvents(t *testing.T) {
	source := &fakeSource{updates: make(chan tgbotapi.Update, 3)}
	source.updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}}}
	source.updates <- tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "/add"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := NewPoller(source, 0).Events(ctx)

	select {
	case ev := <-events:
		if ev.Kind != chat.EventCommand || ev.Command != "add" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	if source.config.Timeout != DefaultPollTimeout {
		t.Errorf("timeout = %d, want %d", source.config.Timeout, DefaultPollTimeout)
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed stream after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
	if !source.stopped {
		t.Error("expected polling to be stopped")
	}
}

func TestConnectRequiresToken(t *testing.T) {
	if _, err := Connect("  ", false); err == nil {
		t.Fatal("expected error for empty token")
	}
}

// =============================================================================
// Fakes
// =============================================================================

type fakeClient struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	err       error
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

type fakeSource struct {
	updates chan tgbotapi.Update
	config  tgbotapi.UpdateConfig
	stopped bool
}

func (f *fakeSource) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.config = config
	return f.updates
}

func (f *fakeSource) StopReceivingUpdates() {
	f.stopped = true
}
