// Package telegram connects the planner to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"planday/internal/chat"
	"planday/internal/ratelimit"
	"planday/internal/utils"
)

// DefaultPollTimeout is the long polling timeout in seconds
const DefaultPollTimeout = 60

// Client is the subset of *tgbotapi.BotAPI used to deliver replies
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateSource is the subset of *tgbotapi.BotAPI used to receive updates
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var (
	_ Client       = (*tgbotapi.BotAPI)(nil)
	_ UpdateSource = (*tgbotapi.BotAPI)(nil)
)

// Connect authenticates with the Bot API
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, utils.ErrTokenNotConfigured()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = debug
	utils.Infof("Authorized on account %s", api.Self.UserName)
	return api, nil
}

// =============================================================================
// Transport
// =============================================================================

// Transport implements chat.Transport on top of the Bot API
type Transport struct {
	client Client
}

var _ chat.Transport = (*Transport)(nil)

// NewTransport creates a transport sending through client
func NewTransport(client Client) *Transport {
	return &Transport{client: client}
}

// Send posts a new message to the chat
func (t *Transport) Send(_ context.Context, chatID int64, reply chat.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if markup := inlineKeyboard(reply.Keyboard); markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := t.client.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, throttled(err))
	}
	return nil
}

// Edit replaces the text and buttons of an existing message. A reply without
// buttons removes the old keyboard.
func (t *Transport) Edit(_ context.Context, chatID int64, messageID int, reply chat.Reply) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
	edit.ReplyMarkup = inlineKeyboard(reply.Keyboard)

	if _, err := t.client.Send(edit); err != nil {
		// Re-rendering an unchanged view is not a failure.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message %d in chat %d: %w", messageID, chatID, throttled(err))
	}
	return nil
}

// Acknowledge answers a callback query so the client stops its spinner
func (t *Transport) Acknowledge(_ context.Context, queryID string) error {
	if queryID == "" {
		return nil
	}
	if _, err := t.client.Request(tgbotapi.NewCallback(queryID, "")); err != nil {
		return fmt.Errorf("answer callback %s: %w", queryID, err)
	}
	return nil
}

// throttled turns a 429 from the Bot API into a ratelimit.TooManyRequestsError
func throttled(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &ratelimit.TooManyRequestsError{
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	return err
}

func inlineKeyboard(k chat.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(k) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(k))
	for _, row := range k {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Payload))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// =============================================================================
// Updates
// =============================================================================

// EventFromUpdate converts an update into a chat event. Updates the planner
// does not handle (edited messages, stickers, channel posts) report false.
func EventFromUpdate(u tgbotapi.Update) (chat.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return chat.Event{}, false
		}
		return chat.Event{
			Kind:      chat.EventButton,
			UserID:    q.From.ID,
			ChatID:    q.Message.Chat.ID,
			MessageID: q.Message.MessageID,
			Payload:   q.Data,
			QueryID:   q.ID,
		}, true
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return chat.Event{}, false
		}
		return chat.NewTextEvent(m.From.ID, m.Chat.ID, m.Text), true
	default:
		return chat.Event{}, false
	}
}

// Poller turns long-polled updates into chat events
type Poller struct {
	source  UpdateSource
	timeout int
}

// NewPoller creates a poller. A non-positive timeout selects the default.
func NewPoller(source UpdateSource, timeout int) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{source: source, timeout: timeout}
}

// Events starts polling and returns the event stream. The stream is closed
// when ctx is cancelled or the update channel ends.
func (p *Poller) Events(ctx context.Context) <-chan chat.Event {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.source.GetUpdatesChan(cfg)

	out := make(chan chat.Event)
	go func() {
		defer close(out)
		defer p.source.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := EventFromUpdate(u)
				if !ok {
					utils.Debugf("skipping update %d", u.UpdateID)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
