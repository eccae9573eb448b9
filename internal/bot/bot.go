// Package bot routes chat events to the task browser, the dialog engine and
// the reminder service, and delivers their replies through a transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"planday/internal/analytics"
	"planday/internal/browser"
	"planday/internal/chat"
	"planday/internal/conversation"
	"planday/internal/metrics"
	"planday/internal/reminder"
	"planday/internal/utils"
)

// Replies of the front-end itself.
const (
	greeting           = "👋 Hi! I'm your personal day planner."
	messageUnknown     = "🤔 Unknown command. Send /help to see what I can do."
	messageBadListDate = "❌ Invalid date format! Use /list YYYY-MM-DD, or just /list for today."
	messageStaleButton = "⚠️ This button is no longer valid."
)

// Registrar enrolls a chat for the daily digest
type Registrar interface {
	Register(ctx context.Context, ownerID, chatID int64) (bool, error)
}

var _ Registrar = (*reminder.Service)(nil)

// Option configures a Bot
type Option func(*Bot)

// WithReminders enables digest registration on /start. at is announced in
// the greeting.
func WithReminders(r Registrar, at reminder.ClockTime) Option {
	return func(b *Bot) {
		b.reminders = r
		b.reminderAt = at.String()
	}
}

// WithTracker records every handled event in the analytics database.
func WithTracker(t *analytics.Tracker) Option {
	return func(b *Bot) {
		b.tracker = t
	}
}

// WithClock overrides the source of "today" for /list.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		b.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *utils.Logger) Option {
	return func(b *Bot) {
		b.logger = l
	}
}

// Bot is the command front-end
type Bot struct {
	transport  chat.Transport
	engine     *conversation.Engine
	browser    *browser.Browser
	reminders  Registrar
	reminderAt string
	tracker    *analytics.Tracker
	now        func() time.Time
	logger     *utils.Logger
}

// New creates a bot delivering replies through transport.
func New(transport chat.Transport, engine *conversation.Engine, b *browser.Browser, opts ...Option) *Bot {
	bot := &Bot{
		transport: transport,
		engine:    engine,
		browser:   b,
		now:       time.Now,
		logger:    utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(bot)
	}
	return bot
}

// Serve handles events in arrival order until the channel is closed or ctx
// is cancelled.
func (b *Bot) Serve(ctx context.Context, events <-chan chat.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = b.Handle(ctx, ev)
		}
	}
}

// Handle processes one event. Failures are reported to the user as an
// apology; the returned error is for logging and metrics only.
func (b *Bot) Handle(ctx context.Context, ev chat.Event) error {
	requestID := uuid.NewString()
	name := eventName(ev)
	log := b.logger.WithRequestID(requestID).WithFields(logrus.Fields{
		"user_id": ev.UserID,
		"chat_id": ev.ChatID,
		"kind":    ev.Kind.String(),
		"command": name,
	})
	log.Debug("handling event")

	done := metrics.TrackEvent(ev.Kind.String(), name)
	handle := func() error { return b.dispatch(ctx, log, ev) }

	var err error
	if b.tracker != nil {
		err = b.tracker.TrackEvent(requestID, ev.Kind.String(), name, ev.UserID, handle)
	} else {
		err = handle()
	}
	done(err)

	if err != nil {
		log.WithError(err).Error("event failed")
	}
	return err
}

// eventName is the label an event is counted under
func eventName(ev chat.Event) string {
	switch ev.Kind {
	case chat.EventCommand:
		return ev.Command
	case chat.EventButton:
		if action, err := browser.ParseAction(ev.Payload); err == nil {
			return action.Kind.String()
		}
		return "invalid"
	default:
		return "message"
	}
}

func (b *Bot) dispatch(ctx context.Context, log *logrus.Entry, ev chat.Event) error {
	switch ev.Kind {
	case chat.EventCommand:
		return b.handleCommand(ctx, log, ev)
	case chat.EventText:
		replies, ok := b.engine.HandleText(ctx, ev.UserID, ev.Text)
		if !ok {
			log.Debug("ignoring text outside of a dialog")
			return nil
		}
		return b.deliverFlow(ctx, log, ev, replies...)
	case chat.EventButton:
		return b.handleButton(ctx, log, ev)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// =============================================================================
// Commands
// =============================================================================

func (b *Bot) handleCommand(ctx context.Context, log *logrus.Entry, ev chat.Event) error {
	switch ev.Command {
	case "start":
		b.register(ctx, log, ev)
		return b.deliver(ctx, ev, chat.Text(greeting+"\n\n"+b.helpText()))
	case "help":
		return b.deliver(ctx, ev, chat.Text(b.helpText()))
	case "add":
		return b.deliverFlow(ctx, log, ev, b.engine.StartAdd(ev.UserID)...)
	case "list":
		return b.handleList(ctx, ev)
	case "edit":
		return b.deliverFlow(ctx, log, ev, b.engine.StartEdit(ev.UserID)...)
	case "delete":
		return b.deliverFlow(ctx, log, ev, b.engine.StartDelete(ev.UserID)...)
	case "cancel":
		return b.deliver(ctx, ev, b.engine.Cancel(ev.UserID)...)
	default:
		return b.deliver(ctx, ev, chat.Text(messageUnknown))
	}
}

// register enrolls the chat for the digest. The greeting is sent either way.
func (b *Bot) register(ctx context.Context, log *logrus.Entry, ev chat.Event) {
	if b.reminders == nil {
		log.Warn("reminders unavailable, skipping digest registration")
		return
	}

	created, err := b.reminders.Register(ctx, ev.UserID, ev.ChatID)
	switch {
	case errors.Is(err, reminder.ErrDisabled):
		log.Warn("reminders are disabled, skipping digest registration")
	case err != nil:
		log.WithError(err).Error("digest registration failed")
	case created:
		log.Info("registered daily digest")
	}
}

func (b *Bot) handleList(ctx context.Context, ev chat.Event) error {
	date := utils.FormatDay(b.now())
	if len(ev.Args) > 0 {
		normalized, err := utils.NormalizeDay(ev.Args[0])
		if err != nil {
			return b.deliver(ctx, ev, chat.Text(messageBadListDate))
		}
		date = normalized
	}

	reply, err := b.browser.DayView(ctx, ev.UserID, date)
	if err != nil {
		_ = b.deliver(ctx, ev, chat.Apology())
		return fmt.Errorf("day view for %s: %w", date, err)
	}
	return b.deliver(ctx, ev, reply)
}

func (b *Bot) helpText() string {
	var sb strings.Builder
	sb.WriteString("Here is what I can do:\n\n")
	sb.WriteString("/add - add a task for a date\n")
	sb.WriteString("/list [YYYY-MM-DD] - show the tasks of a day (today by default)\n")
	sb.WriteString("/edit - change the text of a task\n")
	sb.WriteString("/delete - delete a task\n")
	sb.WriteString("/cancel - cancel the current operation\n")
	sb.WriteString("/help - show this message")
	if b.reminders != nil && b.reminderAt != "" {
		fmt.Fprintf(&sb, "\n\n⏰ Every day at %s I'll send you your pending tasks.", b.reminderAt)
	}
	return sb.String()
}

// =============================================================================
// Buttons
// =============================================================================

func (b *Bot) handleButton(ctx context.Context, log *logrus.Entry, ev chat.Event) error {
	if err := b.transport.Acknowledge(ctx, ev.QueryID); err != nil {
		log.WithError(err).Warn("failed to acknowledge button press")
	}

	action, err := browser.ParseAction(ev.Payload)
	if err != nil {
		log.WithField("payload", ev.Payload).Warn("rejected button payload")
		text := messageStaleButton
		var withSuggestion *utils.ErrorWithSuggestion
		if errors.As(err, &withSuggestion) {
			text += " " + withSuggestion.GetSuggestion() + "."
		}
		return b.deliver(ctx, ev, chat.Text(text))
	}
	metrics.ObserveAction(action.Kind.String())

	var reply chat.Reply
	switch action.Kind {
	case browser.ActionView:
		reply, err = b.browser.DetailView(ctx, action.TaskID, ev.UserID)
	case browser.ActionDone:
		reply, err = b.browser.MarkDone(ctx, action.TaskID, ev.UserID)
	case browser.ActionDelete:
		reply, err = b.browser.Delete(ctx, action.TaskID, ev.UserID)
	case browser.ActionEdit:
		return b.deliverFlow(ctx, log, ev, b.engine.StartEditAt(ev.UserID, action.TaskID)...)
	case browser.ActionPrev, browser.ActionNext, browser.ActionBack:
		reply, err = b.browser.DayView(ctx, ev.UserID, action.Date)
	default:
		return fmt.Errorf("unhandled action %s", action.Kind)
	}

	if err != nil {
		apology := chat.Apology()
		apology.Replace = true
		if sendErr := b.deliver(ctx, ev, apology); sendErr != nil {
			log.WithError(sendErr).Debug("failed to replace message with apology")
		}
		return fmt.Errorf("%s action: %w", action.Kind, err)
	}

	reply.Replace = true
	return b.deliver(ctx, ev, reply)
}

// =============================================================================
// Delivery
// =============================================================================

// deliver sends replies in order. Replacing replies edit the message the
// pressed button belongs to.
func (b *Bot) deliver(ctx context.Context, ev chat.Event, replies ...chat.Reply) error {
	for _, reply := range replies {
		var err error
		if reply.Replace && ev.Kind == chat.EventButton && ev.MessageID != 0 {
			err = b.transport.Edit(ctx, ev.ChatID, ev.MessageID, reply)
		} else {
			err = b.transport.Send(ctx, ev.ChatID, reply)
		}
		if err != nil {
			return fmt.Errorf("deliver reply: %w", err)
		}
	}
	return nil
}

// deliverFlow sends replies produced by a dialog step. A failed send ends the
// dialog.
func (b *Bot) deliverFlow(ctx context.Context, log *logrus.Entry, ev chat.Event, replies ...chat.Reply) error {
	err := b.deliver(ctx, ev, replies...)
	if err != nil && b.engine.Abort(ev.UserID) {
		log.WithError(err).Warn("dialog aborted after failed delivery")
	}
	return err
}
