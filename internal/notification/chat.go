package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"planday/internal/chat"
)

const defaultChatTimeout = 10 * time.Second

// chatNotificationChannel pushes notifications as chat messages
type chatNotificationChannel struct {
	config       *ChatNotificationConfig
	transport    chat.Transport
	sendCallback func(Notification)
}

// NewChatNotificationChannel creates a channel that delivers through a chat transport
func NewChatNotificationChannel(cfg *ChatNotificationConfig, opts ...Option) NotificationChannel {
	ch := &chatNotificationChannel{config: cfg}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Send delivers the notification message to its chat
func (c *chatNotificationChannel) Send(n Notification) error {
	if !c.shouldSend(n.Type) {
		return nil
	}
	if c.transport == nil {
		return errors.New("chat notification channel has no transport")
	}
	if n.ChatID == 0 {
		return fmt.Errorf("%s notification has no destination chat", n.Type)
	}

	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.transport.Send(ctx, n.ChatID, chat.Text(n.Message)); err != nil {
		return fmt.Errorf("failed to deliver %s notification: %w", n.Type, err)
	}

	if c.sendCallback != nil {
		c.sendCallback(n)
	}
	return nil
}

// shouldSend checks the per-type switches
func (c *chatNotificationChannel) shouldSend(t NotificationType) bool {
	switch t {
	case NotifyDigest:
		return c.config.OnDigest
	case NotifyTest:
		return c.config.OnTest
	default:
		return true
	}
}

// Close is a no-op; the transport is owned by the caller
func (c *chatNotificationChannel) Close() error {
	return nil
}
