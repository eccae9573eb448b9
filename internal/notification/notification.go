// Package notification delivers digests and operator messages over chat
// and to a local log file.
package notification

import (
	"time"

	"planday/internal/chat"
)

// NotificationType identifies the type of notification
type NotificationType string

const (
	NotifyDigest NotificationType = "digest"
	NotifyTest   NotificationType = "test"
)

// MetaOwnerID is the metadata key carrying the user a notification is for
const MetaOwnerID = "owner_id"

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	ChatID    int64 // destination chat; required by the chat channel
	Timestamp time.Time
	Metadata  map[string]string
}

// NotificationManager is the interface for managing notifications
type NotificationManager interface {
	Send(n Notification) error
	Close() error
	ChannelCount() int
}

// NotificationChannel is the interface for a notification channel
type NotificationChannel interface {
	Send(n Notification) error
	Close() error
}

// Config holds the notification configuration
type Config struct {
	Enabled          bool
	ChatNotification ChatNotificationConfig
	LogNotification  LogNotificationConfig
}

// ChatNotificationConfig holds chat delivery configuration
type ChatNotificationConfig struct {
	Enabled  bool
	OnDigest bool
	OnTest   bool
	Timeout  time.Duration
}

// LogNotificationConfig holds log notification configuration
type LogNotificationConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
}

// Option is a functional option for configuring notification channels
type Option func(interface{})

// WithTransport sets the chat transport used by the chat channel
func WithTransport(transport chat.Transport) Option {
	return func(c interface{}) {
		if ch, ok := c.(*chatNotificationChannel); ok {
			ch.transport = transport
		}
		if mgr, ok := c.(*manager); ok {
			mgr.transport = transport
		}
	}
}

// WithSendCallback sets a callback to be called when a notification is sent
func WithSendCallback(callback func(Notification)) Option {
	return func(c interface{}) {
		if ch, ok := c.(*chatNotificationChannel); ok {
			ch.sendCallback = callback
		}
		if mgr, ok := c.(*manager); ok {
			mgr.sendCallback = callback
		}
	}
}
