package notification

import "planday/internal/chat"

// manager implements NotificationManager
type manager struct {
	channels     []NotificationChannel
	enabled      bool
	transport    chat.Transport
	sendCallback func(Notification)
}

// NewManager creates a new NotificationManager based on configuration.
// The chat channel is only added when a transport is supplied with WithTransport.
func NewManager(cfg *Config, opts ...Option) (NotificationManager, error) {
	m := &manager{
		channels: []NotificationChannel{},
		enabled:  cfg.Enabled,
	}

	// Apply options first to get the transport
	for _, opt := range opts {
		opt(m)
	}

	if !cfg.Enabled {
		return m, nil
	}

	if cfg.ChatNotification.Enabled && m.transport != nil {
		chatOpts := []Option{WithTransport(m.transport)}
		if m.sendCallback != nil {
			chatOpts = append(chatOpts, WithSendCallback(m.sendCallback))
		}
		m.channels = append(m.channels, NewChatNotificationChannel(&cfg.ChatNotification, chatOpts...))
	}

	if cfg.LogNotification.Enabled {
		logChannel := NewLogNotificationChannel(&cfg.LogNotification)
		m.channels = append(m.channels, logChannel)
	}

	return m, nil
}

// Send dispatches notification to all enabled channels
func (m *manager) Send(n Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close cleans up resources
func (m *manager) Close() error {
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ChannelCount returns the number of active channels
func (m *manager) ChannelCount() int {
	return len(m.channels)
}
