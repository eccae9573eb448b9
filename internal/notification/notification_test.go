package notification_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"planday/internal/notification"
	"planday/internal/testutil"
)

// =============================================================================
// Unit Tests - Chat Notification
// =============================================================================

// TestChatNotificationDelivers tests that a digest is sent to its chat as plain text
func TestChatNotificationDelivers(t *testing.T) {
	transport := &testutil.RecordingTransport{}
	var sent []notification.Notification

	channel := notification.NewChatNotificationChannel(
		&notification.ChatNotificationConfig{Enabled: true, OnDigest: true},
		notification.WithTransport(transport),
		notification.WithSendCallback(func(n notification.Notification) {
			sent = append(sent, n)
		}),
	)

	err := channel.Send(notification.Notification{
		Type:      notification.NotifyDigest,
		Title:     "Daily digest",
		Message:   "🌞 Good morning!\n\n• Buy milk",
		ChatID:    42,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	last := transport.Last(t)
	if last.ChatID != 42 {
		t.Errorf("expected chat 42, got %d", last.ChatID)
	}
	testutil.AssertContains(t, last.Reply.Text, "• Buy milk")
	if len(last.Reply.Keyboard) != 0 {
		t.Errorf("expected no keyboard, got %v", last.Reply.Keyboard)
	}
	if len(sent) != 1 {
		t.Errorf("expected callback once, got %d", len(sent))
	}
}

// TestChatNotificationRequiresChat tests that a notification without a destination fails
func TestChatNotificationRequiresChat(t *testing.T) {
	channel := notification.NewChatNotificationChannel(
		&notification.ChatNotificationConfig{Enabled: true, OnDigest: true},
		notification.WithTransport(&testutil.RecordingTransport{}),
	)

	err := channel.Send(notification.Notification{Type: notification.NotifyDigest, Message: "x"})
	if err == nil {
		t.Fatal("expected error for missing chat id")
	}
}

// TestChatNotificationTransportError tests that delivery errors are returned
func TestChatNotificationTransportError(t *testing.T) {
	transport := &testutil.RecordingTransport{Err: errors.New("network down")}
	channel := notification.NewChatNotificationChannel(
		&notification.ChatNotificationConfig{Enabled: true, OnDigest: true},
		notification.WithTransport(transport),
	)

	err := channel.Send(notification.Notification{Type: notification.NotifyDigest, Message: "x", ChatID: 1})
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

// TestNotificationTypeFiltering tests that notification types are filtered based on config
func TestNotificationTypeFiltering(t *testing.T) {
	transport := &testutil.RecordingTransport{}
	channel := notification.NewChatNotificationChannel(
		&notification.ChatNotificationConfig{
			Enabled:  true,
			OnDigest: true,
			OnTest:   false, // Disabled
		},
		notification.WithTransport(transport),
	)

	// Test notifications are filtered
	if err := channel.Send(notification.Notification{Type: notification.NotifyTest, Message: "ping", ChatID: 1}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Digests pass through
	if err := channel.Send(notification.Notification{Type: notification.NotifyDigest, Message: "digest", ChatID: 1}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	deliveries := transport.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].Reply.Text != "digest" {
		t.Errorf("expected digest to be sent, got %q", deliveries[0].Reply.Text)
	}
}

// =============================================================================
// Unit Tests - Log Notification
// =============================================================================

// TestLogNotification tests that notifications are written to log file with correct format
func TestLogNotification(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "notifications.log")

	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{
		Enabled:   true,
		Path:      logPath,
		MaxSizeMB: 10,
	})
	defer func() { _ = channel.Close() }()

	n := notification.Notification{
		Type:      notification.NotifyDigest,
		Title:     "Daily digest",
		Message:   "Good morning!\n• Buy milk",
		ChatID:    42,
		Timestamp: time.Date(2026, 1, 16, 7, 0, 0, 0, time.UTC),
		Metadata:  map[string]string{notification.MetaOwnerID: "100"},
	}

	if err := channel.Send(n); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)

	testutil.AssertContains(t, content, "2026-01-16T07:00:00Z")
	testutil.AssertContains(t, content, "[DIGEST]")
	testutil.AssertContains(t, content, "[DIGEST] owner=100 chat=42 Good morning! | • Buy milk")

	if lines := strings.Count(content, "\n"); lines != 1 {
		t.Errorf("expected a single log line, got %d", lines)
	}
}

// TestReadAndClearLog tests reading back and truncating the log
func TestReadAndClearLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")

	entries, err := notification.ReadLog(logPath)
	if err != nil || entries != nil {
		t.Fatalf("missing log should read as empty, got %v, %v", entries, err)
	}

	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{Enabled: true, Path: logPath})
	for i := 0; i < 3; i++ {
		_ = channel.Send(notification.Notification{Type: notification.NotifyTest, Message: "ping", Timestamp: time.Now()})
	}
	_ = channel.Close()

	entries, err = notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Type != notification.NotifyTest || entries[0].Message != "ping" || entries[0].OwnerID != 0 {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	if err := notification.ClearLog(logPath); err != nil {
		t.Fatalf("ClearLog failed: %v", err)
	}
	entries, _ = notification.ReadLog(logPath)
	if len(entries) != 0 {
		t.Errorf("expected empty log after clear, got %d entries", len(entries))
	}
}

// =============================================================================
// Unit Tests - Configuration
// =============================================================================

// TestNotificationConfig tests that configuration enables/disables notification channels
func TestNotificationConfig(t *testing.T) {
	tests := []struct {
		name             string
		chatEnabled      bool
		withTransport    bool
		logEnabled       bool
		expectedChannels int
	}{
		{"both enabled", true, true, true, 2},
		{"only chat enabled", true, true, false, 1},
		{"chat without transport", true, false, true, 1},
		{"only log enabled", false, true, true, 1},
		{"both disabled", false, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &notification.Config{
				Enabled:          true,
				ChatNotification: notification.ChatNotificationConfig{Enabled: tt.chatEnabled, OnDigest: true},
				LogNotification: notification.LogNotificationConfig{
					Enabled: tt.logEnabled,
					Path:    filepath.Join(t.TempDir(), "notifications.log"),
				},
			}

			var opts []notification.Option
			if tt.withTransport {
				opts = append(opts, notification.WithTransport(&testutil.RecordingTransport{}))
			}

			manager, err := notification.NewManager(cfg, opts...)
			if err != nil {
				t.Fatalf("failed to create manager: %v", err)
			}
			defer func() { _ = manager.Close() }()

			if got := manager.ChannelCount(); got != tt.expectedChannels {
				t.Errorf("expected %d channels, got %d", tt.expectedChannels, got)
			}
		})
	}
}

// TestNotificationDisabled tests that when notifications are disabled nothing is sent
func TestNotificationDisabled(t *testing.T) {
	transport := &testutil.RecordingTransport{}
	manager, err := notification.NewManager(&notification.Config{
		Enabled:          false,
		ChatNotification: notification.ChatNotificationConfig{Enabled: true, OnDigest: true},
	}, notification.WithTransport(transport))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	defer func() { _ = manager.Close() }()

	if err := manager.Send(notification.Notification{Type: notification.NotifyDigest, Message: "x", ChatID: 1}); err != nil {
		t.Errorf("expected no error for disabled notifications, got %v", err)
	}
	if len(transport.Deliveries()) != 0 {
		t.Error("expected no deliveries when disabled")
	}
}

// TestManagerFansOut tests that one notification reaches every channel
func TestManagerFansOut(t *testing.T) {
	transport := &testutil.RecordingTransport{}
	logPath := filepath.Join(t.TempDir(), "notifications.log")

	manager, err := notification.NewManager(&notification.Config{
		Enabled:          true,
		ChatNotification: notification.ChatNotificationConfig{Enabled: true, OnDigest: true},
		LogNotification:  notification.LogNotificationConfig{Enabled: true, Path: logPath},
	}, notification.WithTransport(transport))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	defer func() { _ = manager.Close() }()

	if err := manager.Send(notification.Notification{Type: notification.NotifyDigest, Message: "hello", ChatID: 5, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Both channels have delivered by the time Send returns.
	if len(transport.Deliveries()) != 1 {
		t.Errorf("expected 1 chat delivery, got %d", len(transport.Deliveries()))
	}
	entries, _ := notification.ReadLog(logPath)
	if len(entries) != 1 {
		t.Errorf("expected 1 log entry, got %d", len(entries))
	}
}

// TestLogEntriesByOwner tests that logged digests keep their owner and can be filtered
func TestLogEntriesByOwner(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	channel := notification.NewLogNotificationChannel(&notification.LogNotificationConfig{Enabled: true, Path: logPath})
	defer func() { _ = channel.Close() }()

	at := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	for _, owner := range []string{"100", "200", "100"} {
		err := channel.Send(notification.Notification{
			Type:      notification.NotifyDigest,
			Message:   "Good morning!\n• Task for " + owner,
			ChatID:    9,
			Timestamp: at,
			Metadata:  map[string]string{notification.MetaOwnerID: owner},
		})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	entries, err := notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	mine := notification.FilterByOwner(entries, 100)
	if len(mine) != 2 {
		t.Fatalf("expected 2 entries for owner 100, got %d", len(mine))
	}
	first := mine[0]
	if !first.Time.Equal(at) || first.ChatID != 9 || first.Type != notification.NotifyDigest {
		t.Errorf("unexpected entry %+v", first)
	}
	if first.Message != "Good morning! | • Task for 100" {
		t.Errorf("message = %q", first.Message)
	}
	if got := first.String(); got != "2024-03-10T07:00:00Z [DIGEST] owner=100 chat=9 Good morning! | • Task for 100" {
		t.Errorf("String() = %q", got)
	}
}

// TestReadLogSkipsMalformedLines tests that foreign lines in the log are ignored
func TestReadLogSkipsMalformedLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "notifications.log")
	content := "garbage\n2024-03-10T07:00:00Z [TEST] owner=- chat=3 ping\nnot-a-time [TEST] owner=- chat=3 x\n"
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ChatID != 3 || entries[0].Message != "ping" {
		t.Errorf("unexpected entries %+v", entries)
	}
}
