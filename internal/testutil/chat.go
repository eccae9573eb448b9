package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"planday/backend/sqlite"
	"planday/internal/chat"
)

// NewTestStore opens a task store backed by a database file in a temporary
// directory that is removed when the test ends.
func NewTestStore(t *testing.T) *sqlite.Backend {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// =============================================================================
// Recording transport
// =============================================================================

// Delivery is one reply captured by a RecordingTransport.
type Delivery struct {
	ChatID    int64
	MessageID int // non-zero for edits
	Reply     chat.Reply
}

// RecordingTransport is a chat.Transport that keeps every delivery in memory.
type RecordingTransport struct {
	mu           sync.Mutex
	deliveries   []Delivery
	acknowledged []string

	// Err, when set, is returned by every Send and Edit call.
	Err error
}

var _ chat.Transport = (*RecordingTransport)(nil)

// Send records a new message.
func (r *RecordingTransport) Send(_ context.Context, chatID int64, reply chat.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.deliveries = append(r.deliveries, Delivery{ChatID: chatID, Reply: reply})
	return nil
}

// Edit records a replacement of an existing message.
func (r *RecordingTransport) Edit(_ context.Context, chatID int64, messageID int, reply chat.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.deliveries = append(r.deliveries, Delivery{ChatID: chatID, MessageID: messageID, Reply: reply})
	return nil
}

// Acknowledge records a button press acknowledgement.
func (r *RecordingTransport) Acknowledge(_ context.Context, queryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acknowledged = append(r.acknowledged, queryID)
	return nil
}

// Deliveries returns a copy of everything delivered so far.
func (r *RecordingTransport) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Acknowledged returns the query ids acknowledged so far.
func (r *RecordingTransport) Acknowledged() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.acknowledged))
	copy(out, r.acknowledged)
	return out
}

// Last returns the most recent delivery, failing the test if there is none.
func (r *RecordingTransport) Last(t *testing.T) Delivery {
	t.Helper()
	deliveries := r.Deliveries()
	if len(deliveries) == 0 {
		t.Fatal("expected at least one delivery, got none")
	}
	return deliveries[len(deliveries)-1]
}

// Transcript joins the text of every delivery, one per line.
func (r *RecordingTransport) Transcript() string {
	var sb strings.Builder
	for _, d := range r.Deliveries() {
		sb.WriteString(d.Reply.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Reset drops recorded deliveries and acknowledgements.
func (r *RecordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
	r.acknowledged = nil
}

// Payloads flattens the button payloads of a keyboard in row order.
func Payloads(k chat.Keyboard) []string {
	var out []string
	for _, row := range k {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}
