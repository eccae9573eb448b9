// Package reminder schedules the daily digest of pending tasks for every
// user who started the bot.
package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"planday/backend"
	"planday/internal/notification"
	"planday/internal/utils"
)

// DefaultTime is the digest time used when none is configured
const DefaultTime = "07:00"

// ErrDisabled is returned by Register when reminders are turned off
var ErrDisabled = errors.New("reminders are disabled")

// ErrDeliverySuspended is reported for digests skipped while the circuit
// breaker is open
var ErrDeliverySuspended = errors.New("digest delivery suspended after repeated failures")

// Config holds the reminder configuration
type Config struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Time            string `yaml:"time" json:"time"`
	LogNotification bool   `yaml:"log_notification" json:"log_notification"`
	LogPath         string `yaml:"log_path" json:"log_path"`
}

// DefaultConfig returns reminders enabled at 07:00
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Time:    DefaultTime,
	}
}

// ClockTime returns the configured digest time, falling back to DefaultTime.
func (c *Config) ClockTime() (ClockTime, error) {
	if strings.TrimSpace(c.Time) == "" {
		return ParseClockTime(DefaultTime)
	}
	return ParseClockTime(c.Time)
}

// Registration is a user enrolled for the daily digest
type Registration struct {
	OwnerID      int64
	ChatID       int64
	RegisteredAt time.Time
}

// Service manages digest registrations
type Service struct {
	config    *Config
	at        ClockTime
	db        *sql.DB
	store     backend.TaskStore
	scheduler Scheduler
	notifier  notification.NotificationManager
	breaker   *CircuitBreaker
	now       func() time.Time
	logger    *utils.Logger
	onDigest  func(err error)
}

// NewService creates a reminder service. Registrations are kept in db, which
// may be the task store's own database.
func NewService(cfg *Config, db *sql.DB, store backend.TaskStore, scheduler Scheduler) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	at, err := cfg.ClockTime()
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			owner_id INTEGER PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			registered_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminders table: %w", err)
	}

	return &Service{
		config:    cfg,
		at:        at,
		db:        db,
		store:     store,
		scheduler: scheduler,
		breaker:   NewCircuitBreaker(DefaultBreakerThreshold, DefaultBreakerCooldown),
		now:       time.Now,
		logger:    utils.GetLogger(),
	}, nil
}

// SetNotifier sets the notification manager for sending digests
func (s *Service) SetNotifier(notifier notification.NotificationManager) {
	s.notifier = notifier
}

// SetDigestObserver registers a callback run after every scheduled digest
// with its delivery error, if any.
func (s *Service) SetDigestObserver(fn func(err error)) {
	s.onDigest = fn
}

// SetCircuitBreaker replaces the breaker guarding scheduled digests. A nil
// breaker disables it.
func (s *Service) SetCircuitBreaker(cb *CircuitBreaker) {
	s.breaker = cb
}

// SetClock overrides the source of "now" used to pick the digest day
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Time returns the configured digest time
func (s *Service) Time() ClockTime {
	return s.at
}

// =============================================================================
// Registration
// =============================================================================

// Register enrolls a user for the daily digest. It is idempotent: the
// registration row is upserted and the job is keyed by owner, so repeated
// calls schedule a single job. It reports whether a new job was scheduled.
func (s *Service) Register(ctx context.Context, ownerID, chatID int64) (bool, error) {
	if !s.config.Enabled || s.scheduler == nil {
		return false, ErrDisabled
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (owner_id, chat_id, registered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET chat_id = excluded.chat_id
	`, ownerID, chatID, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to save registration: %w", err)
	}

	return s.schedule(ownerID)
}

// Restore schedules every persisted registration. Run once at startup.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if !s.config.Enabled || s.scheduler == nil {
		return 0, nil
	}

	regs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, reg := range regs {
		created, err := s.schedule(reg.OwnerID)
		if err != nil {
			return restored, err
		}
		if created {
			restored++
		}
	}
	return restored, nil
}

// Unregister removes a user's registration and cancels the job
func (s *Service) Unregister(ctx context.Context, ownerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE owner_id = ?`, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete registration: %w", err)
	}
	if s.scheduler != nil {
		s.scheduler.Remove(jobKey(ownerID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all registrations ordered by owner
func (s *Service) List(ctx context.Context) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, chat_id, registered_at FROM reminders ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var regs []Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.OwnerID, &reg.ChatID, &reg.RegisteredAt); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// lookup returns the chat of a registration, if the owner is registered
func (s *Service) lookup(ctx context.Context, ownerID int64) (int64, bool, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx, `SELECT chat_id FROM reminders WHERE owner_id = ?`, ownerID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chatID, true, nil
}

func (s *Service) schedule(ownerID int64) (bool, error) {
	created, err := s.scheduler.EnsureDaily(jobKey(ownerID), s.at, func() {
		s.fire(ownerID)
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("Added daily reminder for user %d at %s", ownerID, s.at)
	}
	return created, nil
}

func jobKey(ownerID int64) string {
	return "digest:" + strconv.FormatInt(ownerID, 10)
}

// =============================================================================
// Digest
// =============================================================================

// fire runs on the scheduler. Failures are logged and wait for the next day.
func (s *Service) fire(ownerID int64) {
	ctx := context.Background()

	chatID, ok, err := s.lookup(ctx, ownerID)
	if err != nil {
		s.logger.Error("reminder lookup for user %d failed: %v", ownerID, err)
		return
	}
	if !ok {
		return
	}

	if s.breaker != nil && !s.breaker.Allow() {
		s.logger.Warn("daily reminder for user %d skipped: %v", ownerID, ErrDeliverySuspended)
		if s.onDigest != nil {
			s.onDigest(ErrDeliverySuspended)
		}
		return
	}

	err = s.SendDigest(ctx, ownerID, chatID)
	if err != nil {
		s.logger.Error("daily reminder for user %d failed: %v", ownerID, err)
	}
	if s.breaker != nil {
		if err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}
	if s.onDigest != nil {
		s.onDigest(err)
	}
}

// Digest builds today's digest text for a user
func (s *Service) Digest(ctx context.Context, ownerID int64) (string, error) {
	today := s.now().Format(backend.DateLayout)

	tasks, err := s.store.ListPendingForDay(ctx, ownerID, today)
	if err != nil {
		return "", fmt.Errorf("failed to load tasks for %s: %w", today, err)
	}

	return FormatDigest(tasks), nil
}

// FormatDigest renders pending tasks as a bulleted morning message
func FormatDigest(tasks []backend.Task) string {
	if len(tasks) == 0 {
		return "🌞 Good morning! No tasks for today, a great day to rest!"
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, "• "+t.Description)
	}
	return "🌞 Good morning! Here are your tasks for today:\n\n" + strings.Join(lines, "\n")
}

// SendDigest builds and delivers today's digest for a user
func (s *Service) SendDigest(ctx context.Context, ownerID, chatID int64) error {
	text, err := s.Digest(ctx, ownerID)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}

	return s.notifier.Send(notification.Notification{
		Type:      notification.NotifyDigest,
		Title:     "Daily digest",
		Message:   text,
		ChatID:    chatID,
		Timestamp: s.now(),
		Metadata: map[string]string{
			notification.MetaOwnerID: strconv.FormatInt(ownerID, 10),
		},
	})
}
