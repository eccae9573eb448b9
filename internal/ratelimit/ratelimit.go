// Package ratelimit retries chat deliveries the chat service refused with
// "too many requests", honoring its retry hint or backing off exponentially.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"planday/internal/chat"
	"planday/internal/utils"
)

// Config holds configuration for the retrying transport.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after being throttled.
	// Default: 3
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// EnableJitter adds random jitter (±20%) to prevent thundering herd.
	EnableJitter bool

	// Stats is an optional stats tracker for recording throttling events.
	Stats *Stats
}

// TooManyRequestsError is returned by a transport when the chat service
// throttles the bot. RetryAfter is zero when no hint was given.
type TooManyRequestsError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *TooManyRequestsError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("too many requests, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("too many requests: %v", e.Err)
}

func (e *TooManyRequestsError) Unwrap() error {
	return e.Err
}

// RateLimitError represents an error when retries are exhausted.
type RateLimitError struct {
	Attempt     int
	MaxAttempts int
	Err         error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("chat rate limit exceeded after %d retries (max %d)", e.Attempt, e.MaxAttempts)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Transport is a chat.Transport that retries throttled deliveries.
type Transport struct {
	next         chat.Transport
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	enableJitter bool
	stats        *Stats
	logger       *utils.Logger
}

var _ chat.Transport = (*Transport)(nil)

// NewTransport wraps next with the given retry configuration.
func NewTransport(next chat.Transport, cfg Config) *Transport {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	return &Transport{
		next:         next,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		enableJitter: cfg.EnableJitter,
		stats:        cfg.Stats,
		logger:       utils.GetLogger(),
	}
}

// Send posts a new message, retrying while throttled
func (t *Transport) Send(ctx context.Context, chatID int64, reply chat.Reply) error {
	return t.do(ctx, func() error {
		return t.next.Send(ctx, chatID, reply)
	})
}

// Edit replaces a message, retrying while throttled
func (t *Transport) Edit(ctx context.Context, chatID int64, messageID int, reply chat.Reply) error {
	return t.do(ctx, func() error {
		return t.next.Edit(ctx, chatID, messageID, reply)
	})
}

// Acknowledge is passed through; a late acknowledgement is useless.
func (t *Transport) Acknowledge(ctx context.Context, queryID string) error {
	return t.next.Acknowledge(ctx, queryID)
}

func (t *Transport) do(ctx context.Context, fn func() error) error {
	var last *TooManyRequestsError

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		err := fn()
		if !errors.As(err, &last) {
			return err
		}

		if t.stats != nil {
			t.stats.RecordRateLimit()
		}

		if attempt >= t.maxRetries {
			break
		}

		var retryAfter *time.Duration
		if last.RetryAfter > 0 {
			retryAfter = &last.RetryAfter
		}
		delay := t.calculateBackoff(attempt, retryAfter)
		t.logger.Debug("throttled by chat service, retrying in %s", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RateLimitError{
		Attempt:     t.maxRetries,
		MaxAttempts: t.maxRetries,
		Err:         last,
	}
}

// calculateBackoff computes the backoff duration for a given attempt.
func (t *Transport) calculateBackoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return *retryAfter
	}

	// Exponential backoff: base * 2^attempt
	delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	if delay > t.maxDelay {
		delay = t.maxDelay
	}

	if t.enableJitter {
		jitterFactor := 0.8 + rand.Float64()*0.4 // 0.8 to 1.2
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	return delay
}

// Stats tracks throttling statistics.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a throttling event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of throttling events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last throttling event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
