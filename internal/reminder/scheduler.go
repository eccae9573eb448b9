package reminder

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs keyed daily jobs. EnsureDaily is an upsert: a key that is
// already scheduled is left untouched and reported as not created.
type Scheduler interface {
	EnsureDaily(key string, at ClockTime, fn func()) (bool, error)
	Has(key string) bool
	Remove(key string)
	Start()
	Stop()
}

// CronScheduler implements Scheduler on top of a cron runner
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

var _ Scheduler = (*CronScheduler)(nil)

// NewCronScheduler creates a scheduler firing in the given location.
// A nil location means local time.
func NewCronScheduler(loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &CronScheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		entries: make(map[string]cron.EntryID),
	}
}

// EnsureDaily schedules fn every day at the given wall-clock time unless a
// job for key already exists.
func (s *CronScheduler) EnsureDaily(key string, at ClockTime, fn func()) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return false, nil
	}

	id, err := s.cron.AddFunc(at.cronSpec(), fn)
	if err != nil {
		return false, fmt.Errorf("failed to schedule %s: %w", key, err)
	}
	s.entries[key] = id
	return true, nil
}

// Has reports whether a job exists for key
func (s *CronScheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Remove cancels the job for key, if any
func (s *CronScheduler) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

// Next returns the next firing time of the job for key.
func (s *CronScheduler) Next(key string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins firing jobs in the background
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for running jobs to finish
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// =============================================================================
// Clock time
// =============================================================================

// ClockTime is a wall-clock time of day without a date or zone
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" in 24-hour notation.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the time as HH:MM
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}
