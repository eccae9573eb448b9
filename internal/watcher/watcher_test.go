package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, path string, onChange func(string)) *Watcher {
	t.Helper()
	w, err := New(&Config{
		Path:             path,
		DebounceDuration: 50 * time.Millisecond,
		OnChange:         onChange,
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	return w
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

// TestWatcherDetectsChanges verifies a write to the config triggers a reload
func TestWatcherDetectsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  verbose: false\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var got atomic.Value
	newTestWatcher(t, path, func(p string) { got.Store(p) })

	if err := os.WriteFile(path, []byte("logging:\n  verbose: true\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return got.Load() != nil }) {
		t.Fatal("expected watcher to detect file change")
	}
	if got.Load().(string) != filepath.Clean(path) {
		t.Errorf("expected callback with %s, got %v", path, got.Load())
	}
}

// TestWatcherDetectsCreate verifies a config created after start is picked up
func TestWatcherDetectsCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var calls atomic.Int32
	newTestWatcher(t, path, func(string) { calls.Add(1) })

	if err := os.WriteFile(path, []byte("x: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return calls.Load() > 0 }) {
		t.Fatal("expected watcher to detect new file")
	}
}

// TestWatcherIgnoresSiblings verifies other files in the directory are ignored
func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("x: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	newTestWatcher(t, path, func(string) { calls.Add(1) })

	if err := os.WriteFile(filepath.Join(dir, "planday.db"), []byte("data"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("expected no reload for unrelated file, got %d", calls.Load())
	}
}

// TestWatcherDebounce verifies rapid writes cause a single reload
func TestWatcherDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("0"), 0600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	newTestWatcher(t, path, func(string) { calls.Add(1) })

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 debounced reload, got %d", got)
	}
}

// TestWatcherStopCleanly verifies stop is idempotent and blocks restarts
func TestWatcherStopCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w, err := New(DefaultConfig(path, nil))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	w.Stop()
	w.Stop()

	if err := w.Start(); err == nil {
		t.Error("expected error restarting a stopped watcher")
	}
}

// TestWatcherMissingDirectory verifies a config in a missing directory fails to start
func TestWatcherMissingDirectory(t *testing.T) {
	w, err := New(DefaultConfig(filepath.Join(t.TempDir(), "nope", "config.yaml"), nil))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("expected error for missing directory")
	}
}

// TestWatcherConfigDefaults verifies defaults are applied
func TestWatcherConfigDefaults(t *testing.T) {
	cfg := DefaultConfig("config.yaml", nil)
	if cfg.DebounceDuration != DefaultDebounceDuration {
		t.Errorf("expected %v, got %v", DefaultDebounceDuration, cfg.DebounceDuration)
	}
	if _, err := New(&Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}
