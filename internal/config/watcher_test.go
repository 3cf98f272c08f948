package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/webcluster/internal/logging"
)

type testConfig struct {
	Forks int    `toml:"forks"`
	Addr  string `toml:"addr"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher writes initial content and starts a watcher with a short
// debounce. It is stopped on cleanup.
func startWatcher(t *testing.T, initial string, opts ...WatcherOption[testConfig]) (*Watcher[testConfig], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webcluster.toml")
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	opts = append([]WatcherOption[testConfig]{WithDebounce[testConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})

	// let the watch loop settle before the first write
	time.Sleep(50 * time.Millisecond)
	return w, path
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func expectConfig(t *testing.T, ch <-chan testConfig) testConfig {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
		return testConfig{}
	}
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	received := make(chan testConfig, 1)
	w, path := startWatcher(t, "forks = 1\n")
	w.OnReload(func(cfg testConfig) { received <- cfg })

	write(t, path, "forks = 4\naddr = \"0.0.0.0:8080\"\n")

	if cfg := expectConfig(t, received); cfg.Forks != 4 || cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("got %+v", cfg)
	}
}

func TestConfigWatcher_AtomicRename(t *testing.T) {
	received := make(chan testConfig, 1)
	w, path := startWatcher(t, "forks = 1\n")
	w.OnReload(func(cfg testConfig) { received <- cfg })

	tmp := path + ".swp"
	write(t, tmp, "forks = 7\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	if cfg := expectConfig(t, received); cfg.Forks != 7 {
		t.Errorf("expected forks=7 after rename, got %+v", cfg)
	}
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	var count atomic.Int32
	w, path := startWatcher(t, "forks = 1\n")
	w.OnReload(func(testConfig) { count.Add(1) })

	write(t, filepath.Join(filepath.Dir(path), "other.toml"), "forks = 9\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("sibling file triggered %d reloads", got)
	}
}

func TestConfigWatcher_MultipleHandlersAndUnsubscribe(t *testing.T) {
	first := make(chan testConfig, 4)
	second := make(chan testConfig, 4)
	w, path := startWatcher(t, "forks = 1\n")
	w.OnReload(func(cfg testConfig) { first <- cfg })
	unsub := w.OnReload(func(cfg testConfig) { second <- cfg })

	write(t, path, "forks = 2\n")
	if a, b := expectConfig(t, first), expectConfig(t, second); a != b || a.Forks != 2 {
		t.Errorf("handlers saw different configs: %+v %+v", a, b)
	}

	unsub()
	write(t, path, "forks = 3\n")
	if cfg := expectConfig(t, first); cfg.Forks != 3 {
		t.Errorf("got %+v", cfg)
	}
	select {
	case cfg := <-second:
		t.Errorf("unsubscribed handler called with %+v", cfg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	errs := make(chan error, 1)
	received := make(chan testConfig, 1)
	w, path := startWatcher(t, "forks = 1\n", WithErrorHandler[testConfig](func(err error) {
		errs <- err
	}))
	w.OnReload(func(cfg testConfig) { received <- cfg })

	write(t, path, "invalid toml [[[")

	select {
	case <-errs:
	case <-received:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	var count atomic.Int32
	var last atomic.Int32
	w, path := startWatcher(t, "forks = 0\n", WithDebounce[testConfig](200*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		count.Add(1)
		last.Store(int32(cfg.Forks))
	})

	for i := 1; i <= 5; i++ {
		write(t, path, fmt.Sprintf("forks = %d\n", i))
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_ConcurrentSubscribe(t *testing.T) {
	w, path := startWatcher(t, "forks = 1\n", WithDebounce[testConfig](10*time.Millisecond))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := w.OnReload(func(testConfig) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}
	for i := range 5 {
		write(t, path, fmt.Sprintf("forks = %d\n", i))
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()
}

func TestConfigWatcher_StopBeforeStart(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "x.toml"), loadTestConfig, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestConfigWatcher_NoReloadAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webcluster.toml")
	write(t, path, "forks = 1\n")

	var count atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](20*time.Millisecond))
	w.OnReload(func(testConfig) { count.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	write(t, path, "forks = 99\n")
	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestLoggingWatcher_UpdatesLevels(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	handler := logging.GetLogger("cluster").Handler()

	path := filepath.Join(t.TempDir(), "webcluster.toml")
	write(t, path, "[logging]\nlevel = \"info\"\n")

	w := NewLoggingWatcher(path, newTestLogger(), WithDebounce[logging.Config](20*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()
	time.Sleep(50 * time.Millisecond)

	write(t, path, "[logging]\nlevel = \"info\"\ncluster = \"debug\"\n")

	deadline := time.Now().Add(2 * time.Second)
	for !handler.Enabled(context.Background(), slog.LevelDebug) {
		if time.Now().After(deadline) {
			t.Fatal("cluster logger not switched to debug")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// restore the default for other tests in this package
	logging.UpdateLevels(logging.Config{Level: "info"})
}
