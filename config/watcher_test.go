package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/queryvis/logging"
)

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	test.That(t, os.WriteFile(path, []byte(`{"log_level": "info"}`), 0o600), test.ShouldBeNil)
	current, err := Read(path)
	test.That(t, err, test.ShouldBeNil)

	w, err := NewWatcher(path, current, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, w.Close(), test.ShouldBeNil) }()

	// unrelated files in the same directory are ignored
	test.That(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0o600), test.ShouldBeNil)

	select {
	case cfg := <-w.Config():
		test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)
		test.That(t, cfg.NeedsRestart(current), test.ShouldBeFalse)
	case <-time.After(5 * time.Second):
		t.Fatal("no config delivered")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.json"), Default(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
