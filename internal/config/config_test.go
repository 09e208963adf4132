package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

func TestLoadAppliesDefaultsWithEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.DelaySeconds != 10.0 || cfg.Scheduler.MaxDelaySeconds != 120.0 {
		t.Fatalf("expected default delays, got %+v", cfg.Scheduler)
	}
	if cfg.Session.TimeoutSeconds != 3600 {
		t.Fatalf("expected default session timeout, got %d", cfg.Session.TimeoutSeconds)
	}
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("DOCWATCH_TEST_ROOT", "/srv/docs")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  root: \"${DOCWATCH_TEST_ROOT}\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Monitor.Root != "/srv/docs" {
		t.Fatalf("expected expanded root, got %q", cfg.Monitor.Root)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("totally_unknown_key: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid for unknown field, got %v", err)
	}
}

func TestLoadValidatesMaxDelayGreaterThanDelay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  delay_seconds: 10\n  max_delay_seconds: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestEnvOverrideWinsOverFileAndDefault(t *testing.T) {
	t.Setenv("DOCWATCH_SCHEDULER_WORKER_THREADS", "7")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.WorkerThreads != 7 {
		t.Fatalf("expected env override to apply, got %d", cfg.Scheduler.WorkerThreads)
	}
}

func TestEnvOverrideInvalidValueFailsValidation(t *testing.T) {
	t.Setenv("DOCWATCH_SCHEDULER_DELAY_SECONDS", "not-a-number")
	_, err := Load("")
	if !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid for malformed env override, got %v", err)
	}
}
