package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points HOME and the working directory at temp dirs so neither a
// real config nor a stray .env leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	for _, key := range []string{EnvRelayURL, EnvPassword, EnvLogLevel, EnvMetricsAddr} {
		t.Setenv(key, "")
	}
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RelayURL != defaultRelayURL {
		t.Fatalf("RelayURL = %q, want %q", cfg.RelayURL, defaultRelayURL)
	}
	if cfg.PollWait != 60*time.Second || cfg.BackoffFloor != time.Second || cfg.BackoffCeiling != 300*time.Second {
		t.Fatalf("timing defaults = %v/%v/%v", cfg.PollWait, cfg.BackoffFloor, cfg.BackoffCeiling)
	}

	wantLog, err := expandPath(defaultLogFile)
	if err != nil {
		t.Fatalf("expandPath(defaultLogFile) returned error: %v", err)
	}
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := isolate(t)

	path := writeConfig(t, `
relay_url = "  https://relay.example.org/mamirc/  "
password = "hunter2"
max_lines_per_window = 500
poll_wait_seconds = 30
backoff_floor_seconds = 2
backoff_ceiling_seconds = 64
log_file = "  ~/logs/tether.log  "
log_level = "DEBUG"
metrics_addr = "127.0.0.1:9464"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RelayURL != "https://relay.example.org/mamirc/" {
		t.Fatalf("RelayURL = %q", cfg.RelayURL)
	}
	if cfg.Password != "hunter2" || cfg.MaxLinesPerWindow != 500 {
		t.Fatalf("Password/MaxLines = %q/%d", cfg.Password, cfg.MaxLinesPerWindow)
	}
	if cfg.PollWait != 30*time.Second || cfg.BackoffFloor != 2*time.Second || cfg.BackoffCeiling != 64*time.Second {
		t.Fatalf("timing = %v/%v/%v", cfg.PollWait, cfg.BackoffFloor, cfg.BackoffCeiling)
	}
	if cfg.SnapshotTimeout != 10*time.Second {
		t.Fatalf("SnapshotTimeout = %v, want default 10s", cfg.SnapshotTimeout)
	}
	if !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	if cfg.LogLevel != "debug" || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("LogLevel/MetricsAddr = %q/%q", cfg.LogLevel, cfg.MetricsAddr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `relay_url = "file-host:1"`)

	t.Setenv(EnvRelayURL, "env-host:2")
	t.Setenv(EnvPassword, "from-env")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RelayURL != "env-host:2" || cfg.Password != "from-env" || cfg.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	t.Cleanup(func() { os.Unsetenv(EnvMetricsAddr) })
	os.Unsetenv(EnvMetricsAddr)

	if err := os.WriteFile(".env", []byte(EnvMetricsAddr+"=127.0.0.1:9999\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MetricsAddr != "127.0.0.1:9999" {
		t.Fatalf("MetricsAddr = %q, want value from .env", cfg.MetricsAddr)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `relay_url = [`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"ceiling below floor", "backoff_floor_seconds = 10\nbackoff_ceiling_seconds = 5", "backoff_ceiling_seconds"},
		{"negative lines", "max_lines_per_window = -1", "max_lines_per_window"},
		{"poll wait too long", "poll_wait_seconds = 301", "poll_wait_seconds"},
		{"bad level", `log_level = "loud"`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load returned nil error, want %s error", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %s", err.Error(), tt.want)
			}
		})
	}
}

func TestLineCap(t *testing.T) {
	var cfg Config
	if got := cfg.LineCap(false); got != DefaultMaxLines {
		t.Fatalf("LineCap(false) = %d, want %d", got, DefaultMaxLines)
	}
	if got := cfg.LineCap(true); got != CompactMaxLines {
		t.Fatalf("LineCap(true) = %d, want %d", got, CompactMaxLines)
	}
	cfg.MaxLinesPerWindow = 42
	if got := cfg.LineCap(true); got != 42 {
		t.Fatalf("LineCap with explicit value = %d, want 42", got)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
