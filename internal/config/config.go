package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the client settings.
type Config struct {
	RelayURL          string
	Password          string
	MaxLinesPerWindow int // zero defers to the compact preference
	PollWait          time.Duration
	SnapshotTimeout   time.Duration
	ActionTimeout     time.Duration
	BackoffFloor      time.Duration
	BackoffCeiling    time.Duration
	LogFile           string
	LogLevel          string
	MetricsAddr       string
}

const (
	defaultConfigPath      = "~/.config/tether/config.toml"
	defaultLogFile         = "~/.local/state/tether/tether.log"
	defaultRelayURL        = "127.0.0.1:11972"
	defaultLogLevel        = "info"
	defaultPollWait        = 60 * time.Second
	defaultSnapshotTimeout = 10 * time.Second
	defaultActionTimeout   = 5 * time.Second
	defaultBackoffFloor    = time.Second
	defaultBackoffCeiling  = 300 * time.Second

	// DefaultMaxLines and CompactMaxLines are the per-window line caps used
	// when max_lines_per_window is unset.
	DefaultMaxLines = 3000
	CompactMaxLines = 1000
)

// Environment overrides, applied after the file.
const (
	EnvRelayURL    = "TETHER_RELAY_URL"
	EnvPassword    = "TETHER_PASSWORD"
	EnvLogLevel    = "TETHER_LOG_LEVEL"
	EnvMetricsAddr = "TETHER_METRICS_ADDR"
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		RelayURL:        defaultRelayURL,
		PollWait:        defaultPollWait,
		SnapshotTimeout: defaultSnapshotTimeout,
		ActionTimeout:   defaultActionTimeout,
		BackoffFloor:    defaultBackoffFloor,
		BackoffCeiling:  defaultBackoffCeiling,
		LogFile:         mustExpand(defaultLogFile),
		LogLevel:        defaultLogLevel,
	}
}

// Load reads the config file at path (or the default location), falling back
// to defaults when it is missing, then applies .env and environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := loadFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	// A missing .env is the common case.
	_ = godotenv.Load(".env")
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		RelayURL               string `toml:"relay_url"`
		Password               string `toml:"password"`
		MaxLinesPerWindow      int    `toml:"max_lines_per_window"`
		PollWaitSeconds        int    `toml:"poll_wait_seconds"`
		SnapshotTimeoutSeconds int    `toml:"snapshot_timeout_seconds"`
		ActionTimeoutSeconds   int    `toml:"action_timeout_seconds"`
		BackoffFloorSeconds    int    `toml:"backoff_floor_seconds"`
		BackoffCeilingSeconds  int    `toml:"backoff_ceiling_seconds"`
		LogFile                string `toml:"log_file"`
		LogLevel               string `toml:"log_level"`
		MetricsAddr            string `toml:"metrics_addr"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.RelayURL); v != "" {
		cfg.RelayURL = v
	}
	cfg.Password = raw.Password
	cfg.MaxLinesPerWindow = raw.MaxLinesPerWindow
	setSeconds(&cfg.PollWait, raw.PollWaitSeconds)
	setSeconds(&cfg.SnapshotTimeout, raw.SnapshotTimeoutSeconds)
	setSeconds(&cfg.ActionTimeout, raw.ActionTimeoutSeconds)
	setSeconds(&cfg.BackoffFloor, raw.BackoffFloorSeconds)
	setSeconds(&cfg.BackoffCeiling, raw.BackoffCeilingSeconds)
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	return nil
}

func setSeconds(dst *time.Duration, seconds int) {
	if seconds != 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}

func applyEnv(cfg *Config) {
	cfg.RelayURL = getEnv(EnvRelayURL, cfg.RelayURL)
	cfg.Password = getEnv(EnvPassword, cfg.Password)
	cfg.LogLevel = strings.ToLower(getEnv(EnvLogLevel, cfg.LogLevel))
	cfg.MetricsAddr = getEnv(EnvMetricsAddr, cfg.MetricsAddr)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxLinesPerWindow < 0 {
		errs = append(errs, fmt.Errorf("max_lines_per_window must not be negative, got %d", c.MaxLinesPerWindow))
	}
	for name, d := range map[string]time.Duration{
		"poll_wait_seconds":        c.PollWait,
		"snapshot_timeout_seconds": c.SnapshotTimeout,
		"action_timeout_seconds":   c.ActionTimeout,
		"backoff_floor_seconds":    c.BackoffFloor,
		"backoff_ceiling_seconds":  c.BackoffCeiling,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.PollWait > 300*time.Second {
		errs = append(errs, errors.New("poll_wait_seconds must not exceed 300"))
	}
	if c.BackoffCeiling < c.BackoffFloor {
		errs = append(errs, errors.New("backoff_ceiling_seconds must not be below backoff_floor_seconds"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %s: want debug, info, warn or error", strconv.Quote(c.LogLevel)))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LineCap returns the per-window line cap.
func (c Config) LineCap(compact bool) int {
	switch {
	case c.MaxLinesPerWindow > 0:
		return c.MaxLinesPerWindow
	case compact:
		return CompactMaxLines
	default:
		return DefaultMaxLines
	}
}

// DefaultPath returns the expanded default config path.
func DefaultPath() string {
	return mustExpand(defaultConfigPath)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
