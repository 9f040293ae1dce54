package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
	StateDir    string `toml:"state_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Sessions contains registry capacity and expiry settings.
type Sessions struct {
	MaxConcurrentSessions  int  `toml:"max_concurrent_sessions"`
	MaxJobsPerSession      int  `toml:"max_jobs_per_session"`
	SessionTimeoutHours    int  `toml:"session_timeout_hours"`
	CleanupIntervalMinutes int  `toml:"cleanup_interval_minutes"`
	RemoveExpiredFiles     bool `toml:"remove_expired_files"`
}

// Downloads contains download execution and retry settings.
type Downloads struct {
	Workers            int    `toml:"workers"`
	MaxRetries         int    `toml:"max_retries"`
	RetryDelaySeconds  int    `toml:"retry_delay_seconds"`
	RetryUnclassified  bool   `toml:"retry_unclassified"`
	AudioFormat        string `toml:"audio_format"`
	VideoFormat        string `toml:"video_format"`
	YtdlpBinary        string `toml:"ytdlp_binary"`
	ProgressIntervalMS int    `toml:"progress_interval_ms"`
}

// Monitor contains connectivity probe and event history settings.
type Monitor struct {
	NetworkChecks        bool   `toml:"network_checks"`
	ProbeHost            string `toml:"probe_host"`
	ProbeURL             string `toml:"probe_url"`
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int    `toml:"probe_timeout_seconds"`
	HistoryLimit         int    `toml:"history_limit"`
	HistoryMaxAgeHours   int    `toml:"history_max_age_hours"`
}

// History contains configuration for the SQLite download archive.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Events contains configuration for Redis event publishing.
type Events struct {
	RedisURL string `toml:"redis_url"`
	Channel  string `toml:"channel"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Failures       bool   `toml:"failures"`
	Capacity       bool   `toml:"capacity"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for mediafetch.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Sessions: registry capacity and expiry
//   - Downloads: worker pool, retry policy, yt-dlp formats
//   - Monitor: connectivity probe and in-memory event history
//   - History: SQLite download archive
//   - Metrics: Prometheus endpoint
//   - Events: Redis pub/sub publishing
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Sessions      Sessions      `toml:"sessions"`
	Downloads     Downloads     `toml:"downloads"`
	Monitor       Monitor       `toml:"monitor"`
	History       History       `toml:"history"`
	Metrics       Metrics       `toml:"metrics"`
	Events        Events        `toml:"events"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediafetch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && c.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// SessionTTL returns the inactivity timeout after which sessions expire.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.SessionTimeoutHours) * time.Hour
}

// CleanupInterval returns how often the daemon sweeps expired sessions.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// RetryDelay returns the base retry delay before category backoff.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Downloads.RetryDelaySeconds) * time.Second
}

// ProgressInterval returns the yt-dlp progress callback interval.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Downloads.ProgressIntervalMS) * time.Millisecond
}

// ProbeInterval returns how long a connectivity probe result stays cached.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Monitor.ProbeIntervalSeconds) * time.Second
}

// ProbeTimeout bounds a single connectivity probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Monitor.ProbeTimeoutSeconds) * time.Second
}

// HistoryMaxAge returns the age after which monitor events are purged.
func (c *Config) HistoryMaxAge() time.Duration {
	return time.Duration(c.Monitor.HistoryMaxAgeHours) * time.Hour
}

// NotificationTimeout bounds ntfy requests.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mediafetch.lock")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "mediafetch.sock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "mediafetch.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
