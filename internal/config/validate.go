package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		return errors.New("paths.download_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateSessions() error {
	return ensurePositive(
		namedValue{"sessions.max_concurrent_sessions", c.Sessions.MaxConcurrentSessions},
		namedValue{"sessions.max_jobs_per_session", c.Sessions.MaxJobsPerSession},
		namedValue{"sessions.session_timeout_hours", c.Sessions.SessionTimeoutHours},
		namedValue{"sessions.cleanup_interval_minutes", c.Sessions.CleanupIntervalMinutes},
	)
}

func (c *Config) validateDownloads() error {
	if err := ensurePositive(
		namedValue{"downloads.workers", c.Downloads.Workers},
		namedValue{"downloads.progress_interval_ms", c.Downloads.ProgressIntervalMS},
	); err != nil {
		return err
	}
	if c.Downloads.MaxRetries < 0 {
		return errors.New("downloads.max_retries must be >= 0")
	}
	if c.Downloads.RetryDelaySeconds < 0 {
		return errors.New("downloads.retry_delay_seconds must be >= 0")
	}
	switch c.Downloads.AudioFormat {
	case "mp3", "m4a", "opus", "flac", "wav", "aac", "vorbis", "best":
	default:
		return fmt.Errorf("downloads.audio_format %q is not supported", c.Downloads.AudioFormat)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if err := ensurePositive(
		namedValue{"monitor.history_limit", c.Monitor.HistoryLimit},
		namedValue{"monitor.history_max_age_hours", c.Monitor.HistoryMaxAgeHours},
	); err != nil {
		return err
	}
	if !c.Monitor.NetworkChecks {
		return nil
	}
	if err := ensurePositive(
		namedValue{"monitor.probe_interval_seconds", c.Monitor.ProbeIntervalSeconds},
		namedValue{"monitor.probe_timeout_seconds", c.Monitor.ProbeTimeoutSeconds},
	); err != nil {
		return err
	}
	if _, err := url.ParseRequestURI(c.Monitor.ProbeURL); err != nil {
		return fmt.Errorf("monitor.probe_url: %w", err)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.RedisURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Events.RedisURL)
	if err != nil {
		return fmt.Errorf("events.redis_url: %w", err)
	}
	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" && parsed.Scheme != "unix" {
		return fmt.Errorf("events.redis_url scheme %q must be redis, rediss, or unix", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

type namedValue struct {
	key   string
	value int
}

func ensurePositive(values ...namedValue) error {
	for _, v := range values {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}
	return nil
}
