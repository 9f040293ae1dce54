package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownloads()
	c.normalizeMonitor()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeEvents()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MEDIAFETCH_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDownloads() {
	c.Downloads.AudioFormat = strings.ToLower(strings.TrimSpace(c.Downloads.AudioFormat))
	if c.Downloads.AudioFormat == "" {
		c.Downloads.AudioFormat = defaultAudioFormat
	}
	c.Downloads.VideoFormat = strings.TrimSpace(c.Downloads.VideoFormat)
	if c.Downloads.VideoFormat == "" {
		c.Downloads.VideoFormat = defaultVideoFormat
	}
	c.Downloads.YtdlpBinary = strings.TrimSpace(c.Downloads.YtdlpBinary)
	if c.Downloads.YtdlpBinary == "" {
		c.Downloads.YtdlpBinary = defaultYtdlpBinary
	}
	if c.Downloads.ProgressIntervalMS <= 0 {
		c.Downloads.ProgressIntervalMS = defaultProgressIntervalMS
	}
}

func (c *Config) normalizeMonitor() {
	c.Monitor.ProbeHost = strings.TrimSpace(c.Monitor.ProbeHost)
	if c.Monitor.ProbeHost == "" {
		c.Monitor.ProbeHost = defaultProbeHost
	}
	c.Monitor.ProbeURL = strings.TrimSpace(c.Monitor.ProbeURL)
	if c.Monitor.ProbeURL == "" {
		c.Monitor.ProbeURL = defaultProbeURL
	}
}

func (c *Config) normalizeHistory() error {
	var err error
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, "history.db")
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeEvents() {
	c.Events.RedisURL = strings.TrimSpace(c.Events.RedisURL)
	if c.Events.RedisURL == "" {
		if value, ok := os.LookupEnv("MEDIAFETCH_REDIS_URL"); ok {
			c.Events.RedisURL = strings.TrimSpace(value)
		}
	}
	c.Events.Channel = strings.TrimSpace(c.Events.Channel)
	if c.Events.Channel == "" {
		c.Events.Channel = defaultEventsChannel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEDIAFETCH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
