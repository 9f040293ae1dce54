package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediafetch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())
	t.Setenv("MEDIAFETCH_API_TOKEN", "secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "mediafetch", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDownloads := filepath.Join(tempHome, ".local", "share", "mediafetch", "downloads")
	if cfg.Paths.DownloadDir != wantDownloads {
		t.Fatalf("unexpected download dir: got %q want %q", cfg.Paths.DownloadDir, wantDownloads)
	}
	if cfg.History.Path != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path %q", cfg.History.Path)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Sessions.MaxConcurrentSessions != 100 || cfg.Sessions.MaxJobsPerSession != 10 {
		t.Fatalf("unexpected session caps: %+v", cfg.Sessions)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL())
	}
	if cfg.RetryDelay() != 5*time.Second || cfg.Downloads.MaxRetries != 3 {
		t.Fatalf("unexpected retry settings: %+v", cfg.Downloads)
	}
	if cfg.ProbeTimeout() != 10*time.Second {
		t.Fatalf("unexpected probe timeout %v", cfg.ProbeTimeout())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DownloadDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mediafetch.toml")

	type payload struct {
		Paths struct {
			DownloadDir string `toml:"download_dir"`
		} `toml:"paths"`
		Sessions struct {
			MaxConcurrentSessions int `toml:"max_concurrent_sessions"`
		} `toml:"sessions"`
		Downloads struct {
			AudioFormat string `toml:"audio_format"`
		} `toml:"downloads"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.DownloadDir = filepath.Join(tempDir, "dl")
	custom.Sessions.MaxConcurrentSessions = 2
	custom.Downloads.AudioFormat = " M4A "
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DownloadDir != custom.Paths.DownloadDir {
		t.Fatalf("unexpected download dir %q", cfg.Paths.DownloadDir)
	}
	if cfg.Sessions.MaxConcurrentSessions != 2 {
		t.Fatalf("unexpected max sessions %d", cfg.Sessions.MaxConcurrentSessions)
	}
	if cfg.Sessions.MaxJobsPerSession != 10 {
		t.Fatalf("expected default max jobs to survive partial config, got %d", cfg.Sessions.MaxJobsPerSession)
	}
	if cfg.Downloads.AudioFormat != "m4a" {
		t.Fatalf("expected normalized audio format, got %q", cfg.Downloads.AudioFormat)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[sessions\nmax = "), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"sessions cap", func(c *config.Config) { c.Sessions.MaxConcurrentSessions = 0 }, "sessions.max_concurrent_sessions must be positive"},
		{"jobs cap", func(c *config.Config) { c.Sessions.MaxJobsPerSession = -1 }, "sessions.max_jobs_per_session must be positive"},
		{"workers", func(c *config.Config) { c.Downloads.Workers = 0 }, "downloads.workers must be positive"},
		{"retries", func(c *config.Config) { c.Downloads.MaxRetries = -1 }, "downloads.max_retries must be >= 0"},
		{"audio format", func(c *config.Config) { c.Downloads.AudioFormat = "midi" }, "downloads.audio_format"},
		{"api bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }, "paths.api_bind"},
		{"probe timeout", func(c *config.Config) { c.Monitor.ProbeTimeoutSeconds = 0 }, "monitor.probe_timeout_seconds must be positive"},
		{"redis scheme", func(c *config.Config) { c.Events.RedisURL = "http://localhost:6379" }, "events.redis_url scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateSkipsProbeSettingsWhenChecksDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Monitor.NetworkChecks = false
	cfg.Monitor.ProbeTimeoutSeconds = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected probe settings ignored, got %v", err)
	}
}

func TestCreateSampleRoundTripsThroughLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	defaults := config.Default()
	if cfg.Downloads.Workers != defaults.Downloads.Workers || cfg.Events.Channel != defaults.Events.Channel {
		t.Fatalf("sample diverges from defaults: %+v", cfg)
	}
}

func TestExpandPathHandlesTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := config.ExpandPath("~/media")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "media") {
		t.Fatalf("unexpected expansion %q", got)
	}
}
