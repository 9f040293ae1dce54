package config

const (
	defaultConfigPath             = "~/.config/mediafetch/config.toml"
	defaultDownloadDir            = "~/.local/share/mediafetch/downloads"
	defaultLogDir                 = "~/.local/share/mediafetch/logs"
	defaultStateDir               = "~/.local/state/mediafetch"
	defaultAPIBind                = "127.0.0.1:7487"
	defaultMaxConcurrentSessions  = 100
	defaultMaxJobsPerSession      = 10
	defaultSessionTimeoutHours    = 24
	defaultCleanupIntervalMinutes = 60
	defaultWorkers                = 4
	defaultMaxRetries             = 3
	defaultRetryDelaySeconds      = 5
	defaultAudioFormat            = "mp3"
	defaultVideoFormat            = "bestvideo*+bestaudio/best"
	defaultYtdlpBinary            = "yt-dlp"
	defaultProgressIntervalMS     = 500
	defaultProbeHost              = "www.youtube.com"
	defaultProbeURL               = "https://www.youtube.com"
	defaultProbeIntervalSeconds   = 30
	defaultProbeTimeoutSeconds    = 10
	defaultHistoryLimit           = 1000
	defaultHistoryMaxAgeHours     = 24
	defaultEventsChannel          = "mediafetch:events"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
			APIBind:     defaultAPIBind,
		},
		Sessions: Sessions{
			MaxConcurrentSessions:  defaultMaxConcurrentSessions,
			MaxJobsPerSession:      defaultMaxJobsPerSession,
			SessionTimeoutHours:    defaultSessionTimeoutHours,
			CleanupIntervalMinutes: defaultCleanupIntervalMinutes,
			RemoveExpiredFiles:     true,
		},
		Downloads: Downloads{
			Workers:            defaultWorkers,
			MaxRetries:         defaultMaxRetries,
			RetryDelaySeconds:  defaultRetryDelaySeconds,
			AudioFormat:        defaultAudioFormat,
			VideoFormat:        defaultVideoFormat,
			YtdlpBinary:        defaultYtdlpBinary,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Monitor: Monitor{
			NetworkChecks:        true,
			ProbeHost:            defaultProbeHost,
			ProbeURL:             defaultProbeURL,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
			HistoryLimit:         defaultHistoryLimit,
			HistoryMaxAgeHours:   defaultHistoryMaxAgeHours,
		},
		History: History{
			Enabled: true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Events: Events{
			Channel: defaultEventsChannel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Failures:       true,
			Capacity:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
