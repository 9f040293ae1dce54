package api

import "mediafetch/internal/preflight"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes one client session.
type Session struct {
	ID               string  `json:"id"`
	Active           bool    `json:"active"`
	CreatedAt        string  `json:"createdAt"`
	LastActivity     string  `json:"lastActivity"`
	AgeSeconds       float64 `json:"ageSeconds"`
	IdleSeconds      float64 `json:"idleSeconds"`
	TotalJobs        int     `json:"totalJobs"`
	ActiveJobs       int     `json:"activeJobs"`
	CompletedJobs    int     `json:"completedJobs"`
	FailedJobs       int     `json:"failedJobs"`
	StorageUsedBytes int64   `json:"storageUsedBytes"`
}

// JobProgress carries the monitor's live view of a job.
type JobProgress struct {
	State           string   `json:"state"`
	Percent         *float64 `json:"percent,omitempty"`
	DownloadedBytes int64    `json:"downloadedBytes"`
	TotalBytes      *int64   `json:"totalBytes,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	ETASeconds      *float64 `json:"etaSeconds,omitempty"`
	RetryCount      int      `json:"retryCount"`
	NetworkErrors   int      `json:"networkErrors"`
	Category        string   `json:"category,omitempty"`
}

// Job describes a submitted download.
type Job struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	URL        string       `json:"url"`
	Category   string       `json:"category"`
	Status     string       `json:"status"`
	OutputDir  string       `json:"outputDir,omitempty"`
	OutputPath string       `json:"outputPath,omitempty"`
	Title      string       `json:"title,omitempty"`
	Bytes      int64        `json:"bytes"`
	Attempts   int          `json:"attempts"`
	NextRetry  string       `json:"nextRetry,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  string       `json:"createdAt"`
	UpdatedAt  string       `json:"updatedAt"`
	Progress   *JobProgress `json:"progress,omitempty"`
}

// Paths lists the derived output directory for every category.
type Paths struct {
	SessionID string            `json:"sessionId"`
	JobID     string            `json:"jobId"`
	Paths     map[string]string `json:"paths"`
}

// SessionContext summarizes the identities a session has allocated.
type SessionContext struct {
	SessionID  string   `json:"sessionId"`
	SessionDir string   `json:"sessionDir"`
	JobCount   int      `json:"jobCount"`
	URLs       []string `json:"urls"`
	JobIDs     []string `json:"jobIds"`
}

// Probe reports an upstream connectivity check.
type Probe struct {
	Online           bool   `json:"online"`
	DNSOK            bool   `json:"dnsOk"`
	ServiceReachable bool   `json:"serviceReachable"`
	Error            string `json:"error,omitempty"`
	CheckedAt        string `json:"checkedAt"`
}

// SessionStats aggregates the session table.
type SessionStats struct {
	TotalSessions         int   `json:"totalSessions"`
	ActiveSessions        int   `json:"activeSessions"`
	TotalJobs             int   `json:"totalJobs"`
	ActiveJobs            int   `json:"activeJobs"`
	CompletedJobs         int   `json:"completedJobs"`
	FailedJobs            int   `json:"failedJobs"`
	TotalStorageBytes     int64 `json:"totalStorageBytes"`
	MaxConcurrentSessions int   `json:"maxConcurrentSessions"`
	MaxJobsPerSession     int   `json:"maxJobsPerSession"`
}

// DownloadSummary aggregates monitor counts.
type DownloadSummary struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// Stats is the combined daemon statistics payload.
type Stats struct {
	Sessions     SessionStats    `json:"sessions"`
	Downloads    DownloadSummary `json:"downloads"`
	RunningJobs  int             `json:"runningJobs"`
	StorageBytes int64           `json:"storageBytes"`
	LastProbe    *Probe          `json:"lastProbe,omitempty"`
}

// Cleanup reports what a maintenance sweep removed.
type Cleanup struct {
	ExpiredSessions int   `json:"expiredSessions"`
	PurgedMetrics   int   `json:"purgedMetrics"`
	PrunedRecords   int64 `json:"prunedRecords"`
}

// HistoryEntry is one archived download.
type HistoryEntry struct {
	JobID           string  `json:"jobId"`
	SessionID       string  `json:"sessionId"`
	URL             string  `json:"url"`
	State           string  `json:"state"`
	Success         bool    `json:"success"`
	Bytes           int64   `json:"bytes"`
	RetryCount      int     `json:"retryCount"`
	NetworkErrors   int     `json:"networkErrors"`
	Category        string  `json:"category,omitempty"`
	Message         string  `json:"message,omitempty"`
	StartedAt       string  `json:"startedAt"`
	FinishedAt      string  `json:"finishedAt"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Health is the /api/health payload.
type Health struct {
	Healthy bool               `json:"healthy"`
	Checks  []preflight.Result `json:"checks"`
	Probe   *Probe             `json:"probe,omitempty"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid"`
	LockPath   string `json:"lockPath"`
	SocketPath string `json:"socketPath"`
	APIAddress string `json:"apiAddress,omitempty"`
	Stats      Stats  `json:"stats"`
}

// CreateSessionRequest optionally resumes a known session id.
type CreateSessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// SubmitJobRequest queues a download in a session.
type SubmitJobRequest struct {
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// SessionListResponse wraps a session list.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// JobListResponse wraps a job list.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// HistoryResponse wraps archived downloads.
type HistoryResponse struct {
	Records []HistoryEntry `json:"records"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
