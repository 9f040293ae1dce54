package monitor

import (
	"time"

	"mediafetch/internal/retry"
)

// State is the lifecycle position of a monitored download.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DownloadMetrics tracks one download job from start to finalization.
// Pointer fields are nil until the engine reports them.
type DownloadMetrics struct {
	JobID             string         `json:"jobId"`
	URL               string         `json:"url"`
	SessionID         string         `json:"sessionId,omitempty"`
	State             State          `json:"state"`
	StartTime         time.Time      `json:"startTime"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	TotalBytes        *int64         `json:"totalBytes,omitempty"`
	DownloadedBytes   int64          `json:"downloadedBytes"`
	Speed             *float64       `json:"speed,omitempty"`
	AverageSpeed      *float64       `json:"averageSpeed,omitempty"`
	ETA               *time.Duration `json:"eta,omitempty"`
	ProgressPercent   *float64       `json:"progressPercent,omitempty"`
	RetryCount        int            `json:"retryCount"`
	NetworkErrorCount int            `json:"networkErrors"`
	Success           bool           `json:"success"`
	Category          retry.Category `json:"category,omitempty"`
	Message           string         `json:"message,omitempty"`
}

// Duration returns elapsed time, measured to now for active jobs.
func (m DownloadMetrics) Duration(now time.Time) time.Duration {
	end := now
	if m.EndTime != nil {
		end = *m.EndTime
	}
	if end.Before(m.StartTime) {
		return 0
	}
	return end.Sub(m.StartTime)
}

// clone returns a deep copy so callers never alias monitor state.
func (m *DownloadMetrics) clone() DownloadMetrics {
	out := *m
	if m.EndTime != nil {
		v := *m.EndTime
		out.EndTime = &v
	}
	if m.TotalBytes != nil {
		v := *m.TotalBytes
		out.TotalBytes = &v
	}
	if m.Speed != nil {
		v := *m.Speed
		out.Speed = &v
	}
	if m.AverageSpeed != nil {
		v := *m.AverageSpeed
		out.AverageSpeed = &v
	}
	if m.ETA != nil {
		v := *m.ETA
		out.ETA = &v
	}
	if m.ProgressPercent != nil {
		v := *m.ProgressPercent
		out.ProgressPercent = &v
	}
	return out
}

// Progress is one engine progress report. Zero Total, Speed, or ETA means
// the engine did not report that value.
type Progress struct {
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        time.Duration
}

// Status is the monitor's view of one job.
type Status struct {
	Metrics DownloadMetrics
	Active  bool
}

// Summary aggregates counts across active and historical jobs.
type Summary struct {
	Active    int
	Completed int
	Failed    int
	Cancelled int
	Total     int
	LastProbe *ProbeResult
}
