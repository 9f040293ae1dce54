package download

import (
	"time"

	"mediafetch/internal/jobpath"
)

// Status is a job's position in the execution loop.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusRetrying    Status = "retrying"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Finished reports whether the job has left the execution loop.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the manager's record of one submitted download.
type Job struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"sessionId"`
	URL        string           `json:"url"`
	Category   jobpath.Category `json:"category"`
	Status     Status           `json:"status"`
	OutputDir  string           `json:"outputDir,omitempty"`
	OutputPath string           `json:"outputPath,omitempty"`
	Title      string           `json:"title,omitempty"`
	Bytes      int64            `json:"bytes"`
	Attempts   int              `json:"attempts"`
	NextRetry  *time.Time       `json:"nextRetry,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}
