package monitor

import (
	"time"

	"mediafetch/internal/retry"
)

// EventType names a monitor lifecycle notification.
type EventType string

const (
	EventStarted      EventType = "started"
	EventProgress     EventType = "progress"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventCancelled    EventType = "cancelled"
	EventNetworkError EventType = "network_error"
	EventRetryAttempt EventType = "retry_attempt"
)

// Event is delivered to listeners after the monitor releases its lock.
// Metrics is a snapshot copy; listeners may retain it.
type Event struct {
	Type      EventType        `json:"type"`
	JobID     string           `json:"jobId"`
	SessionID string           `json:"sessionId,omitempty"`
	URL       string           `json:"url,omitempty"`
	Time      time.Time        `json:"time"`
	Metrics   *DownloadMetrics `json:"metrics,omitempty"`
	Decision  *retry.Decision  `json:"decision,omitempty"`
	Probe     *ProbeResult     `json:"probe,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Listener receives monitor events. Returned errors are logged and never
// reach the operation that produced the event.
type Listener interface {
	HandleEvent(Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event) error

// HandleEvent calls f(event).
func (f ListenerFunc) HandleEvent(event Event) error {
	return f(event)
}
