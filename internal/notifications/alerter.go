package notifications

import (
	"context"
	"time"

	"mediafetch/internal/monitor"
)

// Alerter sends a failure alert whenever the monitor gives up on a job.
type Alerter struct {
	service Service
	timeout time.Duration
}

// NewAlerter wraps service as a monitor listener.
func NewAlerter(service Service, timeout time.Duration) *Alerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{service: service, timeout: timeout}
}

// HandleEvent alerts on failed events only.
func (a *Alerter) HandleEvent(event monitor.Event) error {
	if event.Type != monitor.EventFailed {
		return nil
	}
	message := event.Error
	if event.Metrics != nil && event.Metrics.Message != "" {
		message = event.Metrics.Message
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	return a.service.NotifyDownloadFailed(ctx, event.URL, message)
}
