package history

import (
	"context"
	"time"

	"mediafetch/internal/monitor"
)

const recordTimeout = 5 * time.Second

// Recorder archives finalized jobs as a monitor listener.
type Recorder struct {
	store *Store
}

// NewRecorder returns a listener writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// HandleEvent records completed, failed, and cancelled events.
func (r *Recorder) HandleEvent(event monitor.Event) error {
	switch event.Type {
	case monitor.EventCompleted, monitor.EventFailed, monitor.EventCancelled:
	default:
		return nil
	}
	if event.Metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	_, err := r.store.Insert(ctx, RecordFromMetrics(*event.Metrics))
	return err
}

// RecordFromMetrics converts final monitor metrics into an archive record.
func RecordFromMetrics(m monitor.DownloadMetrics) Record {
	finished := m.StartTime
	if m.EndTime != nil {
		finished = *m.EndTime
	}
	return Record{
		JobID:         m.JobID,
		SessionID:     m.SessionID,
		URL:           m.URL,
		Category:      string(m.Category),
		State:         string(m.State),
		Success:       m.Success,
		Bytes:         m.DownloadedBytes,
		RetryCount:    m.RetryCount,
		NetworkErrors: m.NetworkErrorCount,
		Message:       m.Message,
		StartedAt:     m.StartTime,
		FinishedAt:    finished,
	}
}
