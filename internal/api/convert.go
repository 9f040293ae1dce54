package api

import (
	"time"

	"mediafetch/internal/download"
	"mediafetch/internal/history"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/monitor"
	"mediafetch/internal/session"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromSessionInfo converts a registry snapshot.
func FromSessionInfo(info session.Info) Session {
	return Session{
		ID:               info.ID,
		Active:           info.Active,
		CreatedAt:        formatTime(info.CreatedAt),
		LastActivity:     formatTime(info.LastActivity),
		AgeSeconds:       info.Age.Seconds(),
		IdleSeconds:      info.Idle.Seconds(),
		TotalJobs:        info.TotalJobs,
		ActiveJobs:       info.ActiveJobs,
		CompletedJobs:    info.CompletedJobs,
		FailedJobs:       info.FailedJobs,
		StorageUsedBytes: info.StorageUsedBytes,
	}
}

// FromSessionInfos converts a slice of snapshots.
func FromSessionInfos(infos []session.Info) []Session {
	out := make([]Session, 0, len(infos))
	for _, info := range infos {
		out = append(out, FromSessionInfo(info))
	}
	return out
}

// FromJob converts a manager job. metrics may be nil when the monitor has no
// record of the job.
func FromJob(job download.Job, metrics *monitor.DownloadMetrics) Job {
	dto := Job{
		ID:         job.ID,
		SessionID:  job.SessionID,
		URL:        job.URL,
		Category:   string(job.Category),
		Status:     string(job.Status),
		OutputDir:  job.OutputDir,
		OutputPath: job.OutputPath,
		Title:      job.Title,
		Bytes:      job.Bytes,
		Attempts:   job.Attempts,
		Error:      job.Error,
		CreatedAt:  formatTime(job.CreatedAt),
		UpdatedAt:  formatTime(job.UpdatedAt),
	}
	if job.NextRetry != nil {
		dto.NextRetry = formatTime(*job.NextRetry)
	}
	if metrics != nil {
		dto.Progress = fromMetrics(*metrics)
	}
	return dto
}

func fromMetrics(m monitor.DownloadMetrics) *JobProgress {
	progress := &JobProgress{
		State:           string(m.State),
		Percent:         m.ProgressPercent,
		DownloadedBytes: m.DownloadedBytes,
		TotalBytes:      m.TotalBytes,
		Speed:           m.Speed,
		RetryCount:      m.RetryCount,
		NetworkErrors:   m.NetworkErrorCount,
		Category:        string(m.Category),
	}
	if m.ETA != nil {
		seconds := m.ETA.Seconds()
		progress.ETASeconds = &seconds
	}
	return progress
}

// PathsFor derives the output directory of jobID for every category.
func PathsFor(baseDir, sessionID, jobID string) Paths {
	paths := make(map[string]string, len(jobpath.Categories))
	for _, category := range jobpath.Categories {
		paths[string(category)] = jobpath.DerivePath(baseDir, sessionID, jobID, category)
	}
	return Paths{SessionID: sessionID, JobID: jobID, Paths: paths}
}

// FromResolver summarizes a session's allocated identities.
func FromResolver(r *jobpath.Resolver) SessionContext {
	summary := r.Summary()
	return SessionContext{
		SessionID:  summary.SessionID,
		SessionDir: r.SessionDir(),
		JobCount:   summary.JobCount,
		URLs:       summary.URLs,
		JobIDs:     summary.IDs,
	}
}

// FromProbe converts a probe result; nil yields nil.
func FromProbe(p *monitor.ProbeResult) *Probe {
	if p == nil {
		return nil
	}
	return &Probe{
		Online:           p.Online,
		DNSOK:            p.DNSOK,
		ServiceReachable: p.ServiceReachable,
		Error:            p.Error,
		CheckedAt:        formatTime(p.CheckedAt),
	}
}

// FromStats assembles the combined statistics payload.
func FromStats(stats session.Stats, summary monitor.Summary, running int, storageBytes int64) Stats {
	return Stats{
		Sessions: SessionStats{
			TotalSessions:         stats.TotalSessions,
			ActiveSessions:        stats.ActiveSessions,
			TotalJobs:             stats.TotalJobs,
			ActiveJobs:            stats.ActiveJobs,
			CompletedJobs:         stats.CompletedJobs,
			FailedJobs:            stats.FailedJobs,
			TotalStorageBytes:     stats.TotalStorageBytes,
			MaxConcurrentSessions: stats.MaxConcurrentSessions,
			MaxJobsPerSession:     stats.MaxJobsPerSession,
		},
		Downloads: DownloadSummary{
			Active:    summary.Active,
			Completed: summary.Completed,
			Failed:    summary.Failed,
			Cancelled: summary.Cancelled,
			Total:     summary.Total,
		},
		RunningJobs:  running,
		StorageBytes: storageBytes,
		LastProbe:    FromProbe(summary.LastProbe),
	}
}

// FromHistoryRecords converts archived downloads.
func FromHistoryRecords(records []history.Record) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryEntry{
			JobID:           rec.JobID,
			SessionID:       rec.SessionID,
			URL:             rec.URL,
			State:           rec.State,
			Success:         rec.Success,
			Bytes:           rec.Bytes,
			RetryCount:      rec.RetryCount,
			NetworkErrors:   rec.NetworkErrors,
			Category:        rec.Category,
			Message:         rec.Message,
			StartedAt:       formatTime(rec.StartedAt),
			FinishedAt:      formatTime(rec.FinishedAt),
			DurationSeconds: rec.Duration().Seconds(),
		})
	}
	return out
}

// FromMonitorHistory converts in-memory monitor history when no archive is
// configured.
func FromMonitorHistory(metrics []monitor.DownloadMetrics) []HistoryEntry {
	records := make([]history.Record, 0, len(metrics))
	for _, m := range metrics {
		records = append(records, history.RecordFromMetrics(m))
	}
	return FromHistoryRecords(records)
}
