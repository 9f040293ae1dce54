package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"mediafetch/internal/clock"
	"mediafetch/internal/engine"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/monitor"
	"mediafetch/internal/retry"
	"mediafetch/internal/services"
)

const DefaultWorkers = 4

// Sessions is the slice of the session registry the manager drives.
type Sessions interface {
	JobID(sessionID, url string) (string, error)
	Unavailable(sessionID, operation string) error
	StartJob(id string) bool
	CompleteJob(id string, bytes int64) error
	FailJob(id string) error
}

// Tracker is the slice of the download monitor the manager drives.
type Tracker interface {
	StartMonitoring(ctx context.Context, jobID, url string) bool
	UpdateProgress(jobID string, p monitor.Progress) bool
	HandleError(jobID string, err error) retry.Decision
	Complete(jobID string, success bool, message string) bool
	Cancel(jobID string) bool
}

// Storage prepares and sizes job directories.
type Storage interface {
	Prepare(sessionID, jobID string, category jobpath.Category) (string, error)
	Size(path string) (int64, error)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithWorkers bounds concurrent transfers.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithClock overrides the clock used for timestamps and retry waits.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.Or(c) }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.NewComponentLogger(logger, "download") }
}

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	// orphaned marks a running job whose session was removed; finish drops it.
	orphaned bool
}

// Manager runs submitted jobs on a bounded worker pool. It owns the retry
// loop: the monitor decides, the manager waits and re-invokes the engine.
type Manager struct {
	sessions Sessions
	tracker  Tracker
	engine   engine.Engine
	storage  Storage
	clock    clock.Clock
	logger   *slog.Logger
	workers  int

	slots      chan struct{}
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*jobEntry
}

// NewManager wires the manager to its collaborators.
func NewManager(sessions Sessions, tracker Tracker, eng engine.Engine, storage Storage, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		tracker:  tracker,
		engine:   eng,
		storage:  storage,
		clock:    clock.Real{},
		logger:   logging.NewComponentLogger(nil, "download"),
		workers:  DefaultWorkers,
		jobs:     make(map[string]*jobEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.slots = make(chan struct{}, m.workers)
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	return m
}

// Submit validates and schedules a download of rawURL for sessionID. The
// session's job slot is reserved before Submit returns.
func (m *Manager) Submit(ctx context.Context, sessionID, rawURL string, category jobpath.Category) (Job, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return Job{}, err
	}
	if category == "" {
		category = jobpath.CategoryAudio
	}
	if _, err := jobpath.ParseCategory(string(category)); err != nil {
		return Job{}, services.Wrap(services.ErrValidation, "download", "submit", err.Error(), nil)
	}
	jobID, err := m.sessions.JobID(sessionID, rawURL)
	if err != nil {
		return Job{}, err
	}

	m.mu.Lock()
	if existing, ok := m.jobs[jobID]; ok && !existing.job.Status.Finished() {
		m.mu.Unlock()
		return Job{}, services.Wrap(services.ErrInvalidState, "download", "submit", fmt.Sprintf("job %s is already %s", jobID, existing.job.Status), nil)
	}
	if !m.sessions.StartJob(sessionID) {
		m.mu.Unlock()
		if _, err := m.sessions.JobID(sessionID, rawURL); err != nil {
			return Job{}, err
		}
		return Job{}, services.Wrap(services.ErrResourceExhausted, "download", "submit", "session job limit reached", nil)
	}

	now := m.clock.Now()
	jobCtx, cancel := context.WithCancel(m.baseCtx)
	jobCtx = services.WithSessionID(jobCtx, sessionID)
	jobCtx = services.WithJobID(jobCtx, jobID)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		jobCtx = services.WithRequestID(jobCtx, rid)
	}
	entry := &jobEntry{
		job: Job{
			ID:        jobID,
			SessionID: sessionID,
			URL:       rawURL,
			Category:  category,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	m.jobs[jobID] = entry
	snapshot := entry.job
	m.wg.Add(1)
	m.mu.Unlock()

	logging.WithContext(jobCtx, m.logger).Info("download queued",
		logging.URL(rawURL),
		logging.String("category", string(category)),
		logging.String(logging.FieldEventType, "download_queued"),
	)
	go m.run(jobCtx, jobID)
	return snapshot, nil
}

func (m *Manager) run(ctx context.Context, jobID string) {
	defer m.wg.Done()
	job, _ := m.Job(jobID)
	logger := logging.WithContext(ctx, m.logger)

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		m.finish(job, StatusCancelled, "Download cancelled before start", 0)
		return
	}
	defer func() { <-m.slots }()

	dir, err := m.storage.Prepare(job.SessionID, job.ID, job.Category)
	if err != nil {
		logging.ErrorWithContext(logger, "job directory not prepared", "workspace_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check download_dir permissions and free space"),
		)
		m.finish(job, StatusFailed, err.Error(), 0)
		return
	}
	m.update(jobID, func(j *Job) { j.OutputDir = dir })

	if !m.tracker.StartMonitoring(ctx, job.ID, job.URL) {
		m.finish(job, StatusFailed, "Network connectivity check failed. Please check your internet connection.", 0)
		return
	}

	req := engine.Request{URL: job.URL, Destination: dir, Category: job.Category}
	for {
		m.update(jobID, func(j *Job) {
			j.Status = StatusDownloading
			j.Attempts++
			j.NextRetry = nil
		})
		result, err := m.engine.Fetch(ctx, req, func(p engine.Progress) {
			m.tracker.UpdateProgress(job.ID, monitor.Progress{
				Downloaded: p.Downloaded,
				Total:      p.Total,
				Speed:      p.Speed,
				ETA:        p.ETA,
			})
			m.update(jobID, func(j *Job) {
				j.Bytes = p.Downloaded
				if p.Title != "" {
					j.Title = p.Title
				}
			})
		})
		if ctx.Err() != nil {
			m.tracker.Cancel(job.ID)
			m.finish(job, StatusCancelled, "Download cancelled", 0)
			return
		}
		if err == nil {
			size, sizeErr := m.storage.Size(dir)
			if sizeErr != nil || size == 0 {
				if sizeErr != nil {
					logger.Debug("job directory not sized; using engine byte count", logging.Error(sizeErr))
				}
				size = result.BytesTransferred
			}
			m.update(jobID, func(j *Job) {
				j.OutputPath = result.OutputPath
				if result.Title != "" {
					j.Title = result.Title
				}
			})
			m.tracker.Complete(job.ID, true, "")
			m.finish(job, StatusCompleted, "", size)
			return
		}

		decision := m.tracker.HandleError(job.ID, err)
		if decision.GiveUp() {
			m.finish(job, StatusFailed, decision.Message, 0)
			return
		}
		retryAt := m.clock.Now().Add(decision.Delay)
		m.update(jobID, func(j *Job) {
			j.Status = StatusRetrying
			j.Error = err.Error()
			j.NextRetry = &retryAt
		})
		if err := clock.Sleep(ctx, m.clock, decision.Delay); err != nil {
			m.tracker.Cancel(job.ID)
			m.finish(job, StatusCancelled, "Download cancelled", 0)
			return
		}
	}
}

// finish records the terminal status and releases the session slot. The
// status and the job context change under one lock; Submit may replace the
// entry as soon as it reads finished.
func (m *Manager) finish(job Job, status Status, message string, bytes int64) {
	m.mu.Lock()
	if entry, ok := m.jobs[job.ID]; ok {
		entry.job.Status = status
		entry.job.Error = message
		entry.job.NextRetry = nil
		if bytes > 0 {
			entry.job.Bytes = bytes
		}
		entry.job.UpdatedAt = m.clock.Now()
		if entry.cancel != nil {
			entry.cancel()
			entry.cancel = nil
		}
		if entry.orphaned {
			delete(m.jobs, job.ID)
		}
	}
	m.mu.Unlock()

	var err error
	if status == StatusCompleted {
		err = m.sessions.CompleteJob(job.SessionID, bytes)
	} else {
		err = m.sessions.FailJob(job.SessionID)
	}
	if err != nil {
		m.logger.Debug("session counters not updated",
			logging.String(logging.FieldSessionID, job.SessionID),
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}

func (m *Manager) update(jobID string, apply func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return
	}
	apply(&entry.job)
	entry.job.UpdatedAt = m.clock.Now()
}

// Job returns a snapshot of jobID.
func (m *Manager) Job(jobID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return entry.job, true
}

// Jobs lists a session's jobs ordered by creation time.
func (m *Manager) Jobs(sessionID string) []Job {
	m.mu.Lock()
	out := make([]Job, 0)
	for _, entry := range m.jobs {
		if entry.job.SessionID == sessionID {
			out = append(out, entry.job)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Running counts jobs that have not finished.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.jobs {
		if !entry.job.Status.Finished() {
			count++
		}
	}
	return count
}

// Cancel stops a running job. It returns false when the job is unknown or
// already finished.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok || entry.job.Status.Finished() || entry.cancel == nil {
		return false
	}
	entry.cancel()
	return true
}

// ForgetSessions drops the finished jobs of removed sessions and cancels the
// running ones, which are dropped as they finish. It matches
// session.ExpireHook.
func (m *Manager) ForgetSessions(ids []string) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for jobID, entry := range m.jobs {
		if _, ok := gone[entry.job.SessionID]; !ok {
			continue
		}
		if entry.job.Status.Finished() {
			delete(m.jobs, jobID)
			continue
		}
		if entry.cancel != nil {
			entry.cancel()
		}
		entry.orphaned = true
	}
}

// Wait blocks until every submitted job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels all running jobs and waits for them to unwind.
func (m *Manager) Close() {
	m.baseCancel()
	m.wg.Wait()
}

func validateURL(raw string) error {
	if raw == "" {
		return services.Wrap(services.ErrValidation, "download", "submit", "url is required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return services.Wrap(services.ErrValidation, "download", "submit", fmt.Sprintf("url %q must be an absolute http(s) URL", raw), nil)
	}
	return nil
}

// RetryAfter reports how long until a retrying job's next attempt.
func (j Job) RetryAfter(now time.Time) time.Duration {
	if j.NextRetry == nil || !j.NextRetry.After(now) {
		return 0
	}
	return j.NextRetry.Sub(now)
}
