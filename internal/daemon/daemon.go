package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mediafetch/internal/api"
	"mediafetch/internal/clock"
	"mediafetch/internal/config"
	"mediafetch/internal/download"
	"mediafetch/internal/history"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/metrics"
	"mediafetch/internal/monitor"
	"mediafetch/internal/notifications"
	"mediafetch/internal/preflight"
	"mediafetch/internal/services"
	"mediafetch/internal/session"
	"mediafetch/internal/workspace"
)

// Deps are the components a daemon coordinates. History and Metrics are
// optional.
type Deps struct {
	Registry  *session.Registry
	Monitor   *monitor.Monitor
	Downloads *download.Manager
	Workspace *workspace.Workspace
	History   *history.Store
	Metrics   *metrics.Recorder
	Notifier  notifications.Service
	Clock     clock.Clock
}

// Daemon coordinates background maintenance and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Registry == nil || deps.Monitor == nil || deps.Downloads == nil || deps.Workspace == nil {
		return nil, errors.New("daemon requires config, registry, monitor, download manager, and workspace")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	deps.Clock = clock.Or(deps.Clock)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if deps.Metrics != nil {
		deps.Metrics.OnScrape(d.observe)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the maintenance sweeper, and opens
// the HTTP API when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediafetch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweepLoop(runCtx, d.cfg.CleanupInterval())
	}()

	d.running.Store(true)
	d.logger.Info("mediafetch daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop halts the sweeper and API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediafetch daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and cancels in-flight downloads.
func (d *Daemon) Close() error {
	d.Stop()
	d.deps.Downloads.Close()
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

func (d *Daemon) sweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep expires idle sessions, trims monitor history, prunes the archive,
// and refreshes gauges.
func (d *Daemon) Sweep(ctx context.Context) api.Cleanup {
	result := api.Cleanup{
		ExpiredSessions: d.deps.Registry.CleanupExpired(),
		PurgedMetrics:   d.deps.Monitor.PurgeHistory(d.cfg.HistoryMaxAge()),
	}
	if d.deps.History != nil && d.cfg.Logging.RetentionDays > 0 {
		cutoff := d.deps.Clock.Now().AddDate(0, 0, -d.cfg.Logging.RetentionDays)
		pruned, err := d.deps.History.Prune(ctx, cutoff)
		if err != nil {
			logging.WarnWithContext(d.logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history database file"),
				logging.String(logging.FieldImpact, "archive keeps growing until the next successful sweep"),
			)
		}
		result.PrunedRecords = pruned
	}
	d.observe()
	d.deps.Monitor.LogSummary()
	if result.ExpiredSessions > 0 || result.PurgedMetrics > 0 || result.PrunedRecords > 0 {
		d.logger.Info("maintenance sweep",
			logging.String(logging.FieldEventType, "sweep_completed"),
			logging.Int("expired_sessions", result.ExpiredSessions),
			logging.Int("purged_metrics", result.PurgedMetrics),
			logging.Int64("pruned_records", result.PrunedRecords),
		)
	}
	return result
}

func (d *Daemon) observe() {
	if d.deps.Metrics == nil {
		return
	}
	d.deps.Metrics.ObserveStats(d.deps.Registry.Stats())
	if usage, err := d.deps.Workspace.Usage(); err == nil {
		d.deps.Metrics.ObserveStorage(usage)
	}
}

// CreateSession creates or resumes a session. Capacity rejections trigger an
// operator alert when enabled.
func (d *Daemon) CreateSession(existingID string) (api.Session, error) {
	id, err := d.deps.Registry.Create(existingID)
	if err != nil {
		if errors.Is(err, services.ErrResourceExhausted) && d.cfg.Notifications.Capacity {
			stats := d.deps.Registry.Stats()
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotificationTimeout())
				defer cancel()
				if notifyErr := d.deps.Notifier.NotifyCapacityExhausted(ctx, stats.ActiveSessions, stats.MaxConcurrentSessions); notifyErr != nil {
					d.logger.Debug("capacity notification failed", logging.Error(notifyErr))
				}
			}()
		}
		return api.Session{}, err
	}
	info, _ := d.deps.Registry.Info(id)
	return api.FromSessionInfo(info), nil
}

// Session returns a session snapshot.
func (d *Daemon) Session(id string) (api.Session, error) {
	info, ok := d.deps.Registry.Info(id)
	if !ok {
		return api.Session{}, sessionNotFound(id)
	}
	return api.FromSessionInfo(info), nil
}

// Sessions lists active sessions, or every tracked session when all is set.
func (d *Daemon) Sessions(all bool) []api.Session {
	if all {
		return api.FromSessionInfos(d.deps.Registry.All())
	}
	return api.FromSessionInfos(d.deps.Registry.Active())
}

// Deactivate marks a session inactive.
func (d *Daemon) Deactivate(id string) error {
	if !d.deps.Registry.Deactivate(id) {
		return sessionNotFound(id)
	}
	return nil
}

// SessionContext summarizes the identities allocated by a session.
func (d *Daemon) SessionContext(id string) (api.SessionContext, error) {
	resolver, ok := d.deps.Registry.Resolver(id)
	if !ok {
		return api.SessionContext{}, d.deps.Registry.Unavailable(id, "session_context")
	}
	return api.FromResolver(resolver), nil
}

// Submit queues a download in a session.
func (d *Daemon) Submit(ctx context.Context, sessionID, url, category string) (api.Job, error) {
	parsed, err := jobpath.ParseCategory(category)
	if err != nil {
		return api.Job{}, services.Wrap(services.ErrValidation, "daemon", "submit", err.Error(), nil)
	}
	job, err := d.deps.Downloads.Submit(ctx, sessionID, url, parsed)
	if err != nil {
		return api.Job{}, err
	}
	return d.jobDTO(job), nil
}

// Jobs lists the jobs submitted in a session.
func (d *Daemon) Jobs(sessionID string) ([]api.Job, error) {
	if _, ok := d.deps.Registry.Info(sessionID); !ok {
		return nil, sessionNotFound(sessionID)
	}
	jobs := d.deps.Downloads.Jobs(sessionID)
	out := make([]api.Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, d.jobDTO(job))
	}
	return out, nil
}

// Job returns one job with its monitor progress.
func (d *Daemon) Job(sessionID, jobID string) (api.Job, error) {
	job, ok := d.deps.Downloads.Job(jobID)
	if !ok || job.SessionID != sessionID {
		return api.Job{}, services.Wrap(services.ErrNotFound, "daemon", "job", fmt.Sprintf("job %s not found in session %s", jobID, sessionID), nil)
	}
	return d.jobDTO(job), nil
}

// CancelJob cancels a running job.
func (d *Daemon) CancelJob(sessionID, jobID string) error {
	job, ok := d.deps.Downloads.Job(jobID)
	if !ok || job.SessionID != sessionID {
		return services.Wrap(services.ErrNotFound, "daemon", "cancel", fmt.Sprintf("job %s not found in session %s", jobID, sessionID), nil)
	}
	if !d.deps.Downloads.Cancel(jobID) {
		return services.Wrap(services.ErrInvalidState, "daemon", "cancel", fmt.Sprintf("job %s already %s", jobID, job.Status), nil)
	}
	return nil
}

// JobPaths derives the output directory of a known job for every category.
func (d *Daemon) JobPaths(sessionID, jobID string) (api.Paths, error) {
	resolver, ok := d.deps.Registry.Resolver(sessionID)
	if !ok {
		return api.Paths{}, d.deps.Registry.Unavailable(sessionID, "job_paths")
	}
	if _, known := resolver.Lookup(jobID); !known {
		return api.Paths{}, services.Wrap(services.ErrNotFound, "daemon", "paths", fmt.Sprintf("job %s not allocated in session %s", jobID, sessionID), nil)
	}
	return api.PathsFor(resolver.BaseDir(), sessionID, jobID), nil
}

func (d *Daemon) jobDTO(job download.Job) api.Job {
	if status, ok := d.deps.Monitor.Status(job.ID); ok {
		return api.FromJob(job, &status.Metrics)
	}
	return api.FromJob(job, nil)
}

// Stats aggregates session, monitor, and storage figures.
func (d *Daemon) Stats() api.Stats {
	usage, err := d.deps.Workspace.Usage()
	if err != nil {
		d.logger.Debug("storage usage unavailable", logging.Error(err))
	}
	return api.FromStats(d.deps.Registry.Stats(), d.deps.Monitor.Summary(), d.deps.Downloads.Running(), usage)
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	return api.DaemonStatus{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		LockPath:   d.lockPath,
		SocketPath: d.cfg.SocketPath(),
		APIAddress: d.api.address(),
		Stats:      d.Stats(),
	}
}

// Health runs preflight checks, probing through the monitor so the result is
// cached for admission.
func (d *Daemon) Health(ctx context.Context) api.Health {
	prober := monitor.ProberFunc(d.deps.Monitor.CheckConnectivity)
	checks := preflight.Run(ctx, d.cfg, prober)
	health := api.Health{Healthy: preflight.Healthy(checks), Checks: checks}
	if probe, ok := d.deps.Monitor.LastProbe(); ok {
		health.Probe = api.FromProbe(&probe)
	}
	return health
}

// History returns archived downloads, newest first. Without an archive the
// monitor's in-memory history is used.
func (d *Daemon) History(ctx context.Context, sessionID string, limit int) ([]api.HistoryEntry, error) {
	if d.deps.History == nil {
		var filtered []monitor.DownloadMetrics
		for _, entry := range d.deps.Monitor.History(0) {
			if sessionID == "" || entry.SessionID == sessionID {
				filtered = append(filtered, entry)
			}
		}
		if limit > 0 && len(filtered) > limit {
			filtered = filtered[:limit]
		}
		return api.FromMonitorHistory(filtered), nil
	}
	var (
		records []history.Record
		err     error
	)
	if sessionID != "" {
		records, err = d.deps.History.BySession(ctx, sessionID)
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
	} else {
		records, err = d.deps.History.Recent(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	return api.FromHistoryRecords(records), nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func sessionNotFound(id string) error {
	return services.Wrap(services.ErrNotFound, "daemon", "session", fmt.Sprintf("session %s not found", id), nil)
}
