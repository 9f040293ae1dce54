package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediafetch/internal/clock"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/services"
)

const (
	DefaultMaxConcurrentSessions = 100
	DefaultMaxJobsPerSession     = 10
	DefaultSessionTTL            = 24 * time.Hour
)

// Config bounds the registry.
type Config struct {
	MaxConcurrentSessions int
	MaxJobsPerSession     int
	SessionTTL            time.Duration
	BaseDir               string
}

// DefaultConfig returns the stock registry limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSessions: DefaultMaxConcurrentSessions,
		MaxJobsPerSession:     DefaultMaxJobsPerSession,
		SessionTTL:            DefaultSessionTTL,
		BaseDir:               jobpath.DefaultBaseDir,
	}
}

// ExpireHook receives the ids removed by an expiration sweep. Hooks run after
// the registry lock is released.
type ExpireHook func(ids []string)

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = clock.Or(c) }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logging.NewComponentLogger(logger, "registry") }
}

// WithExpireHook registers hook at construction time.
func WithExpireHook(hook ExpireHook) Option {
	return func(r *Registry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

type entry struct {
	session  Session
	resolver *jobpath.Resolver
}

// Registry is the process-wide session table. Every public method takes mu
// once and never calls another public method while holding it.
type Registry struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	hooks    []ExpireHook
}

// NewRegistry constructs an empty registry. Non-positive limits fall back to
// the defaults.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	defaults := DefaultConfig()
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = defaults.MaxConcurrentSessions
	}
	if cfg.MaxJobsPerSession <= 0 {
		cfg.MaxJobsPerSession = defaults.MaxJobsPerSession
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		cfg.BaseDir = defaults.BaseDir
	}
	r := &Registry{
		cfg:      cfg,
		clock:    clock.Real{},
		logger:   logging.NewComponentLogger(nil, "registry"),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the limits in effect.
func (r *Registry) Config() Config {
	return r.cfg
}

// AddExpireHook registers hook for future sweeps.
func (r *Registry) AddExpireHook(hook ExpireHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

// Create returns existingID when it is known and active. Otherwise it needs a
// free slot, sweeping expired sessions first when the active count is at the
// cap, and then reactivates the known session or allocates a new one. An
// unknown existingID must be a UUID and is adopted as the new session's id.
func (r *Registry) Create(existingID string) (string, error) {
	existingID = strings.TrimSpace(existingID)
	if existingID != "" {
		if _, err := uuid.Parse(existingID); err != nil {
			return "", services.Wrap(services.ErrValidation, "registry", "create", fmt.Sprintf("session id %q is not a UUID", existingID), nil)
		}
	}

	r.mu.Lock()
	now := r.clock.Now()
	if e, ok := r.sessions[existingID]; ok && existingID != "" && e.session.Active {
		e.session.LastActivity = now
		r.mu.Unlock()
		r.logger.Debug("session resumed",
			logging.String(logging.FieldSessionID, existingID),
		)
		return existingID, nil
	}

	var expired []string
	if r.activeCountLocked() >= r.cfg.MaxConcurrentSessions {
		expired = r.cleanupExpiredLocked(now)
	}
	if r.activeCountLocked() >= r.cfg.MaxConcurrentSessions {
		hooks := r.hooksLocked()
		r.mu.Unlock()
		r.afterSweep(expired, hooks)
		logging.WarnWithContext(r.logger, "session capacity reached", "session_capacity",
			logging.Alert("session_capacity"),
			logging.Int("max_concurrent_sessions", r.cfg.MaxConcurrentSessions),
			logging.String(logging.FieldErrorHint, "raise sessions.max_concurrent_sessions or lower session_timeout_hours"),
			logging.String(logging.FieldImpact, "new client rejected"),
		)
		return "", services.Wrap(services.ErrResourceExhausted, "registry", "create",
			fmt.Sprintf("maximum of %d concurrent sessions reached", r.cfg.MaxConcurrentSessions), nil)
	}

	if e, ok := r.sessions[existingID]; ok && existingID != "" {
		e.session.Active = true
		e.session.LastActivity = now
		hooks := r.hooksLocked()
		r.mu.Unlock()
		r.afterSweep(expired, hooks)
		r.logger.Info("session reactivated",
			logging.String(logging.FieldSessionID, existingID),
			logging.String(logging.FieldEventType, "session_reactivated"),
		)
		return existingID, nil
	}

	id := existingID
	if id == "" {
		id = uuid.NewString()
	}
	r.sessions[id] = &entry{
		session: Session{
			ID:           id,
			CreatedAt:    now,
			LastActivity: now,
			Active:       true,
		},
		resolver: jobpath.NewResolver(id, r.cfg.BaseDir),
	}
	hooks := r.hooksLocked()
	r.mu.Unlock()

	r.afterSweep(expired, hooks)
	r.logger.Info("session created",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "session_created"),
	)
	return id, nil
}

// Get returns a copy of an active session and refreshes its activity.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.activeLocked(id)
	if !ok {
		return Session{}, false
	}
	e.session.LastActivity = r.clock.Now()
	return e.session, true
}

// StartJob reserves a job slot. It returns false for unknown or inactive
// sessions and when the session already runs MaxJobsPerSession jobs.
func (r *Registry) StartJob(id string) bool {
	r.mu.Lock()
	e, ok := r.activeLocked(id)
	if !ok {
		r.mu.Unlock()
		return false
	}
	if e.session.ActiveJobs >= r.cfg.MaxJobsPerSession {
		active := e.session.ActiveJobs
		r.mu.Unlock()
		r.logger.Info("session job limit reached",
			logging.String(logging.FieldSessionID, id),
			logging.Int("active_jobs", active),
			logging.Int("max_jobs_per_session", r.cfg.MaxJobsPerSession),
		)
		return false
	}
	e.session.TotalJobs++
	e.session.ActiveJobs++
	e.session.LastActivity = r.clock.Now()
	r.mu.Unlock()
	return true
}

// CompleteJob releases a job slot as completed and adds bytes to the
// session's storage total.
func (r *Registry) CompleteJob(id string, bytes int64) error {
	return r.finishJob(id, "complete_job", func(s *Session) {
		s.CompletedJobs++
		if bytes > 0 {
			s.StorageUsedBytes += bytes
		}
	})
}

// FailJob releases a job slot as failed.
func (r *Registry) FailJob(id string) error {
	return r.finishJob(id, "fail_job", func(s *Session) {
		s.FailedJobs++
	})
}

// finishJob applies a terminal transition. Sessions with no active job are
// left untouched so the counter invariant holds.
func (r *Registry) finishJob(id, operation string, apply func(*Session)) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		logging.WarnWithContext(r.logger, "job finished for unknown session", "session_unknown",
			logging.String(logging.FieldSessionID, id),
			logging.String("operation", operation),
			logging.String(logging.FieldImpact, "session counters unchanged"),
		)
		return services.Wrap(services.ErrNotFound, "registry", operation, fmt.Sprintf("session %s not found", id), nil)
	}
	if e.session.ActiveJobs <= 0 {
		r.mu.Unlock()
		logging.WarnWithContext(r.logger, "job finished without an active job", "session_counter_mismatch",
			logging.String(logging.FieldSessionID, id),
			logging.String("operation", operation),
			logging.String(logging.FieldImpact, "session counters unchanged"),
		)
		return services.Wrap(services.ErrInvalidState, "registry", operation, fmt.Sprintf("session %s has no active jobs", id), nil)
	}
	e.session.ActiveJobs--
	apply(&e.session)
	e.session.LastActivity = r.clock.Now()
	r.mu.Unlock()
	return nil
}

// Deactivate marks a session inactive without deleting it; the sweep removes
// it once idle past the TTL.
func (r *Registry) Deactivate(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		e.session.Active = false
		e.session.LastActivity = r.clock.Now()
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("session deactivated",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_deactivated"),
		)
	}
	return ok
}

// CleanupExpired removes every session idle longer than the TTL and returns
// how many were removed.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	removed := r.cleanupExpiredLocked(r.clock.Now())
	hooks := r.hooksLocked()
	r.mu.Unlock()
	r.afterSweep(removed, hooks)
	return len(removed)
}

func (r *Registry) cleanupExpiredLocked(now time.Time) []string {
	var removed []string
	for id, e := range r.sessions {
		if now.Sub(e.session.LastActivity) > r.cfg.SessionTTL {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

func (r *Registry) afterSweep(removed []string, hooks []ExpireHook) {
	if len(removed) == 0 {
		return
	}
	r.logger.Info("expired sessions removed",
		logging.Int("count", len(removed)),
		logging.String(logging.FieldEventType, "sessions_expired"),
	)
	for _, hook := range hooks {
		hook(removed)
	}
}

// Stats aggregates all tracked sessions.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{
		TotalSessions:         len(r.sessions),
		MaxConcurrentSessions: r.cfg.MaxConcurrentSessions,
		MaxJobsPerSession:     r.cfg.MaxJobsPerSession,
	}
	for _, e := range r.sessions {
		s := e.session
		if s.Active {
			stats.ActiveSessions++
		}
		stats.TotalJobs += s.TotalJobs
		stats.ActiveJobs += s.ActiveJobs
		stats.CompletedJobs += s.CompletedJobs
		stats.FailedJobs += s.FailedJobs
		stats.TotalStorageBytes += s.StorageUsedBytes
	}
	return stats
}

// Info returns any tracked session, active or not, without refreshing it.
func (r *Registry) Info(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	return e.session.info(r.clock.Now()), true
}

// Active lists active sessions ordered by creation time.
func (r *Registry) Active() []Info {
	return r.list(true)
}

// All lists every tracked session ordered by creation time.
func (r *Registry) All() []Info {
	return r.list(false)
}

func (r *Registry) list(activeOnly bool) []Info {
	r.mu.Lock()
	now := r.clock.Now()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		if activeOnly && !e.session.Active {
			continue
		}
		out = append(out, e.session.info(now))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// JobID returns the session-scoped job id for url.
func (r *Registry) JobID(sessionID, url string) (string, error) {
	resolver, ok := r.touchResolver(sessionID)
	if !ok {
		return "", r.Unavailable(sessionID, "job_id")
	}
	return resolver.JobID(url), nil
}

// Unavailable explains why sessionID cannot take work: ErrInvalidState when
// it is tracked but inactive, ErrNotFound otherwise.
func (r *Registry) Unavailable(sessionID, operation string) error {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	inactive := ok && !e.session.Active
	r.mu.Unlock()
	if inactive {
		return services.Wrap(services.ErrInvalidState, "registry", operation, fmt.Sprintf("session %s is inactive", sessionID), nil)
	}
	return services.Wrap(services.ErrNotFound, "registry", operation, fmt.Sprintf("session %s not found", sessionID), nil)
}

// Resolver returns the path resolver owned by an active session.
func (r *Registry) Resolver(sessionID string) (*jobpath.Resolver, bool) {
	return r.touchResolver(sessionID)
}

// touchResolver hands out the resolver; its own lock guards the memo table
// so callers use it after mu is released.
func (r *Registry) touchResolver(sessionID string) (*jobpath.Resolver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.activeLocked(sessionID)
	if !ok {
		return nil, false
	}
	e.session.LastActivity = r.clock.Now()
	return e.resolver, true
}

// RunSweeper calls CleanupExpired every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.CleanupExpired(); removed > 0 {
				r.logger.Debug("session sweep finished", logging.Int("removed", removed))
			}
		}
	}
}

func (r *Registry) activeLocked(id string) (*entry, bool) {
	e, ok := r.sessions[id]
	if !ok || !e.session.Active {
		return nil, false
	}
	return e, true
}

func (r *Registry) activeCountLocked() int {
	count := 0
	for _, e := range r.sessions {
		if e.session.Active {
			count++
		}
	}
	return count
}

func (r *Registry) hooksLocked() []ExpireHook {
	if len(r.hooks) == 0 {
		return nil
	}
	hooks := make([]ExpireHook, len(r.hooks))
	copy(hooks, r.hooks)
	return hooks
}
