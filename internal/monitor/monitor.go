package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mediafetch/internal/clock"
	"mediafetch/internal/logging"
	"mediafetch/internal/retry"
	"mediafetch/internal/services"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultHistoryLimit  = 1000
	DefaultHistoryMaxAge = 24 * time.Hour
)

// Config controls probing, retry decisions, and history retention.
type Config struct {
	Policy        retry.Policy
	NetworkChecks bool
	ProbeInterval time.Duration
	HistoryLimit  int
}

// DefaultConfig returns the stock monitor settings with probing enabled.
func DefaultConfig() Config {
	return Config{
		Policy:        retry.DefaultPolicy(),
		NetworkChecks: true,
		ProbeInterval: DefaultProbeInterval,
		HistoryLimit:  DefaultHistoryLimit,
	}
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = clock.Or(c) }
}

// WithLogger sets the logger used for lifecycle and listener diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logging.NewComponentLogger(logger, "monitor") }
}

// WithProber overrides the connectivity prober.
func WithProber(p Prober) Option {
	return func(m *Monitor) {
		if p != nil {
			m.prober = p
		}
	}
}

// WithClassifier overrides the error classifier.
func WithClassifier(c *retry.Classifier) Option {
	return func(m *Monitor) {
		if c != nil {
			m.classifier = c
		}
	}
}

// Monitor tracks active downloads, keeps a bounded history of finished ones,
// and turns engine failures into retry decisions. Listener delivery and
// probing happen outside mu.
type Monitor struct {
	cfg        Config
	clock      clock.Clock
	logger     *slog.Logger
	prober     Prober
	classifier *retry.Classifier

	probeMu sync.Mutex

	mu        sync.Mutex
	active    map[string]*DownloadMetrics
	samplers  map[string]*logging.ProgressSampler
	history   []DownloadMetrics
	listeners []Listener
	lastProbe *ProbeResult
}

// New constructs a monitor. Without WithProber, probes target the public
// service endpoint with a 10 second timeout.
func New(cfg Config, opts ...Option) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	m := &Monitor{
		cfg:        cfg,
		clock:      clock.Real{},
		logger:     logging.NewComponentLogger(nil, "monitor"),
		classifier: retry.NewClassifier(),
		active:     make(map[string]*DownloadMetrics),
		samplers:   make(map[string]*logging.ProgressSampler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prober == nil {
		m.prober = NewNetworkProber("www.youtube.com", "https://www.youtube.com", 10*time.Second)
	}
	return m
}

// Policy returns the retry policy in effect.
func (m *Monitor) Policy() retry.Policy {
	return m.cfg.Policy
}

// AddListener registers l. Listeners receive events in registration order.
func (m *Monitor) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// StartMonitoring begins tracking jobID. It returns false without creating
// metrics when the connectivity probe reports the service offline. A job that
// is already active is left untouched and reported as started.
func (m *Monitor) StartMonitoring(ctx context.Context, jobID, url string) bool {
	m.mu.Lock()
	_, exists := m.active[jobID]
	m.mu.Unlock()
	if exists {
		return true
	}

	if probe, ok := m.ensureOnline(ctx); !ok {
		logging.WarnWithContext(m.logger, "network check failed; download not started", "network_offline",
			logging.String(logging.FieldJobID, jobID),
			logging.URL(url),
			logging.String("probe_error", probe.Error),
			logging.String(logging.FieldErrorHint, "check network connectivity and DNS"),
			logging.String(logging.FieldImpact, "download rejected until connectivity returns"),
		)
		m.emit(Event{
			Type:  EventNetworkError,
			JobID: jobID,
			URL:   url,
			Time:  m.clock.Now(),
			Probe: &probe,
			Error: probe.Error,
		})
		return false
	}

	sessionID, _ := services.SessionIDFromContext(ctx)

	m.mu.Lock()
	if _, exists := m.active[jobID]; exists {
		m.mu.Unlock()
		return true
	}
	metrics := &DownloadMetrics{
		JobID:     jobID,
		URL:       url,
		SessionID: sessionID,
		State:     StateDownloading,
		StartTime: m.clock.Now(),
	}
	m.active[jobID] = metrics
	m.samplers[jobID] = logging.NewProgressSampler(10)
	event := m.eventLocked(EventStarted, metrics)
	m.mu.Unlock()

	m.logger.Info("download monitoring started",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldSessionID, sessionID),
		logging.URL(url),
		logging.String(logging.FieldEventType, "download_started"),
	)
	m.emit(event)
	return true
}

// UpdateProgress merges an engine progress report into the job's metrics.
// Reports for unknown or finalized jobs are discarded.
func (m *Monitor) UpdateProgress(jobID string, p Progress) bool {
	m.mu.Lock()
	metrics, ok := m.active[jobID]
	if !ok {
		state, known := m.finalStateLocked(jobID)
		m.mu.Unlock()
		m.logDiscarded("progress", jobID, state, known)
		return false
	}

	now := m.clock.Now()
	if p.Downloaded >= 0 {
		metrics.DownloadedBytes = p.Downloaded
	}
	if p.Total > 0 {
		total := p.Total
		metrics.TotalBytes = &total
	}
	if p.Speed > 0 {
		speed := p.Speed
		metrics.Speed = &speed
	}
	if p.ETA > 0 {
		eta := p.ETA
		metrics.ETA = &eta
	}
	if metrics.TotalBytes != nil && *metrics.TotalBytes > 0 {
		percent := float64(metrics.DownloadedBytes) / float64(*metrics.TotalBytes) * 100
		metrics.ProgressPercent = &percent
	}
	if elapsed := now.Sub(metrics.StartTime).Seconds(); elapsed > 0 {
		avg := float64(metrics.DownloadedBytes) / elapsed
		metrics.AverageSpeed = &avg
	}

	logProgress := false
	if metrics.ProgressPercent != nil {
		logProgress = m.samplers[jobID].ShouldLog(*metrics.ProgressPercent)
	}
	event := m.eventLocked(EventProgress, metrics)
	m.mu.Unlock()

	if logProgress {
		m.logger.Debug("download progress",
			logging.String(logging.FieldJobID, jobID),
			logging.Float64("percent", *event.Metrics.ProgressPercent),
			logging.Int64("downloaded_bytes", event.Metrics.DownloadedBytes),
		)
	}
	m.emit(event)
	return true
}

// HandleError records a failed attempt for jobID, classifies err, and asks
// the retry policy what to do. It never sleeps; callers wait Decision.Delay
// before trying again. A give-up decision finalizes the job as failed.
func (m *Monitor) HandleError(jobID string, err error) retry.Decision {
	category := m.classifier.Classify(err)
	errText := ""
	if err != nil {
		errText = err.Error()
	}

	m.mu.Lock()
	metrics, ok := m.active[jobID]
	if !ok {
		m.mu.Unlock()
		logging.WarnWithContext(m.logger, "error reported for unmonitored download", "download_unknown",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldCategory, string(category)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "nothing to retry"),
		)
		return retry.Decision{
			Category:   category,
			MaxRetries: m.cfg.Policy.MaxRetries,
			Message:    fmt.Sprintf("Download %s is not being monitored", jobID),
		}
	}

	metrics.RetryCount++
	metrics.NetworkErrorCount++
	metrics.Category = category
	decision := m.cfg.Policy.Decide(category, metrics.RetryCount, err)

	events := make([]Event, 0, 2)
	networkEvent := m.eventLocked(EventNetworkError, metrics)
	networkEvent.Decision = &decision
	networkEvent.Error = errText
	events = append(events, networkEvent)
	if decision.Retry {
		retryEvent := m.eventLocked(EventRetryAttempt, metrics)
		retryEvent.Decision = &decision
		retryEvent.Error = errText
		events = append(events, retryEvent)
	} else {
		m.finalizeLocked(metrics, StateFailed, decision.Message)
		failedEvent := m.eventLocked(EventFailed, metrics)
		failedEvent.Decision = &decision
		failedEvent.Error = errText
		events = append(events, failedEvent)
	}
	m.mu.Unlock()

	if decision.Retry {
		logging.WarnWithContext(m.logger, "download attempt failed; retrying", "download_retry",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldCategory, string(category)),
			logging.Int("attempt", decision.Attempt),
			logging.Int("max_retries", decision.MaxRetries),
			logging.Duration("delay", decision.Delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "download delayed"),
		)
	} else {
		logging.ErrorWithContext(m.logger, "download failed", "download_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldCategory, string(category)),
			logging.Int("attempt", decision.Attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network connectivity and the source URL"),
		)
	}
	m.emit(events...)
	return decision
}

// Complete finalizes jobID. It returns false when the job is not active.
func (m *Monitor) Complete(jobID string, success bool, message string) bool {
	m.mu.Lock()
	metrics, ok := m.active[jobID]
	if !ok {
		state, known := m.finalStateLocked(jobID)
		m.mu.Unlock()
		m.logDiscarded("completion", jobID, state, known)
		return false
	}
	state, eventType := StateCompleted, EventCompleted
	if !success {
		state, eventType = StateFailed, EventFailed
	}
	m.finalizeLocked(metrics, state, message)
	event := m.eventLocked(eventType, metrics)
	if !success {
		event.Error = message
	}
	m.mu.Unlock()

	attrs := []logging.Attr{
		logging.String(logging.FieldJobID, jobID),
		logging.Bool("success", success),
		logging.Duration("duration", event.Metrics.Duration(event.Time)),
		logging.Int64("downloaded_bytes", event.Metrics.DownloadedBytes),
		logging.String(logging.FieldEventType, "download_"+string(state)),
	}
	if message != "" {
		attrs = append(attrs, logging.String("message", message))
	}
	m.logger.Info("download finished", logging.Args(attrs...)...)
	m.emit(event)
	return true
}

// Cancel finalizes an active job as cancelled. Later progress or completion
// reports for it are discarded.
func (m *Monitor) Cancel(jobID string) bool {
	m.mu.Lock()
	metrics, ok := m.active[jobID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.finalizeLocked(metrics, StateCancelled, "Download cancelled")
	event := m.eventLocked(EventCancelled, metrics)
	m.mu.Unlock()

	m.logger.Info("download cancelled",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "download_cancelled"),
	)
	m.emit(event)
	return true
}

// Status returns the active metrics for jobID, or its most recent history
// entry.
func (m *Monitor) Status(jobID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if metrics, ok := m.active[jobID]; ok {
		return Status{Metrics: metrics.clone(), Active: true}, true
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].JobID == jobID {
			return Status{Metrics: m.history[i].clone()}, true
		}
	}
	return Status{}, false
}

// Active returns snapshots of every active job ordered by start time.
func (m *Monitor) Active() []DownloadMetrics {
	m.mu.Lock()
	out := make([]DownloadMetrics, 0, len(m.active))
	for _, metrics := range m.active {
		out = append(out, metrics.clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// History returns up to limit finalized jobs, newest first. A non-positive
// limit returns everything retained.
func (m *Monitor) History(limit int) []DownloadMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]DownloadMetrics, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i].clone())
	}
	return out
}

// Summary aggregates active and historical counts.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := Summary{Active: len(m.active)}
	for i := range m.history {
		switch m.history[i].State {
		case StateCompleted:
			summary.Completed++
		case StateFailed:
			summary.Failed++
		case StateCancelled:
			summary.Cancelled++
		}
	}
	summary.Total = summary.Active + summary.Completed + summary.Failed + summary.Cancelled
	if m.lastProbe != nil {
		probe := *m.lastProbe
		summary.LastProbe = &probe
	}
	return summary
}

// LogSummary writes the aggregate counts and the most recent finished jobs.
func (m *Monitor) LogSummary() {
	summary := m.Summary()
	m.logger.Info("download summary",
		logging.Int("active", summary.Active),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled),
		logging.String(logging.FieldEventType, "download_summary"),
	)
	for _, metrics := range m.History(5) {
		m.logger.Info("recent download",
			logging.String(logging.FieldJobID, metrics.JobID),
			logging.String("state", string(metrics.State)),
			logging.Duration("duration", metrics.Duration(m.clock.Now())),
		)
	}
}

// PurgeHistory drops finished jobs that ended more than maxAge ago and
// returns how many were removed.
func (m *Monitor) PurgeHistory(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultHistoryMaxAge
	}
	m.mu.Lock()
	now := m.clock.Now()
	kept := m.history[:0]
	for _, metrics := range m.history {
		if metrics.EndTime != nil && now.Sub(*metrics.EndTime) < maxAge {
			kept = append(kept, metrics)
		}
	}
	removed := len(m.history) - len(kept)
	clear(m.history[len(kept):])
	m.history = kept
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("purged download history",
			logging.Int("removed", removed),
			logging.Int("remaining", len(kept)),
		)
	}
	return removed
}

// CheckConnectivity forces a probe regardless of the cache.
func (m *Monitor) CheckConnectivity(ctx context.Context) ProbeResult {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()
	return m.probe(ctx)
}

// LastProbe returns the most recent probe result, if any.
func (m *Monitor) LastProbe() (ProbeResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastProbe == nil {
		return ProbeResult{}, false
	}
	return *m.lastProbe, true
}

// ensureOnline returns the cached probe result while it is fresh and probes
// otherwise.
func (m *Monitor) ensureOnline(ctx context.Context) (ProbeResult, bool) {
	if !m.cfg.NetworkChecks {
		return ProbeResult{Online: true, DNSOK: true, ServiceReachable: true}, true
	}
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	m.mu.Lock()
	var cached *ProbeResult
	if m.lastProbe != nil && m.clock.Now().Sub(m.lastProbe.CheckedAt) < m.cfg.ProbeInterval {
		probe := *m.lastProbe
		cached = &probe
	}
	m.mu.Unlock()
	if cached != nil {
		return *cached, cached.Online
	}
	result := m.probe(ctx)
	return result, result.Online
}

// probe requires probeMu.
func (m *Monitor) probe(ctx context.Context) ProbeResult {
	result := m.prober.Probe(ctx)
	result.CheckedAt = m.clock.Now()
	m.mu.Lock()
	m.lastProbe = &result
	m.mu.Unlock()

	m.logger.Debug("network check",
		logging.Bool("online", result.Online),
		logging.Bool("dns_ok", result.DNSOK),
		logging.Bool("service_reachable", result.ServiceReachable),
	)
	return result
}

// finalizeLocked moves metrics from active into the bounded history.
func (m *Monitor) finalizeLocked(metrics *DownloadMetrics, state State, message string) {
	end := m.clock.Now()
	metrics.EndTime = &end
	metrics.State = state
	metrics.Success = state == StateCompleted
	metrics.Speed = nil
	metrics.ETA = nil
	if message != "" {
		metrics.Message = message
	}
	delete(m.active, metrics.JobID)
	delete(m.samplers, metrics.JobID)

	m.history = append(m.history, *metrics)
	if over := len(m.history) - m.cfg.HistoryLimit; over > 0 {
		copy(m.history, m.history[over:])
		clear(m.history[len(m.history)-over:])
		m.history = m.history[:len(m.history)-over]
	}
}

func (m *Monitor) finalStateLocked(jobID string) (State, bool) {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].JobID == jobID {
			return m.history[i].State, true
		}
	}
	return "", false
}

func (m *Monitor) eventLocked(eventType EventType, metrics *DownloadMetrics) Event {
	snapshot := metrics.clone()
	return Event{
		Type:      eventType,
		JobID:     metrics.JobID,
		SessionID: metrics.SessionID,
		URL:       metrics.URL,
		Time:      m.clock.Now(),
		Metrics:   &snapshot,
	}
}

func (m *Monitor) logDiscarded(kind, jobID string, state State, known bool) {
	if known {
		m.logger.Debug(kind+" for finalized download discarded",
			logging.String(logging.FieldJobID, jobID),
			logging.String("state", string(state)),
		)
		return
	}
	logging.WarnWithContext(m.logger, kind+" for unknown download discarded", "download_unknown",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldImpact, "report ignored"),
	)
}

func (m *Monitor) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, event := range events {
		for _, listener := range listeners {
			m.deliver(listener, event)
		}
	}
}

func (m *Monitor) deliver(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(m.logger, "event listener panicked", "listener_panic",
				logging.Alert("listener_panic"),
				logging.String("event", string(event.Type)),
				logging.String(logging.FieldJobID, event.JobID),
				logging.Any("panic", r),
				logging.String(logging.FieldImpact, "listener missed this event"),
			)
		}
	}()
	if err := listener.HandleEvent(event); err != nil {
		logging.WarnWithContext(m.logger, "event listener failed", "listener_failed",
			logging.String("event", string(event.Type)),
			logging.String(logging.FieldJobID, event.JobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "listener missed this event"),
		)
	}
}
