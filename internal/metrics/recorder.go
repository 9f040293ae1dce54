package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediafetch/internal/monitor"
	"mediafetch/internal/retry"
	"mediafetch/internal/session"
)

const namespace = "mediafetch"

// Recorder owns the Prometheus collectors for one daemon instance.
type Recorder struct {
	registry *prometheus.Registry

	downloads     *prometheus.CounterVec
	networkErrors *prometheus.CounterVec
	retries       *prometheus.CounterVec
	bytes         prometheus.Counter
	sessions      *prometheus.GaugeVec
	jobsActive    prometheus.Gauge
	storage       prometheus.Gauge

	refreshMu sync.Mutex
	refresh   func()
}

// NewRecorder registers every collector on a dedicated registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by result.",
		}, []string{"result"}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_errors_total",
			Help:      "Classified download failures by category.",
		}, []string{"category"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Scheduled retry attempts by category.",
		}, []string{"category"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written by completed downloads.",
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Tracked sessions by state.",
		}, []string{"state"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently holding a session slot.",
		}),
		storage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_bytes",
			Help:      "Bytes on disk under the download directory.",
		}),
	}
	r.registry.MustRegister(
		r.downloads, r.networkErrors, r.retries, r.bytes,
		r.sessions, r.jobsActive, r.storage,
	)
	for _, result := range []monitor.State{monitor.StateCompleted, monitor.StateFailed, monitor.StateCancelled} {
		r.downloads.WithLabelValues(string(result))
	}
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// HandleEvent updates counters from monitor events.
func (r *Recorder) HandleEvent(event monitor.Event) error {
	switch event.Type {
	case monitor.EventCompleted:
		r.downloads.WithLabelValues(string(monitor.StateCompleted)).Inc()
		if event.Metrics != nil && event.Metrics.DownloadedBytes > 0 {
			r.bytes.Add(float64(event.Metrics.DownloadedBytes))
		}
	case monitor.EventFailed:
		r.downloads.WithLabelValues(string(monitor.StateFailed)).Inc()
	case monitor.EventCancelled:
		r.downloads.WithLabelValues(string(monitor.StateCancelled)).Inc()
	case monitor.EventNetworkError:
		r.networkErrors.WithLabelValues(string(eventCategory(event))).Inc()
	case monitor.EventRetryAttempt:
		r.retries.WithLabelValues(string(eventCategory(event))).Inc()
	}
	return nil
}

// ObserveStats refreshes the session gauges.
func (r *Recorder) ObserveStats(stats session.Stats) {
	r.sessions.WithLabelValues("active").Set(float64(stats.ActiveSessions))
	r.sessions.WithLabelValues("inactive").Set(float64(stats.TotalSessions - stats.ActiveSessions))
	r.jobsActive.Set(float64(stats.ActiveJobs))
}

// ObserveStorage records current disk usage.
func (r *Recorder) ObserveStorage(bytes int64) {
	r.storage.Set(float64(bytes))
}

// OnScrape installs a callback run before every Handler scrape.
func (r *Recorder) OnScrape(refresh func()) {
	r.refreshMu.Lock()
	r.refresh = refresh
	r.refreshMu.Unlock()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.refreshMu.Lock()
		refresh := r.refresh
		r.refreshMu.Unlock()
		if refresh != nil {
			refresh()
		}
		inner.ServeHTTP(w, req)
	})
}

func eventCategory(event monitor.Event) retry.Category {
	if event.Decision != nil && event.Decision.Category != "" {
		return event.Decision.Category
	}
	if event.Metrics != nil && event.Metrics.Category != "" {
		return event.Metrics.Category
	}
	return retry.CategoryUnknown
}
