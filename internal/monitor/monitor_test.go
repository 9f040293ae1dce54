package monitor_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"mediafetch/internal/clock"
	"mediafetch/internal/monitor"
	"mediafetch/internal/retry"
	"mediafetch/internal/services"
)

type recorder struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (r *recorder) HandleEvent(e monitor.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []monitor.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]monitor.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type countingProber struct {
	mu     sync.Mutex
	calls  int
	result monitor.ProbeResult
}

func (p *countingProber) Probe(context.Context) monitor.ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result
}

func (p *countingProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMonitor(t *testing.T, cfg monitor.Config, prober monitor.Prober) (*monitor.Monitor, *clock.Fake, *recorder) {
	t.Helper()
	fake := clock.NewFake(start)
	if prober == nil {
		prober = &countingProber{result: monitor.ProbeResult{Online: true, DNSOK: true, ServiceReachable: true}}
	}
	m := monitor.New(cfg, monitor.WithClock(fake), monitor.WithProber(prober))
	rec := &recorder{}
	m.AddListener(rec)
	return m, fake, rec
}

func TestHandleErrorRetriesThenGivesUp(t *testing.T) {
	cfg := monitor.DefaultConfig()
	cfg.Policy = retry.Policy{MaxRetries: 3, BaseDelay: 5 * time.Second}
	m, _, rec := newMonitor(t, cfg, nil)

	if !m.StartMonitoring(context.Background(), "job-1", "https://example.com/a") {
		t.Fatal("expected monitoring to start")
	}
	dnsErr := errors.New("Temporary failure in name resolution")
	for attempt := 1; attempt < 3; attempt++ {
		decision := m.HandleError("job-1", dnsErr)
		if !decision.Retry {
			t.Fatalf("attempt %d: expected retry, got %v", attempt, decision)
		}
		if decision.Delay != 10*time.Second {
			t.Fatalf("attempt %d: expected dns delay 10s, got %v", attempt, decision.Delay)
		}
		if decision.Category != retry.CategoryDNS {
			t.Fatalf("unexpected category %s", decision.Category)
		}
	}
	final := m.HandleError("job-1", dnsErr)
	if final.Retry {
		t.Fatalf("expected give up on attempt 3, got %v", final)
	}
	if final.Message == "" {
		t.Fatal("expected explanation on give up")
	}

	status, ok := m.Status("job-1")
	if !ok {
		t.Fatal("expected status in history")
	}
	if status.Active || status.Metrics.Success {
		t.Fatalf("expected inactive failed metrics, got %+v", status)
	}
	if status.Metrics.State != monitor.StateFailed || status.Metrics.RetryCount != 3 || status.Metrics.NetworkErrorCount != 3 {
		t.Fatalf("unexpected final metrics %+v", status.Metrics)
	}
	if status.Metrics.Message != final.Message {
		t.Fatalf("expected metrics message to carry explanation")
	}

	want := []monitor.EventType{
		monitor.EventStarted,
		monitor.EventNetworkError, monitor.EventRetryAttempt,
		monitor.EventNetworkError, monitor.EventRetryAttempt,
		monitor.EventNetworkError, monitor.EventFailed,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestHandleErrorUnclassifiedGivesUpImmediately(t *testing.T) {
	m, _, _ := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")

	decision := m.HandleError("job-1", errors.New("ERROR: unsupported URL"))
	if decision.Retry {
		t.Fatalf("expected unclassified failure to give up, got %v", decision)
	}
	if decision.Category != retry.CategoryUnknown {
		t.Fatalf("unexpected category %s", decision.Category)
	}
}

func TestHandleErrorUnknownJob(t *testing.T) {
	m, _, _ := newMonitor(t, monitor.DefaultConfig(), nil)
	decision := m.HandleError("missing", errors.New("connection reset by peer"))
	if decision.Retry || decision.Message == "" {
		t.Fatalf("expected give up with message for unknown job, got %+v", decision)
	}
}

func TestUpdateProgressComputesPercentAndAverage(t *testing.T) {
	m, fake, rec := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")

	fake.Advance(2 * time.Second)
	if !m.UpdateProgress("job-1", monitor.Progress{Downloaded: 500, Total: 1000, Speed: 250, ETA: 2 * time.Second}) {
		t.Fatal("expected progress accepted")
	}
	status, _ := m.Status("job-1")
	metrics := status.Metrics
	if metrics.ProgressPercent == nil || *metrics.ProgressPercent != 50 {
		t.Fatalf("unexpected percent %v", metrics.ProgressPercent)
	}
	if metrics.AverageSpeed == nil || *metrics.AverageSpeed != 250 {
		t.Fatalf("unexpected average speed %v", metrics.AverageSpeed)
	}
	if metrics.ETA == nil || *metrics.ETA != 2*time.Second {
		t.Fatalf("unexpected eta %v", metrics.ETA)
	}

	// total unknown on a later report keeps the previous total
	m.UpdateProgress("job-1", monitor.Progress{Downloaded: 750})
	status, _ = m.Status("job-1")
	if *status.Metrics.ProgressPercent != 75 {
		t.Fatalf("expected merged percent 75, got %v", *status.Metrics.ProgressPercent)
	}
	if got := rec.types(); got[len(got)-1] != monitor.EventProgress {
		t.Fatalf("expected progress event, got %v", got)
	}
}

func TestProgressAfterCancelIsDiscarded(t *testing.T) {
	m, _, rec := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")
	if !m.Cancel("job-1") {
		t.Fatal("expected cancel to succeed")
	}
	if m.UpdateProgress("job-1", monitor.Progress{Downloaded: 10}) {
		t.Fatal("expected progress after cancel to be discarded")
	}
	if m.Complete("job-1", true, "") {
		t.Fatal("expected completion after cancel to be discarded")
	}
	status, ok := m.Status("job-1")
	if !ok || status.Metrics.State != monitor.StateCancelled {
		t.Fatalf("expected cancelled status, got %+v", status)
	}
	got := rec.types()
	if got[len(got)-1] != monitor.EventCancelled {
		t.Fatalf("expected cancelled to be last event, got %v", got)
	}
}

func TestCompleteMovesToHistory(t *testing.T) {
	m, fake, rec := newMonitor(t, monitor.DefaultConfig(), nil)
	ctx := services.WithSessionID(context.Background(), "session-1")
	m.StartMonitoring(ctx, "job-1", "u")
	fake.Advance(3 * time.Second)

	if !m.Complete("job-1", true, "") {
		t.Fatal("expected completion")
	}
	status, ok := m.Status("job-1")
	if !ok || status.Active {
		t.Fatalf("expected finalized status, got %+v", status)
	}
	if !status.Metrics.Success || status.Metrics.State != monitor.StateCompleted {
		t.Fatalf("unexpected metrics %+v", status.Metrics)
	}
	if status.Metrics.SessionID != "session-1" {
		t.Fatalf("expected session from context, got %q", status.Metrics.SessionID)
	}
	if d := status.Metrics.Duration(fake.Now()); d != 3*time.Second {
		t.Fatalf("unexpected duration %v", d)
	}
	summary := m.Summary()
	if summary.Active != 0 || summary.Completed != 1 || summary.Total != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := rec.types(); got[len(got)-1] != monitor.EventCompleted {
		t.Fatalf("expected completed event, got %v", got)
	}
}

func TestStartMonitoringIsIdempotentForActiveJob(t *testing.T) {
	m, _, rec := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")
	m.UpdateProgress("job-1", monitor.Progress{Downloaded: 42})
	if !m.StartMonitoring(context.Background(), "job-1", "u") {
		t.Fatal("expected true for active job")
	}
	status, _ := m.Status("job-1")
	if status.Metrics.DownloadedBytes != 42 {
		t.Fatalf("expected metrics preserved, got %d", status.Metrics.DownloadedBytes)
	}
	started := 0
	for _, typ := range rec.types() {
		if typ == monitor.EventStarted {
			started++
		}
	}
	if started != 1 {
		t.Fatalf("expected one started event, got %d", started)
	}
}

func TestOfflineProbeRejectsStart(t *testing.T) {
	prober := &countingProber{result: monitor.ProbeResult{DNSOK: false, Error: "DNS resolution failed"}}
	m, _, rec := newMonitor(t, monitor.DefaultConfig(), prober)

	if m.StartMonitoring(context.Background(), "job-1", "u") {
		t.Fatal("expected start to fail while offline")
	}
	if _, ok := m.Status("job-1"); ok {
		t.Fatal("expected no metrics for rejected job")
	}
	got := rec.types()
	if len(got) != 1 || got[0] != monitor.EventNetworkError {
		t.Fatalf("expected single network_error event, got %v", got)
	}
}

func TestProbeIsThrottled(t *testing.T) {
	prober := &countingProber{result: monitor.ProbeResult{Online: true, DNSOK: true, ServiceReachable: true}}
	cfg := monitor.DefaultConfig()
	cfg.ProbeInterval = 30 * time.Second
	m, fake, _ := newMonitor(t, cfg, prober)

	m.StartMonitoring(context.Background(), "a", "u1")
	m.StartMonitoring(context.Background(), "b", "u2")
	if prober.count() != 1 {
		t.Fatalf("expected one probe within interval, got %d", prober.count())
	}
	fake.Advance(31 * time.Second)
	m.StartMonitoring(context.Background(), "c", "u3")
	if prober.count() != 2 {
		t.Fatalf("expected re-probe after interval, got %d", prober.count())
	}
	m.CheckConnectivity(context.Background())
	if prober.count() != 3 {
		t.Fatalf("expected forced probe, got %d", prober.count())
	}
	if probe, ok := m.LastProbe(); !ok || !probe.Online || !probe.CheckedAt.Equal(fake.Now()) {
		t.Fatalf("unexpected last probe %+v", probe)
	}
}

func TestNetworkChecksDisabledSkipsProbe(t *testing.T) {
	prober := &countingProber{}
	cfg := monitor.DefaultConfig()
	cfg.NetworkChecks = false
	m, _, _ := newMonitor(t, cfg, prober)
	if !m.StartMonitoring(context.Background(), "job-1", "u") {
		t.Fatal("expected start without probing")
	}
	if prober.count() != 0 {
		t.Fatalf("expected no probes, got %d", prober.count())
	}
}

func TestListenerFailuresAreIsolated(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	prober := &countingProber{result: monitor.ProbeResult{Online: true, DNSOK: true, ServiceReachable: true}}
	m := monitor.New(monitor.DefaultConfig(), monitor.WithClock(clock.NewFake(start)), monitor.WithProber(prober), monitor.WithLogger(logger))
	m.AddListener(monitor.ListenerFunc(func(monitor.Event) error { return errors.New("boom") }))
	m.AddListener(monitor.ListenerFunc(func(monitor.Event) error { panic("listener bug") }))
	last := &recorder{}
	m.AddListener(last)

	if !m.StartMonitoring(context.Background(), "job-1", "u") {
		t.Fatal("listener failure must not affect the caller")
	}
	if got := last.types(); len(got) != 1 || got[0] != monitor.EventStarted {
		t.Fatalf("expected later listener to still receive event, got %v", got)
	}
	if !strings.Contains(logs.String(), `"alert":"listener_panic"`) {
		t.Fatalf("expected panicking listener to be flagged, got %s", logs.String())
	}
}

func TestListenerMayCallBackIntoMonitor(t *testing.T) {
	m, _, _ := newMonitor(t, monitor.DefaultConfig(), nil)
	var seen monitor.Summary
	m.AddListener(monitor.ListenerFunc(func(e monitor.Event) error {
		if e.Type == monitor.EventCompleted {
			seen = m.Summary()
		}
		return nil
	}))
	m.StartMonitoring(context.Background(), "job-1", "u")
	m.Complete("job-1", true, "")
	if seen.Completed != 1 {
		t.Fatalf("expected listener to observe committed state, got %+v", seen)
	}
}

func TestHistoryIsBoundedAndPurged(t *testing.T) {
	cfg := monitor.DefaultConfig()
	cfg.HistoryLimit = 2
	m, fake, _ := newMonitor(t, cfg, nil)
	for _, id := range []string{"a", "b", "c"} {
		m.StartMonitoring(context.Background(), id, "u-"+id)
		m.Complete(id, true, "")
		fake.Advance(time.Hour)
	}
	history := m.History(0)
	if len(history) != 2 || history[0].JobID != "c" || history[1].JobID != "b" {
		t.Fatalf("expected newest two entries, got %+v", history)
	}
	if _, ok := m.Status("a"); ok {
		t.Fatal("expected oldest entry evicted")
	}

	// b ended 2h ago, c ended 1h ago
	if removed := m.PurgeHistory(90 * time.Minute); removed != 1 {
		t.Fatalf("expected one purged entry, got %d", removed)
	}
	if history := m.History(0); len(history) != 1 || history[0].JobID != "c" {
		t.Fatalf("unexpected history after purge %+v", history)
	}
}

func TestEventMetricsAreCopies(t *testing.T) {
	m, _, rec := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")
	m.UpdateProgress("job-1", monitor.Progress{Downloaded: 1, Total: 10})
	m.UpdateProgress("job-1", monitor.Progress{Downloaded: 5, Total: 10})

	rec.mu.Lock()
	first := rec.events[1]
	rec.mu.Unlock()
	if first.Metrics.DownloadedBytes != 1 || *first.Metrics.ProgressPercent != 10 {
		t.Fatalf("event snapshot mutated: %+v", first.Metrics)
	}
}

func TestConcurrentProgressUpdates(t *testing.T) {
	m, _, _ := newMonitor(t, monitor.DefaultConfig(), nil)
	m.StartMonitoring(context.Background(), "job-1", "u")
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			m.UpdateProgress("job-1", monitor.Progress{Downloaded: n, Total: 100})
		}(int64(i))
	}
	wg.Wait()
	if !m.Complete("job-1", true, "") {
		t.Fatal("expected completion")
	}
}
