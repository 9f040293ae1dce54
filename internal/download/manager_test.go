package download_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"mediafetch/internal/clock"
	"mediafetch/internal/download"
	"mediafetch/internal/engine"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/monitor"
	"mediafetch/internal/retry"
	"mediafetch/internal/services"
	"mediafetch/internal/session"
	"mediafetch/internal/workspace"
)

type harness struct {
	fs       afero.Fs
	clock    *clock.Fake
	registry *session.Registry
	monitor  *monitor.Monitor
	manager  *download.Manager
	session  string
}

func newHarness(t *testing.T, eng engine.Engine, mutate func(*session.Config, *monitor.Config)) *harness {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	sessCfg := session.DefaultConfig()
	sessCfg.BaseDir = "/downloads"
	monCfg := monitor.DefaultConfig()
	monCfg.NetworkChecks = false
	if mutate != nil {
		mutate(&sessCfg, &monCfg)
	}
	fs := afero.NewMemMapFs()
	registry := session.NewRegistry(sessCfg, session.WithClock(fake))
	mon := monitor.New(monCfg, monitor.WithClock(fake))
	ws := workspace.NewWithFS(fs, "/downloads", nil)
	manager := download.NewManager(registry, mon, eng, ws, download.WithClock(fake), download.WithWorkers(2))
	t.Cleanup(manager.Close)

	id, err := registry.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &harness{fs: fs, clock: fake, registry: registry, monitor: mon, manager: manager, session: id}
}

func writingEngine(fs afero.Fs, size int) engine.Func {
	return func(_ context.Context, req engine.Request, onProgress func(engine.Progress)) (engine.Result, error) {
		onProgress(engine.Progress{Downloaded: int64(size / 2), Total: int64(size), Title: "Song"})
		path := filepath.Join(req.Destination, "Song.mp3")
		if err := afero.WriteFile(fs, path, make([]byte, size), 0o644); err != nil {
			return engine.Result{}, err
		}
		onProgress(engine.Progress{Downloaded: int64(size), Total: int64(size)})
		return engine.Result{Success: true, BytesTransferred: int64(size), OutputPath: path, Title: "Song"}, nil
	}
}

func TestSubmitCompletesJob(t *testing.T) {
	var fs afero.Fs
	h := newHarness(t, engine.Func(func(ctx context.Context, req engine.Request, onProgress func(engine.Progress)) (engine.Result, error) {
		return writingEngine(fs, 1000)(ctx, req, onProgress)
	}), nil)
	fs = h.fs

	job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/watch?v=1", jobpath.CategoryAudio)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != download.StatusPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}
	h.manager.Wait()

	got, ok := h.manager.Job(job.ID)
	if !ok {
		t.Fatal("expected job record")
	}
	if got.Status != download.StatusCompleted || got.Bytes != 1000 || got.Title != "Song" || got.Attempts != 1 {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.OutputDir != jobpath.DerivePath("/downloads", h.session, job.ID, jobpath.CategoryAudio) {
		t.Fatalf("unexpected output dir %q", got.OutputDir)
	}
	s, _ := h.registry.Get(h.session)
	if s.CompletedJobs != 1 || s.ActiveJobs != 0 || s.StorageUsedBytes != 1000 {
		t.Fatalf("unexpected session %+v", s)
	}
	status, ok := h.monitor.Status(job.ID)
	if !ok || !status.Metrics.Success || status.Metrics.DownloadedBytes != 1000 {
		t.Fatalf("unexpected monitor status %+v", status)
	}
}

func TestRetryWaitsThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	h := newHarness(t, engine.Func(func(context.Context, engine.Request, func(engine.Progress)) (engine.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return engine.Result{}, errors.New("ERROR: Connection reset by peer")
		}
		return engine.Result{Success: true, BytesTransferred: 42}, nil
	}), nil)

	job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/v", jobpath.CategoryVideo)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.manager.Wait()

	got, _ := h.manager.Job(job.ID)
	if got.Status != download.StatusCompleted || got.Attempts != 3 {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.Bytes != 42 {
		t.Fatalf("expected engine byte count when directory is empty, got %d", got.Bytes)
	}
	sleeps := h.clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 2500*time.Millisecond || sleeps[1] != 2500*time.Millisecond {
		t.Fatalf("unexpected retry waits %v", sleeps)
	}
	status, _ := h.monitor.Status(job.ID)
	if status.Metrics.RetryCount != 2 || status.Metrics.Category != retry.CategoryDownloadInterruption {
		t.Fatalf("unexpected metrics %+v", status.Metrics)
	}
}

func TestGiveUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t, engine.Func(func(context.Context, engine.Request, func(engine.Progress)) (engine.Result, error) {
		return engine.Result{}, errors.New("getaddrinfo failed")
	}), nil)

	job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/v", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.manager.Wait()

	got, _ := h.manager.Job(job.ID)
	if got.Status != download.StatusFailed || got.Error == "" || got.Attempts != retry.DefaultMaxRetries {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.Category != jobpath.CategoryAudio {
		t.Fatalf("expected default audio category, got %s", got.Category)
	}
	if sleeps := h.clock.Sleeps(); len(sleeps) != retry.DefaultMaxRetries-1 || sleeps[0] != 10*time.Second {
		t.Fatalf("unexpected waits %v", sleeps)
	}
	s, _ := h.registry.Get(h.session)
	if s.FailedJobs != 1 || s.ActiveJobs != 0 {
		t.Fatalf("unexpected session %+v", s)
	}
	status, _ := h.monitor.Status(job.ID)
	if status.Metrics.Success || status.Metrics.State != monitor.StateFailed {
		t.Fatalf("unexpected metrics %+v", status.Metrics)
	}
}

func blockingEngine(release <-chan struct{}) engine.Func {
	return func(ctx context.Context, _ engine.Request, _ func(engine.Progress)) (engine.Result, error) {
		select {
		case <-release:
			return engine.Result{Success: true}, nil
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
}

func TestSubmitRejectsDuplicatesAndOverCapacity(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, blockingEngine(release), func(s *session.Config, _ *monitor.Config) {
		s.MaxJobsPerSession = 1
	})

	if _, err := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := h.manager.Submit(context.Background(), h.session, "https://example.com/b", jobpath.CategoryAudio); !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
	close(release)
	h.manager.Wait()

	if _, err := h.manager.Submit(context.Background(), h.session, "https://example.com/b", jobpath.CategoryAudio); err != nil {
		t.Fatalf("expected slot after completion, got %v", err)
	}
	h.manager.Wait()
}

func TestCancelStopsJob(t *testing.T) {
	h := newHarness(t, blockingEngine(make(chan struct{})), nil)
	job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, _ := h.manager.Job(job.ID); got.Status == download.StatusDownloading {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(time.Millisecond)
	}
	if !h.manager.Cancel(job.ID) {
		t.Fatal("expected cancel to succeed")
	}
	h.manager.Wait()

	got, _ := h.manager.Job(job.ID)
	if got.Status != download.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", got)
	}
	if h.manager.Cancel(job.ID) {
		t.Fatal("expected second cancel to fail")
	}
	status, _ := h.monitor.Status(job.ID)
	if status.Metrics.State != monitor.StateCancelled {
		t.Fatalf("expected monitor cancelled, got %s", status.Metrics.State)
	}
	s, _ := h.registry.Get(h.session)
	if s.ActiveJobs != 0 || s.FailedJobs != 1 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestOfflineProbeFailsJob(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	registry := session.NewRegistry(session.DefaultConfig(), session.WithClock(fake))
	mon := monitor.New(monitor.DefaultConfig(), monitor.WithClock(fake), monitor.WithProber(monitor.ProberFunc(func(context.Context) monitor.ProbeResult {
		return monitor.ProbeResult{Error: "DNS resolution failed"}
	})))
	called := false
	eng := engine.Func(func(context.Context, engine.Request, func(engine.Progress)) (engine.Result, error) {
		called = true
		return engine.Result{}, nil
	})
	manager := download.NewManager(registry, mon, eng, workspace.NewWithFS(afero.NewMemMapFs(), "/d", nil), download.WithClock(fake))
	defer manager.Close()

	id, _ := registry.Create("")
	job, err := manager.Submit(context.Background(), id, "https://example.com/a", jobpath.CategoryAudio)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	manager.Wait()
	got, _ := manager.Job(job.ID)
	if got.Status != download.StatusFailed || called {
		t.Fatalf("expected failure without engine call, got %+v called=%v", got, called)
	}
	if s, _ := registry.Get(id); s.FailedJobs != 1 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, blockingEngine(nil), nil)
	tests := []struct {
		name     string
		session  string
		url      string
		category jobpath.Category
		want     error
	}{
		{"empty url", h.session, "", jobpath.CategoryAudio, services.ErrValidation},
		{"relative url", h.session, "/watch?v=1", jobpath.CategoryAudio, services.ErrValidation},
		{"ftp url", h.session, "ftp://example.com/a", jobpath.CategoryAudio, services.ErrValidation},
		{"bad category", h.session, "https://example.com/a", jobpath.Category("podcast"), services.ErrValidation},
		{"unknown session", "missing", "https://example.com/a", jobpath.CategoryAudio, services.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.manager.Submit(context.Background(), tt.session, tt.url, tt.category); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestForgetSessionsDropsFinishedJobs(t *testing.T) {
	h := newHarness(t, engine.Func(func(context.Context, engine.Request, func(engine.Progress)) (engine.Result, error) {
		return engine.Result{Success: true, BytesTransferred: 1}, nil
	}), nil)
	job, _ := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio)
	h.manager.Wait()

	h.manager.ForgetSessions([]string{h.session})
	if _, ok := h.manager.Job(job.ID); ok {
		t.Fatal("expected job forgotten")
	}
	if jobs := h.manager.Jobs(h.session); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func waitForStatus(t *testing.T, m *download.Manager, jobID string, done func(download.Status) bool) download.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := m.Job(jobID); ok && done(job.Status) {
			return job
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not reach the expected status", jobID)
	return download.Job{}
}

func TestSubmitToInactiveSessionIsInvalidState(t *testing.T) {
	h := newHarness(t, blockingEngine(make(chan struct{})), nil)
	h.registry.Deactivate(h.session)

	_, err := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid state for inactive session, got %v", err)
	}
	_, err = h.manager.Submit(context.Background(), "00000000-0000-0000-0000-000000000000", "https://example.com/a", jobpath.CategoryAudio)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestResubmitAfterFinishIsNotCancelled(t *testing.T) {
	h := newHarness(t, engine.Func(func(context.Context, engine.Request, func(engine.Progress)) (engine.Result, error) {
		return engine.Result{Success: true, BytesTransferred: 1}, nil
	}), func(c *session.Config, _ *monitor.Config) { c.MaxJobsPerSession = 4 })

	for i := 0; i < 200; i++ {
		job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/again", jobpath.CategoryAudio)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		got := waitForStatus(t, h.manager, job.ID, download.Status.Finished)
		if got.Status != download.StatusCompleted {
			t.Fatalf("run %d ended %s (%s)", i, got.Status, got.Error)
		}
	}
	h.manager.Wait()
}

func TestForgetSessionsDropsRunningJobsOnceFinished(t *testing.T) {
	h := newHarness(t, blockingEngine(make(chan struct{})), nil)
	job, err := h.manager.Submit(context.Background(), h.session, "https://example.com/a", jobpath.CategoryAudio)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, h.manager, job.ID, func(s download.Status) bool { return s == download.StatusDownloading })

	h.manager.ForgetSessions([]string{h.session})
	h.manager.Wait()
	if _, ok := h.manager.Job(job.ID); ok {
		t.Fatal("expected cancelled job of a removed session to be dropped")
	}
	if running := h.manager.Running(); running != 0 {
		t.Fatalf("expected nothing running, got %d", running)
	}
}
