package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"mediafetch/internal/api"
	"mediafetch/internal/config"
	"mediafetch/internal/daemon"
	"mediafetch/internal/download"
	"mediafetch/internal/engine"
	"mediafetch/internal/history"
	"mediafetch/internal/metrics"
	"mediafetch/internal/monitor"
	"mediafetch/internal/session"
	"mediafetch/internal/testsupport"
	"mediafetch/internal/workspace"
)

type fixture struct {
	cfg       *config.Config
	daemon    *daemon.Daemon
	downloads *download.Manager
	server    *httptest.Server
}

func newFixture(t *testing.T, eng engine.Engine, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenHistory(t, cfg)

	registry := session.NewRegistry(session.Config{
		MaxConcurrentSessions: cfg.Sessions.MaxConcurrentSessions,
		MaxJobsPerSession:     cfg.Sessions.MaxJobsPerSession,
		SessionTTL:            cfg.SessionTTL(),
		BaseDir:               cfg.Paths.DownloadDir,
	})
	monCfg := monitor.DefaultConfig()
	monCfg.NetworkChecks = false
	mon := monitor.New(monCfg)
	recorder := metrics.NewRecorder()
	mon.AddListener(recorder)
	mon.AddListener(history.NewRecorder(store))
	ws := workspace.New(cfg.Paths.DownloadDir, nil)
	manager := download.NewManager(registry, mon, eng, ws)

	d, err := daemon.New(cfg, daemon.Deps{
		Registry:  registry,
		Monitor:   mon,
		Downloads: manager,
		Workspace: ws,
		History:   store,
		Metrics:   recorder,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &fixture{cfg: cfg, daemon: d, downloads: manager, server: server}
}

func fileEngine(size int64) engine.Func {
	return func(_ context.Context, req engine.Request, onProgress func(engine.Progress)) (engine.Result, error) {
		path := filepath.Join(req.Destination, "clip.mp3")
		if err := testsupport.WritePattern(path, size); err != nil {
			return engine.Result{}, err
		}
		onProgress(engine.Progress{Downloaded: size, Total: size})
		return engine.Result{Success: true, BytesTransferred: size, OutputPath: path, Title: "clip"}, nil
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, fileEngine(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.daemon.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondDaemonCannotTakeLock(t *testing.T) {
	f := newFixture(t, fileEngine(10))
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	other, err := daemon.New(f.cfg, daemon.Deps{
		Registry:  session.NewRegistry(session.DefaultConfig()),
		Monitor:   monitor.New(monitor.DefaultConfig()),
		Downloads: f.downloads,
		Workspace: workspace.New(f.cfg.Paths.DownloadDir, nil),
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestAPISessionAndJobLifecycle(t *testing.T) {
	f := newFixture(t, fileEngine(2048))

	var sess api.Session
	if resp := f.do(t, http.MethodPost, "/api/sessions", nil, &sess); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d", resp.StatusCode)
	}
	if sess.ID == "" || !sess.Active {
		t.Fatalf("unexpected session %+v", sess)
	}

	var job api.Job
	resp := f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/jobs",
		api.SubmitJobRequest{URL: "https://www.youtube.com/watch?v=abc", Category: "audio"}, &job)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	f.downloads.Wait()

	var got api.Job
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/jobs/"+job.ID, nil, &got)
	if got.Status != "completed" || got.Bytes != 2048 {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.Progress == nil || got.Progress.State != "completed" {
		t.Fatalf("expected monitor progress, got %+v", got.Progress)
	}

	var list api.JobListResponse
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/jobs", nil, &list)
	if len(list.Jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(list.Jobs))
	}

	var paths api.Paths
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/jobs/"+job.ID+"/paths", nil, &paths)
	want := filepath.Join(f.cfg.Paths.DownloadDir, sess.ID, job.ID, "video")
	if paths.Paths["video"] != want {
		t.Fatalf("video path = %q, want %q", paths.Paths["video"], want)
	}

	var ctxResp api.SessionContext
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/context", nil, &ctxResp)
	if ctxResp.JobCount != 1 || ctxResp.JobIDs[0] != job.ID {
		t.Fatalf("unexpected context %+v", ctxResp)
	}

	var stats api.Stats
	f.do(t, http.MethodGet, "/api/stats", nil, &stats)
	if stats.Sessions.CompletedJobs != 1 || stats.Downloads.Completed != 1 || stats.StorageBytes != 2048 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var hist api.HistoryResponse
	f.do(t, http.MethodGet, "/api/history?session="+sess.ID, nil, &hist)
	if len(hist.Records) != 1 || !hist.Records[0].Success {
		t.Fatalf("unexpected history %+v", hist)
	}

	if resp := f.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("deactivate status %d", resp.StatusCode)
	}
	var after api.Session
	f.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil, &after)
	if after.Active {
		t.Fatal("expected session inactive after delete")
	}

	var rejected api.ErrorResponse
	resp = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/jobs",
		api.SubmitJobRequest{URL: "https://www.youtube.com/watch?v=def", Category: "audio"}, &rejected)
	if resp.StatusCode != http.StatusConflict || !strings.Contains(rejected.Error, "inactive") {
		t.Fatalf("expected conflict submitting to inactive session, got %d %q", resp.StatusCode, rejected.Error)
	}
	if resp := f.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/context", nil, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for inactive session context, got %d", resp.StatusCode)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	f := newFixture(t, fileEngine(1), testsupport.WithSessionLimits(1, 1))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"non uuid resume", http.MethodPost, "/api/sessions", api.CreateSessionRequest{SessionID: "../etc"}, http.StatusBadRequest},
		{"first session", http.MethodPost, "/api/sessions", nil, http.StatusCreated},
		{"capacity", http.MethodPost, "/api/sessions", nil, http.StatusTooManyRequests},
		{"submit unknown session", http.MethodPost, "/api/sessions/00000000-0000-0000-0000-000000000000/jobs", api.SubmitJobRequest{URL: "https://example.com"}, http.StatusNotFound},
		{"bad json", http.MethodPost, "/api/sessions", map[string]int{"nope": 1}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		resp := f.do(t, tc.method, tc.path, tc.body, nil)
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
	}

	var list api.SessionListResponse
	f.do(t, http.MethodGet, "/api/sessions", nil, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(list.Sessions))
	}
	var job api.ErrorResponse
	resp := f.do(t, http.MethodPost, "/api/sessions/"+list.Sessions[0].ID+"/jobs",
		api.SubmitJobRequest{URL: "https://example.com", Category: "podcast"}, &job)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(job.Error, "podcast") {
		t.Fatalf("expected category validation error, got %d %q", resp.StatusCode, job.Error)
	}
}

func TestCleanupRequiresToken(t *testing.T) {
	f := newFixture(t, fileEngine(1), testsupport.WithAPIToken("secret"))

	if resp := f.do(t, http.MethodPost, "/api/cleanup", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/cleanup", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	defer resp.Body.Close()
	var result api.Cleanup
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || result.ExpiredSessions != 0 {
		t.Fatalf("unexpected cleanup response %d %+v", resp.StatusCode, result)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newFixture(t, fileEngine(1), testsupport.WithStubbedBinaries())

	var health api.Health
	resp := f.do(t, http.MethodGet, "/api/health", nil, &health)
	if resp.StatusCode != http.StatusOK || !health.Healthy {
		t.Fatalf("expected healthy, got %d %+v", resp.StatusCode, health)
	}

	f.do(t, http.MethodPost, "/api/sessions", nil, nil)
	metricsResp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(metricsResp.Body)
	if !strings.Contains(buf.String(), `mediafetch_sessions{state="active"} 1`) {
		t.Fatalf("metrics missing refreshed session gauge:\n%s", buf.String())
	}
}
