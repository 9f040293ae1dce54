package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediafetch/internal/api"
	"mediafetch/internal/config"
	"mediafetch/internal/logging"
	"mediafetch/internal/services"
)

const maxBodyBytes = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	mux    *http.ServeMux

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		mux:    http.NewServeMux(),
	}

	srv.mux.HandleFunc("POST /api/sessions", srv.handleCreateSession)
	srv.mux.HandleFunc("GET /api/sessions", srv.handleListSessions)
	srv.mux.HandleFunc("GET /api/sessions/{id}", srv.handleSession)
	srv.mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleDeactivate)
	srv.mux.HandleFunc("POST /api/sessions/{id}/jobs", srv.handleSubmit)
	srv.mux.HandleFunc("GET /api/sessions/{id}/jobs", srv.handleListJobs)
	srv.mux.HandleFunc("GET /api/sessions/{id}/jobs/{jobId}", srv.handleJob)
	srv.mux.HandleFunc("DELETE /api/sessions/{id}/jobs/{jobId}", srv.handleCancelJob)
	srv.mux.HandleFunc("GET /api/sessions/{id}/jobs/{jobId}/paths", srv.handleJobPaths)
	srv.mux.HandleFunc("GET /api/sessions/{id}/context", srv.handleSessionContext)
	srv.mux.HandleFunc("GET /api/stats", srv.handleStats)
	srv.mux.HandleFunc("GET /api/history", srv.handleHistory)
	srv.mux.HandleFunc("POST /api/cleanup", authMiddleware(cfg.Paths.APIToken, srv.handleCleanup))
	srv.mux.HandleFunc("GET /api/health", srv.handleHealth)
	if d.deps.Metrics != nil {
		srv.mux.Handle("GET /metrics", d.deps.Metrics.Handler())
	}
	return srv
}

// Handler exposes the API routes, for embedding and tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.withRequestID(d.api.mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.withRequestID(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.daemon.CreateSession(req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: s.daemon.Sessions(all)})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.daemon.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *apiServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Deactivate(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitJobRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.daemon.Submit(r.Context(), r.PathValue("id"), req.URL, req.Category)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.daemon.Jobs(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.Job(r.PathValue("id"), r.PathValue("jobId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.CancelJob(r.PathValue("id"), r.PathValue("jobId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleJobPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := s.daemon.JobPaths(r.PathValue("id"), r.PathValue("jobId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paths)
}

func (s *apiServer) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.SessionContext(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Stats())
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	records, err := s.daemon.History(r.Context(), strings.TrimSpace(query.Get("session")), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Records: records})
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result := s.daemon.Sweep(r.Context())
	s.logger.Info("cleanup requested via api",
		logging.String(logging.FieldEventType, "api_cleanup"),
		logging.Int("expired_sessions", result.ExpiredSessions),
	)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.daemon.Health(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid JSON body", err)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		attrs := []logging.Attr{logging.Error(err), logging.String("path", r.URL.Path)}
		if id, ok := services.RequestIDFromContext(r.Context()); ok {
			attrs = append(attrs, logging.String(logging.FieldCorrelationID, id))
		}
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed", attrs...)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
