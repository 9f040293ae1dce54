package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"mediafetch/internal/daemon"
	"mediafetch/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status()
	return nil
}

func (s *service) Stats(_ StatsRequest, resp *StatsResponse) error {
	*resp = s.daemon.Stats()
	return nil
}

func (s *service) Sessions(req SessionsRequest, resp *SessionsResponse) error {
	resp.Sessions = s.daemon.Sessions(req.All)
	return nil
}

func (s *service) Deactivate(req DeactivateRequest, resp *DeactivateResponse) error {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		return errors.New("session id is required")
	}
	if err := s.daemon.Deactivate(id); err != nil {
		return err
	}
	resp.Deactivated = true
	s.logger.Info("session deactivated via IPC",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "ipc_deactivate"))
	return nil
}

func (s *service) Cleanup(_ CleanupRequest, resp *CleanupResponse) error {
	*resp = s.daemon.Sweep(s.ctx)
	s.logger.Info("cleanup requested via IPC",
		logging.String(logging.FieldEventType, "ipc_cleanup"),
		logging.Int("expired_sessions", resp.ExpiredSessions))
	return nil
}

func (s *service) Jobs(req JobsRequest, resp *JobsResponse) error {
	jobs, err := s.daemon.Jobs(strings.TrimSpace(req.SessionID))
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	records, err := s.daemon.History(s.ctx, strings.TrimSpace(req.SessionID), req.Limit)
	if err != nil {
		return err
	}
	resp.Records = records
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	*resp = s.daemon.Health(s.ctx)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
