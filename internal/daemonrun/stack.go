package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mediafetch/internal/clock"
	"mediafetch/internal/config"
	"mediafetch/internal/daemon"
	"mediafetch/internal/download"
	"mediafetch/internal/engine"
	"mediafetch/internal/events"
	"mediafetch/internal/history"
	"mediafetch/internal/logging"
	"mediafetch/internal/metrics"
	"mediafetch/internal/monitor"
	"mediafetch/internal/notifications"
	"mediafetch/internal/retry"
	"mediafetch/internal/session"
	"mediafetch/internal/workspace"
)

// StackOptions overrides collaborators Build would otherwise construct from
// config.
type StackOptions struct {
	Engine engine.Engine
	Prober monitor.Prober
	Clock  clock.Clock
}

// Stack is the fully wired download pipeline shared by the daemon and the
// one-shot fetch command.
type Stack struct {
	Registry  *session.Registry
	Monitor   *monitor.Monitor
	Downloads *download.Manager
	Workspace *workspace.Workspace
	History   *history.Store
	Metrics   *metrics.Recorder
	Publisher *events.Publisher
	Notifier  notifications.Service
	Clock     clock.Clock

	closers []func() error
}

// Build wires every component named in cfg. Optional sinks that fail to
// connect are logged and skipped; only the archive is fatal.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts StackOptions) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	clk := clock.Or(opts.Clock)

	prober := opts.Prober
	if prober == nil {
		prober = monitor.NewNetworkProber(cfg.Monitor.ProbeHost, cfg.Monitor.ProbeURL, cfg.ProbeTimeout())
	}
	mon := monitor.New(monitor.Config{
		Policy: retry.Policy{
			MaxRetries:        cfg.Downloads.MaxRetries,
			BaseDelay:         cfg.RetryDelay(),
			RetryUnclassified: cfg.Downloads.RetryUnclassified,
		},
		NetworkChecks: cfg.Monitor.NetworkChecks,
		ProbeInterval: cfg.ProbeInterval(),
		HistoryLimit:  cfg.Monitor.HistoryLimit,
	}, monitor.WithLogger(logger), monitor.WithProber(prober), monitor.WithClock(clk))

	registry := session.NewRegistry(session.Config{
		MaxConcurrentSessions: cfg.Sessions.MaxConcurrentSessions,
		MaxJobsPerSession:     cfg.Sessions.MaxJobsPerSession,
		SessionTTL:            cfg.SessionTTL(),
		BaseDir:               cfg.Paths.DownloadDir,
	}, session.WithLogger(logger), session.WithClock(clk))

	ws := workspace.New(cfg.Paths.DownloadDir, logger)

	eng := opts.Engine
	if eng == nil {
		eng = engine.NewYTDLP(engine.Options{
			Binary:           cfg.Downloads.YtdlpBinary,
			AudioFormat:      cfg.Downloads.AudioFormat,
			VideoFormat:      cfg.Downloads.VideoFormat,
			ProgressInterval: cfg.ProgressInterval(),
			Logger:           logger,
		})
	}

	manager := download.NewManager(registry, mon, eng, ws,
		download.WithWorkers(cfg.Downloads.Workers),
		download.WithLogger(logger),
		download.WithClock(clk),
	)

	registry.AddExpireHook(manager.ForgetSessions)
	if cfg.Sessions.RemoveExpiredFiles {
		registry.AddExpireHook(ws.RemoveSessions)
	}

	stack := &Stack{
		Registry:  registry,
		Monitor:   mon,
		Downloads: manager,
		Workspace: ws,
		Notifier:  notifications.NewService(cfg),
		Clock:     clk,
	}
	stack.closers = append(stack.closers, func() error {
		manager.Close()
		return nil
	})

	if cfg.Metrics.Enabled {
		stack.Metrics = metrics.NewRecorder()
		mon.AddListener(stack.Metrics)
	}

	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("open history archive: %w", err)
		}
		stack.History = store
		stack.closers = append(stack.closers, store.Close)
		mon.AddListener(history.NewRecorder(store))
	}

	if url := strings.TrimSpace(cfg.Events.RedisURL); url != "" {
		publisher, err := events.Connect(ctx, url, cfg.Events.Channel, logger)
		if err != nil {
			logging.WarnWithContext(logger, "event publisher unavailable", "events_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.redis_url and that redis is running"),
				logging.String(logging.FieldImpact, "download events will not be published"),
			)
		} else {
			stack.Publisher = publisher
			stack.closers = append(stack.closers, publisher.Close)
			mon.AddListener(publisher)
		}
	}

	if cfg.Notifications.Failures && strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		mon.AddListener(notifications.NewAlerter(stack.Notifier, cfg.NotificationTimeout()))
	}

	return stack, nil
}

// DaemonDeps exposes the stack in the shape daemon.New expects.
func (s *Stack) DaemonDeps() daemon.Deps {
	return daemon.Deps{
		Registry:  s.Registry,
		Monitor:   s.Monitor,
		Downloads: s.Downloads,
		Workspace: s.Workspace,
		History:   s.History,
		Metrics:   s.Metrics,
		Notifier:  s.Notifier,
		Clock:     s.Clock,
	}
}

// Close cancels downloads and releases every sink, in order.
func (s *Stack) Close() error {
	var errs []error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
