package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"mediafetch/internal/config"
	"mediafetch/internal/daemon"
	"mediafetch/internal/daemonrun"
	"mediafetch/internal/engine"
	"mediafetch/internal/ipc"
	"mediafetch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	stack      *daemonrun.Stack
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

// fakeEngine writes size bytes for every request.
func fakeEngine(size int) engine.Engine {
	return engine.Func(func(_ context.Context, req engine.Request, onProgress func(engine.Progress)) (engine.Result, error) {
		path := filepath.Join(req.Destination, "media.bin")
		if err := testsupport.WritePattern(path, int64(size)); err != nil {
			return engine.Result{}, err
		}
		if onProgress != nil {
			onProgress(engine.Progress{Downloaded: int64(size), Total: int64(size)})
		}
		return engine.Result{Success: true, BytesTransferred: int64(size), OutputPath: path, Title: "media"}, nil
	})
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	stack, err := daemonrun.Build(context.Background(), cfg, nil, daemonrun.StackOptions{Engine: fakeEngine(256)})
	if err != nil {
		t.Fatalf("daemonrun.Build: %v", err)
	}
	d, err := daemon.New(cfg, stack.DaemonDeps(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.StateDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, nil)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		stack:      stack,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		_ = stack.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWith(t, newRootCommand(), args, socket, configPath)
}

func runCLIWith(t *testing.T, cmd *cobra.Command, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
download_dir = %q
log_dir = %q
state_dir = %q
api_bind = ""

[monitor]
network_checks = false

[history]
path = %q
`,
		cfg.Paths.DownloadDir,
		cfg.Paths.LogDir,
		cfg.Paths.StateDir,
		cfg.History.Path,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
