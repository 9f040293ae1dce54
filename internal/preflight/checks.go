package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediafetch/internal/monitor"
)

const connectivityTimeout = 15 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that command resolves on PATH.
func CheckBinary(name, command string, optional bool) Result {
	command = strings.TrimSpace(command)
	result := Result{Name: name, Optional: optional}
	if command == "" {
		result.Detail = "command not configured"
		return result
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", command)
		return result
	}
	result.Passed = true
	result.Detail = resolved
	return result
}

// CheckConnectivity runs one probe against the upstream service.
func CheckConnectivity(ctx context.Context, prober monitor.Prober) Result {
	const name = "Connectivity"
	if prober == nil {
		return Result{Name: name, Detail: "no prober configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, connectivityTimeout)
	defer cancel()

	probe := prober.Probe(checkCtx)
	switch {
	case probe.Online:
		return Result{Name: name, Passed: true, Detail: "upstream reachable"}
	case !probe.DNSOK:
		return Result{Name: name, Detail: detailOr(probe.Error, "DNS lookup failed")}
	default:
		return Result{Name: name, Detail: detailOr(probe.Error, "service unreachable")}
	}
}

func detailOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
