package preflight

import (
	"context"

	"mediafetch/internal/config"
	"mediafetch/internal/monitor"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// Run executes every applicable check for cfg. prober may be nil when
// connectivity should not be tested.
func Run(ctx context.Context, cfg *config.Config, prober monitor.Prober) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckBinary("yt-dlp", cfg.Downloads.YtdlpBinary, false),
		CheckBinary("FFmpeg", "ffmpeg", true),
	}

	if cfg.Monitor.NetworkChecks && prober != nil {
		results = append(results, CheckConnectivity(ctx, prober))
	}
	return results
}

// Healthy reports whether every required check passed.
func Healthy(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return false
		}
	}
	return true
}
