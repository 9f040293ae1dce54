package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/retry"
	"mediafetch/internal/services"
)

const (
	DefaultAudioFormat      = "mp3"
	DefaultVideoFormat      = "bestvideo*+bestaudio/best"
	DefaultProgressInterval = 500 * time.Millisecond

	outputTemplate = "%(title)s.%(ext)s"
	stderrTailSize = 2048
)

// Options configures the yt-dlp adapter.
type Options struct {
	Binary           string
	AudioFormat      string
	VideoFormat      string
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// YTDLP fetches media with the yt-dlp executable.
type YTDLP struct {
	binary           string
	audioFormat      string
	videoFormat      string
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewYTDLP constructs the adapter, filling unset options with defaults.
func NewYTDLP(opts Options) *YTDLP {
	y := &YTDLP{
		binary:           strings.TrimSpace(opts.Binary),
		audioFormat:      strings.TrimSpace(opts.AudioFormat),
		videoFormat:      strings.TrimSpace(opts.VideoFormat),
		progressInterval: opts.ProgressInterval,
		logger:           logging.NewComponentLogger(opts.Logger, "ytdlp"),
	}
	if y.audioFormat == "" {
		y.audioFormat = DefaultAudioFormat
	}
	if y.videoFormat == "" {
		y.videoFormat = DefaultVideoFormat
	}
	if y.progressInterval <= 0 {
		y.progressInterval = DefaultProgressInterval
	}
	return y
}

func (y *YTDLP) command(req Request) *ytdlp.Command {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(req.Destination, outputTemplate))
	if y.binary != "" {
		dl.SetExecutable(y.binary)
	}
	switch req.Category {
	case jobpath.CategoryVideo:
		dl.Format(y.videoFormat)
	case jobpath.CategoryTranscripts:
		dl.SkipDownload().WriteSubs().WriteAutoSubs()
	default:
		dl.ExtractAudio().AudioFormat(y.audioFormat)
	}
	return dl
}

// Fetch runs yt-dlp for req, forwarding progress reports to onProgress.
func (y *YTDLP) Fetch(ctx context.Context, req Request, onProgress func(Progress)) (Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "engine", "fetch", "url is required", nil)
	}
	dl := y.command(req)

	var last Progress
	dl.ProgressFunc(y.progressInterval, func(update ytdlp.ProgressUpdate) {
		last = progressFromUpdate(update, time.Now())
		if onProgress != nil {
			onProgress(last)
		}
	})

	started := time.Now()
	y.logger.Debug("starting yt-dlp",
		logging.URL(req.URL),
		logging.String("category", string(req.Category)),
		logging.String("destination", req.Destination),
	)
	res, err := dl.Run(ctx, req.URL)
	result := Result{
		Elapsed:          time.Since(started),
		BytesTransferred: last.Downloaded,
		Title:            last.Title,
	}
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Error = ctxErr.Error()
			return result, ctxErr
		}
		failure := fetchError(err, stderr)
		result.Error = failure.Error()
		return result, failure
	}

	result.Success = true
	if res != nil {
		if info, infoErr := res.GetExtractedInfo(); infoErr == nil && len(info) > 0 {
			if info[0].Filename != nil {
				result.OutputPath = *info[0].Filename
			}
			if result.Title == "" && info[0].Title != nil {
				result.Title = *info[0].Title
			}
		}
	}
	return result, nil
}

// progressFromUpdate converts a yt-dlp progress callback into Progress.
func progressFromUpdate(update ytdlp.ProgressUpdate, now time.Time) Progress {
	p := Progress{
		Downloaded: int64(update.DownloadedBytes),
		Total:      int64(update.TotalBytes),
	}
	if !update.Started.IsZero() {
		if elapsed := now.Sub(update.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(p.Downloaded) / elapsed
		}
	}
	if eta := update.ETA(); eta > 0 {
		p.ETA = eta
	}
	if update.Info != nil && update.Info.Title != nil {
		p.Title = *update.Info.Title
	}
	return p
}

// fetchError tags a yt-dlp failure. Failures whose diagnostics match a
// network pattern become NetworkErrors; the rest are external tool errors.
func fetchError(err error, stderr string) error {
	detail := tail(strings.TrimSpace(stderr), stderrTailSize)
	cause := err
	if detail != "" {
		cause = fmt.Errorf("%w: %s", err, detail)
	}
	if category := retry.ClassifyText(cause.Error()); category != retry.CategoryUnknown {
		return &services.NetworkError{Category: string(category), Err: cause}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrConfiguration, "engine", "fetch", "yt-dlp executable not found", cause)
	}
	return services.Wrap(services.ErrExternalTool, "engine", "fetch", "yt-dlp failed", cause)
}

func tail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[len(text)-limit:]
}
