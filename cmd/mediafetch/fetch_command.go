package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediafetch/internal/daemonrun"
	"mediafetch/internal/download"
	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/monitor"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var category string
	var quiet bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch <url> [url...]",
		Short: "Download URLs in-process without a running daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := jobpath.ParseCategory(category)
			if err != nil {
				return err
			}

			local := *cfg
			local.Metrics.Enabled = false
			logger, err := logging.New(logging.Options{
				Level:            "warn",
				Format:           cfg.Logging.Format,
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			stack, err := daemonrun.Build(cmd.Context(), &local, logger, ctx.stackOptions)
			if err != nil {
				return err
			}
			defer stack.Close()

			if !quiet && !asJSON {
				stack.Monitor.AddListener(newFetchReporter(cmd.ErrOrStderr()))
			}

			sessionID, err := stack.Registry.Create("")
			if err != nil {
				return err
			}
			defer stack.Registry.Deactivate(sessionID)

			ids := make([]string, 0, len(args))
			for _, raw := range args {
				job, err := stack.Downloads.Submit(cmd.Context(), sessionID, strings.TrimSpace(raw), cat)
				if err != nil {
					return fmt.Errorf("submit %s: %w", raw, err)
				}
				ids = append(ids, job.ID)
			}
			stack.Downloads.Wait()

			jobs := make([]download.Job, 0, len(ids))
			failed := 0
			for _, id := range ids {
				job, ok := stack.Downloads.Job(id)
				if !ok {
					continue
				}
				if job.Status != download.StatusCompleted {
					failed++
				}
				jobs = append(jobs, job)
			}

			if asJSON {
				if err := writeJSON(cmd, jobs); err != nil {
					return err
				}
			} else {
				printFetchResults(cmd.OutOrStdout(), jobs)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(jobs))
			}
			if err := cmd.Context().Err(); err != nil {
				return errors.Join(errors.New("fetch interrupted"), err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(jobpath.CategoryAudio), "Download category (audio, video, transcripts)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func printFetchResults(w io.Writer, jobs []download.Job) {
	for _, job := range jobs {
		switch job.Status {
		case download.StatusCompleted:
			target := job.OutputPath
			if target == "" {
				target = job.OutputDir
			}
			fmt.Fprintf(w, "%s  %s  %s\n", job.URL, formatBytes(job.Bytes), target)
		default:
			fmt.Fprintf(w, "%s  %s\n%s\n", job.URL, job.Status, job.Error)
		}
	}
}

// fetchReporter prints one line per significant monitor event.
type fetchReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFetchReporter(w io.Writer) *fetchReporter {
	return &fetchReporter{w: w}
}

func (r *fetchReporter) HandleEvent(event monitor.Event) error {
	var line string
	switch event.Type {
	case monitor.EventStarted:
		line = "started " + event.URL
	case monitor.EventRetryAttempt:
		if event.Decision != nil {
			line = fmt.Sprintf("%s: %s", event.URL, event.Decision)
		}
	case monitor.EventCompleted:
		size := "-"
		if event.Metrics != nil {
			size = formatBytes(event.Metrics.DownloadedBytes)
		}
		line = fmt.Sprintf("finished %s (%s)", event.URL, size)
	case monitor.EventFailed:
		line = "failed " + event.URL
	}
	if line == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.w, line)
	return err
}
