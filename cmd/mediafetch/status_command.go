package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"mediafetch/internal/api"
	"mediafetch/internal/ipc"
	"mediafetch/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, dialErr := ctx.dialClient()
			if dialErr != nil {
				// Daemon down: report local checks so the user can see why.
				checks := preflight.Run(cmd.Context(), ctx.configValue(), nil)
				if asJSON {
					return writeJSON(cmd, api.Health{Healthy: preflight.Healthy(checks), Checks: checks})
				}
				printLines(stdout, renderSectionHeader("Daemon", colorize)...)
				printLines(stdout, renderStatusLine("Daemon", statusWarn, "Not running", colorize), "")
				printChecks(stdout, checks, colorize)
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			health, err := client.Health()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Status *ipc.StatusResponse `json:"status"`
					Health *ipc.HealthResponse `json:"health"`
				}{status, health})
			}

			printLines(stdout, renderSectionHeader("Daemon", colorize)...)
			printLines(stdout, renderStatusLine("Daemon", statusOK, "Running (pid "+strconv.Itoa(status.PID)+")", colorize))
			apiDetail := "Disabled"
			apiKind := statusInfo
			if status.APIAddress != "" {
				apiDetail, apiKind = status.APIAddress, statusOK
			}
			printLines(stdout, renderStatusLine("HTTP API", apiKind, apiDetail, colorize))
			if probe := status.Stats.LastProbe; probe != nil {
				printLines(stdout, probeStatusLine(*probe, colorize))
			}
			fmt.Fprintln(stdout)

			printChecks(stdout, health.Checks, colorize)
			fmt.Fprintln(stdout)

			printLines(stdout, renderSectionHeader("Sessions", colorize)...)
			fmt.Fprint(stdout, renderPairs(statsPairs(status.Stats)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printChecks(w io.Writer, checks []preflight.Result, colorize bool) {
	printLines(w, renderSectionHeader("Dependencies", colorize)...)
	for _, check := range checks {
		printLines(w, checkStatusLine(check, colorize))
	}
}

func probeStatusLine(probe api.Probe, colorize bool) string {
	switch {
	case probe.Online:
		return renderStatusLine("Connectivity", statusOK, "Online (checked "+formatRelative(probe.CheckedAt)+")", colorize)
	case probe.Error != "":
		return renderStatusLine("Connectivity", statusError, probe.Error, colorize)
	default:
		return renderStatusLine("Connectivity", statusError, "Offline", colorize)
	}
}

func statsPairs(stats api.Stats) [][2]string {
	s := stats.Sessions
	return [][2]string{
		{"Active sessions", fmt.Sprintf("%s / %s", formatCount(s.ActiveSessions), formatCount(s.MaxConcurrentSessions))},
		{"Known sessions", formatCount(s.TotalSessions)},
		{"Running jobs", formatCount(stats.RunningJobs)},
		{"Completed jobs", formatCount(s.CompletedJobs)},
		{"Failed jobs", formatCount(s.FailedJobs)},
		{"Cancelled downloads", formatCount(stats.Downloads.Cancelled)},
		{"Storage used", formatBytes(stats.StorageBytes)},
	}
}
