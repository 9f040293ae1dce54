package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediafetch/internal/api"
	"mediafetch/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List download sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sessions(all)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				fmt.Fprint(out, renderSessionTable(resp.Sessions))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include inactive sessions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.AddCommand(newDeactivateCommand(ctx))
	return cmd
}

func newDeactivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <session-id>",
		Short: "Mark a session inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Deactivate(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s deactivated\n", id)
				return nil
			})
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Expire idle sessions and prune history now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cleanup()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Expired sessions: %d\n", resp.ExpiredSessions)
				fmt.Fprintf(out, "Purged metrics:   %d\n", resp.PurgedMetrics)
				fmt.Fprintf(out, "Pruned records:   %d\n", resp.PrunedRecords)
				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs <session-id>",
		Short: "List a session's downloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderJobTable(resp.Jobs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderSessionTable(sessions []api.Session) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			yesNo(s.Active),
			strconv.Itoa(s.TotalJobs),
			strconv.Itoa(s.ActiveJobs),
			strconv.Itoa(s.CompletedJobs),
			strconv.Itoa(s.FailedJobs),
			formatBytes(s.StorageUsedBytes),
			formatRelative(s.LastActivity),
		})
	}
	return renderTable(
		[]string{"Session", "Active", "Jobs", "Running", "Done", "Failed", "Storage", "Last Activity"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderJobTable(jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		progress, speed := "-", "-"
		if j.Progress != nil {
			progress = formatPercent(j.Progress.Percent)
			speed = formatSpeed(j.Progress.Speed)
		}
		detail := j.Title
		if j.Error != "" {
			detail = firstLine(j.Error)
		}
		rows = append(rows, []string{
			shortID(j.ID),
			j.Category,
			j.Status,
			progress,
			speed,
			formatBytes(j.Bytes),
			strconv.Itoa(j.Attempts),
			truncate(j.URL, 48),
			truncate(detail, 48),
		})
	}
	return renderTable(
		[]string{"Job", "Category", "Status", "Progress", "Speed", "Size", "Attempts", "URL", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return line
}
