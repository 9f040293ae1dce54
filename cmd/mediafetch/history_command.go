package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediafetch/internal/api"
	"mediafetch/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var sessionID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(strings.TrimSpace(sessionID), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Records) == 0 {
					fmt.Fprintln(out, "No finished downloads")
					return nil
				}
				fmt.Fprint(out, renderHistoryTable(resp.Records))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	cmd.Flags().StringVar(&sessionID, "session", "", "Only show downloads from this session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderHistoryTable(records []api.HistoryEntry) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			formatRelative(r.FinishedAt),
			shortID(r.SessionID),
			r.State,
			formatBytes(r.Bytes),
			formatSeconds(r.DurationSeconds),
			fmt.Sprintf("%d", r.RetryCount),
			r.Category,
			truncate(r.URL, 56),
		})
	}
	return renderTable(
		[]string{"Finished", "Session", "State", "Size", "Duration", "Retries", "Category", "URL"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}
