package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediafetch/internal/retry"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var attempt int
	cmd := &cobra.Command{
		Use:   "classify <error text>",
		Short: "Show how a download failure would be categorized and retried",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("error text is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			policy := retry.Policy{
				MaxRetries:        cfg.Downloads.MaxRetries,
				BaseDelay:         cfg.RetryDelay(),
				RetryUnclassified: cfg.Downloads.RetryUnclassified,
			}

			category := retry.ClassifyText(text)
			decision := policy.Decide(category, attempt, errors.New(text))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Category:  %s\n", category)
			fmt.Fprintf(out, "Retryable: %s\n", yesNo(policy.Retryable(category)))
			fmt.Fprintf(out, "Delay:     %s\n", policy.Delay(category))
			fmt.Fprintf(out, "Decision:  %s\n", decision)
			if decision.GiveUp() && decision.Message != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, decision.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&attempt, "attempt", 1, "Attempt number the failure occurred on")
	return cmd
}
