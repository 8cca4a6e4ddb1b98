package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-iam/cmd/odyssey/cli"
)

func jobsCommand(e *env) *cobra.Command {
	var jobsCLI *cli.JobsCLI
	root := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive the background job queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			jobsCLI = cli.NewJobsCLI(asynq.RedisClientOpt{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return jobsCLI.Close()
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			return nil
		},
	}

	var size int
	retry := &cobra.Command{
		Use:   "retry",
		Short: "List tasks waiting for another attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := jobsCLI.ListRetry(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s retried=%d/%d next=%s err=%q\n",
					t.ID, t.Type, t.Retried, t.MaxRetry, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"), t.LastErr)
			}
			return nil
		},
	}
	retry.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	var email, message string
	sendTest := &cobra.Command{
		Use:   "send-test-email",
		Short: "Queue an example notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if err := jobsCLI.SendTestEmail(cmd.Context(), email, message); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "queued")
			return nil
		},
	}
	sendTest.Flags().StringVar(&email, "email", "", "recipient address")
	sendTest.Flags().StringVar(&message, "message", "Default message", "message body")

	root.AddCommand(stats, retry, sendTest)
	return root
}
