package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reset reports stuck in PROCESSING",
	Long: `Returns reports that have been PROCESSING for longer than the threshold to
PENDING so the next run picks them up.`,
	RunE: runSweep,
}

var sweepOlderThan time.Duration

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "Stuck threshold (default: sweep.stuck_threshold from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	if sweepOlderThan < 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		result, err := a.SweepService.ResetStuck(ctx, sweepOlderThan)
		if err != nil {
			return err
		}
		for _, id := range result.Reset {
			fmt.Fprintf(out, "RESET   %s\n", id)
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(out, "ERROR   %s\n", msg)
		}
		fmt.Fprintf(out, "cutoff=%s found=%d reset=%d errors=%d\n",
			result.Cutoff.Format(time.RFC3339), result.Found, len(result.Reset), len(result.Errors))
		return nil
	})
}
