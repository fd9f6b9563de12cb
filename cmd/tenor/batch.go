package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch REPORT_ID...",
	Short: "Submit a batch and run it to completion",
	Long: `Claims the given reports as one batch, enqueues it, and drains the queue in this
process. Exits with status 4 unless every member succeeded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var (
	batchUserID       string
	batchTier         string
	batchForce        bool
	batchNoEmbeddings bool
)

func init() {
	batchCmd.Flags().StringVar(&batchUserID, "user", "cli", "Submitting user ID")
	batchCmd.Flags().StringVar(&batchTier, "tier", string(models.TierEnterprise), "Subscription tier: basic, pro or enterprise")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Reprocess completed reports")
	batchCmd.Flags().BoolVar(&batchNoEmbeddings, "no-embeddings", false, "Skip section embeddings")
}

func runBatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		job, err := a.BatchService.Submit(ctx, batch.Request{
			UserID:            batchUserID,
			Tier:              models.SubscriptionTier(batchTier),
			ReportIDs:         args,
			IncludeEmbeddings: config.Processing.IncludeEmbeddings && !batchNoEmbeddings,
			Force:             batchForce,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "batch %s submitted with %d report(s)\n", job.ID, job.TotalReports)

		// Drain the queue here; earlier batches left by a stopped server run too
		failures := 0
		for {
			err := a.WorkerPool.ProcessNext(ctx)
			if errors.Is(err, models.ErrNoMessage) {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				failures = 0
				continue
			}
			// Task failures are recorded on the batch; only repeated
			// queue errors end the drain
			logger.Warn().Err(err).Msg("Queue task failed")
			if failures++; failures >= 3 {
				break
			}
		}

		job, err = a.BatchService.Get(ctx, job.ID)
		if err != nil {
			return err
		}
		for _, r := range job.Results {
			line := fmt.Sprintf("%-8s %s", strings.ToUpper(r.Status), r.ReportID)
			if len(r.Errors) > 0 {
				line += " " + strings.Join(r.Errors, "; ")
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintf(out, "batch %s %s: %d succeeded, %d failed\n",
			job.ID, job.Status, job.SuccessfulReports, job.FailedReports)

		if job.Status != models.BatchCompleted {
			return &exitCodeError{code: exitReportsFailed, msg: fmt.Sprintf("batch %s finished %s", job.ID, job.Status)}
		}
		return nil
	})
}
