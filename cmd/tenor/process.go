package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/processor"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the analysis pipeline over stored reports",
	Long: `Processes reports synchronously, one at a time in filing-date order. A failing
report does not stop the run. Exits with status 4 when any report failed.`,
	RunE: runProcess,
}

var (
	processStatus       string
	processLimit        int
	processCompanyID    string
	processReportIDs    []string
	processForce        bool
	processNoEmbeddings bool
	processWatch        bool
	processInterval     time.Duration
)

func init() {
	processCmd.Flags().StringVar(&processStatus, "status", "pending", "Reports to select: pending, failed or all (pending and failed)")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Maximum reports per run (0 = no limit)")
	processCmd.Flags().StringVar(&processCompanyID, "company-id", "", "Only process reports of this company")
	processCmd.Flags().StringArrayVar(&processReportIDs, "report-id", nil, "Process this report regardless of status (repeatable)")
	processCmd.Flags().BoolVar(&processForce, "force", false, "Reprocess completed reports, replacing their analysis")
	processCmd.Flags().BoolVar(&processNoEmbeddings, "no-embeddings", false, "Skip section embeddings")
	processCmd.Flags().BoolVar(&processWatch, "watch", false, "Keep polling for new reports until interrupted")
	processCmd.Flags().DurationVar(&processInterval, "interval", 15*time.Second, "Polling interval in watch mode")
}

// statusFilter maps the --status flag to report states
func statusFilter(status string) ([]models.ProcessingStatus, error) {
	switch strings.ToLower(status) {
	case "pending":
		return []models.ProcessingStatus{models.StatusPending}, nil
	case "failed":
		return []models.ProcessingStatus{models.StatusFailed}, nil
	case "all":
		return []models.ProcessingStatus{models.StatusPending, models.StatusFailed}, nil
	}
	return nil, fmt.Errorf("invalid --status %q: must be pending, failed or all", status)
}

func buildFilter() (*interfaces.ReportFilter, error) {
	filter := &interfaces.ReportFilter{
		CompanyID: processCompanyID,
		Limit:     processLimit,
	}
	if len(processReportIDs) > 0 {
		filter.IDs = processReportIDs
		return filter, nil
	}
	statuses, err := statusFilter(processStatus)
	if err != nil {
		return nil, err
	}
	if processForce {
		statuses = append(statuses, models.StatusCompleted)
	}
	filter.Statuses = statuses
	return filter, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	filter, err := buildFilter()
	if err != nil {
		return err
	}
	if processWatch && processInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	opts := interfaces.ProcessOptions{
		IncludeEmbeddings: config.Processing.IncludeEmbeddings && !processNoEmbeddings,
		ForceReprocess:    processForce,
	}
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		if !processWatch {
			stats, err := runOnce(ctx, a, filter, opts, out)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return &exitCodeError{code: exitReportsFailed, msg: fmt.Sprintf("%d report(s) failed", stats.Failed)}
			}
			return nil
		}

		logger.Info().Dur("interval", processInterval).Msg("Watching for reports")
		ticker := time.NewTicker(processInterval)
		defer ticker.Stop()
		for {
			if _, err := runOnce(ctx, a, filter, opts, out); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Processing run failed")
			}
			select {
			case <-ctx.Done():
				logger.Info().Msg("Watch stopped")
				return nil
			case <-ticker.C:
			}
		}
	})
}

func runOnce(ctx context.Context, a *app.App, filter *interfaces.ReportFilter, opts interfaces.ProcessOptions, out io.Writer) (*processor.RunStats, error) {
	stats, err := a.ProcessorService.ProcessReports(ctx, filter, opts, func(r *models.ProcessingResult) {
		printResult(out, r)
	})
	if err != nil {
		if stats == nil {
			return nil, err
		}
		// Interrupted: report what completed
		logger.Warn().Err(err).Msg("Processing run interrupted")
	}
	if stats.Processed > 0 || !processWatch {
		fmt.Fprintf(out, "processed=%d succeeded=%d failed=%d reused=%d duration=%s\n",
			stats.Processed, stats.Succeeded, stats.Failed, stats.Reused, stats.Duration.Round(time.Millisecond))
	}
	return stats, nil
}

func printResult(out io.Writer, r *models.ProcessingResult) {
	switch {
	case r.Reused:
		fmt.Fprintf(out, "REUSED  %s (analysis already current)\n", r.ReportID)
	case r.Success():
		fmt.Fprintf(out, "OK      %s sections=%d embeddings=%d sentiment=%s duration=%s\n",
			r.ReportID, r.Summary.SectionsAnalyzed, r.Summary.EmbeddingsGenerated,
			r.Summary.OverallSentiment, r.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(out, "FAILED  %s %s\n", r.ReportID, strings.Join(r.Errors, "; "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "        warning: %s\n", w)
	}
}
