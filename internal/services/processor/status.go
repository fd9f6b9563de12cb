package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// Status summarizes report counts by lifecycle state
type Status struct {
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
	Embeddings int            `json:"embeddings"`
}

// GetStatus counts reports per status
func (s *Service) GetStatus(ctx context.Context) (*Status, error) {
	reports, err := s.storage.ReportStorage().ListReports(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	status := &Status{
		Total: len(reports),
		Counts: map[string]int{
			string(models.StatusPending):    0,
			string(models.StatusProcessing): 0,
			string(models.StatusCompleted):  0,
			string(models.StatusFailed):     0,
		},
	}
	for _, r := range reports {
		status.Counts[string(r.Status)]++
	}

	if n, err := s.storage.EmbeddingStorage().CountEmbeddings(ctx); err == nil {
		status.Embeddings = n
	}
	return status, nil
}

// RunStats aggregates a multi-report run
type RunStats struct {
	Processed int
	Succeeded int
	Failed    int
	Reused    int
	Duration  time.Duration
}

// ProcessReports processes every report matching filter in filing-date order.
// A failing report does not stop the run.
func (s *Service) ProcessReports(ctx context.Context, filter *interfaces.ReportFilter, opts interfaces.ProcessOptions,
	onResult func(*models.ProcessingResult)) (*RunStats, error) {
	reports, err := s.storage.ReportStorage().ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	start := time.Now()
	stats := &RunStats{}
	for _, report := range reports {
		if ctx.Err() != nil {
			break
		}

		result := s.Process(ctx, report.ID, opts)
		stats.Processed++
		switch {
		case result.Reused:
			stats.Reused++
		case result.Success():
			stats.Succeeded++
		default:
			stats.Failed++
		}
		if onResult != nil {
			onResult(result)
		}
	}
	stats.Duration = time.Since(start)

	s.logger.Info().
		Int("processed", stats.Processed).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("reused", stats.Reused).
		Dur("duration", stats.Duration).
		Msg("Report run completed")

	return stats, ctx.Err()
}
