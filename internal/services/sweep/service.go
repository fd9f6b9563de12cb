// Package sweep returns reports stranded in PROCESSING by a crashed run to
// PENDING so they can be processed again.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// Result summarizes one sweep
type Result struct {
	Cutoff   time.Time `json:"cutoff"`
	Found    int       `json:"found"`
	Reset    []string  `json:"reset"`
	Skipped  []string  `json:"skipped,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Duration float64   `json:"duration_seconds"`
}

// Service resets stuck reports
type Service struct {
	storage   interfaces.StorageManager
	threshold time.Duration
	now       func() time.Time
	logger    arbor.ILogger
}

// NewService creates the sweep service. The default age comes from
// sweep.stuck_threshold.
func NewService(storage interfaces.StorageManager, config common.SweepConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		threshold: common.ParseDuration(config.StuckThreshold, time.Hour),
		now:       time.Now,
		logger:    logger,
	}
}

// Threshold returns the configured stuck age
func (s *Service) Threshold() time.Duration {
	return s.threshold
}

// ResetStuck moves every PROCESSING report not updated for olderThan back to
// PENDING. A non-positive olderThan uses the configured threshold.
func (s *Service) ResetStuck(ctx context.Context, olderThan time.Duration) (*Result, error) {
	if olderThan <= 0 {
		olderThan = s.threshold
	}
	start := time.Now()
	result := &Result{Cutoff: s.now().Add(-olderThan), Reset: []string{}}

	stuck, err := s.storage.ReportStorage().FindStuckReports(ctx, result.Cutoff)
	if err != nil {
		return nil, err
	}
	result.Found = len(stuck)

	for _, report := range stuck {
		// Rechecked in the transaction: the report may have finished since the scan
		if _, err := s.storage.TransactionStorage().ResetStuckReport(ctx, report.ID, result.Cutoff); err != nil {
			if errors.Is(err, common.ErrConflict) {
				result.Skipped = append(result.Skipped, report.ID)
				continue
			}
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Reset = append(result.Reset, report.ID)
		s.logger.Warn().
			Str("report_id", report.ID).
			Str("claimed_by", report.ClaimedBy).
			Str("updated_at", report.UpdatedAt.Format(time.RFC3339)).
			Msg("Stuck report reset to pending")
	}

	result.Duration = time.Since(start).Seconds()
	s.logger.Info().
		Dur("older_than", olderThan).
		Int("found", result.Found).
		Int("reset", len(result.Reset)).
		Int("skipped", len(result.Skipped)).
		Int("errors", len(result.Errors)).
		Msg("Stuck report sweep completed")
	return result, nil
}
