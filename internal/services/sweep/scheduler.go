package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler runs the stuck-report sweep on a cron schedule
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewScheduler creates a new sweep scheduler
func NewScheduler(service *Service, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		service: service,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}
}

// Start begins the scheduled sweep
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every 15 minutes
		schedule = "0 */15 * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("stuck_threshold", s.service.Threshold().String()).
		Msg("Stuck report sweep scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Stuck report sweep scheduler stopped")
}

// RunNow triggers an immediate sweep
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate sweep")
	go s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := s.service.ResetStuck(ctx, 0)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled sweep failed")
		return
	}

	if len(result.Errors) > 0 {
		s.logger.Warn().
			Int("errors", len(result.Errors)).
			Strs("details", result.Errors).
			Msg("Scheduled sweep completed with errors")
	}
}
