// Package delta compares two analyses of the same company and scores the
// narrative shift between them.
package delta

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// Causes returned by Compare, wrapped in a *common.Error
var (
	ErrReportNotFound   = errors.New("report not found")
	ErrDifferentCompany = errors.New("reports belong to different companies")
	ErrMissingAnalysis  = errors.New("report has no analysis")
	ErrOutOfOrder       = errors.New("comparison report was filed before the base report")
	ErrSameReport       = errors.New("a report cannot be compared with itself")
)

// Service implements the delta comparator
type Service struct {
	storage    interfaces.StorageManager
	events     interfaces.EventService
	thresholds Thresholds
	logger     arbor.ILogger
}

// NewService creates the delta comparator. events may be nil.
func NewService(storage interfaces.StorageManager, events interfaces.EventService, alerts common.AlertsConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		events:     events,
		thresholds: ThresholdsFrom(alerts),
		logger:     logger,
	}
}

// Compare builds the delta from base (earlier) to comparison (later) and
// stores it, refreshing any existing delta for the same analysis pair.
func (s *Service) Compare(ctx context.Context, baseReportID, comparisonReportID string) (*models.NarrativeDelta, error) {
	const op = "delta.Compare"

	if baseReportID == comparisonReportID {
		return nil, &common.Error{Kind: common.KindValidation, Op: op, Msg: baseReportID, Err: ErrSameReport}
	}

	base, err := s.loadReport(ctx, op, baseReportID)
	if err != nil {
		return nil, err
	}
	comparison, err := s.loadReport(ctx, op, comparisonReportID)
	if err != nil {
		return nil, err
	}

	if base.CompanyID != comparison.CompanyID {
		return nil, &common.Error{Kind: common.KindValidation, Op: op,
			Msg: base.CompanyID + " vs " + comparison.CompanyID, Err: ErrDifferentCompany}
	}
	if comparison.FilingDate.Before(base.FilingDate) {
		return nil, &common.Error{Kind: common.KindValidation, Op: op,
			Msg: comparison.FilingDate.Format("2006-01-02") + " < " + base.FilingDate.Format("2006-01-02"), Err: ErrOutOfOrder}
	}

	baseAnalysis, err := s.loadAnalysis(ctx, op, base.ID)
	if err != nil {
		return nil, err
	}
	comparisonAnalysis, err := s.loadAnalysis(ctx, op, comparison.ID)
	if err != nil {
		return nil, err
	}

	delta := Build(base, comparison, baseAnalysis, comparisonAnalysis)

	stored, created, err := s.storage.DeltaStorage().FindOrCreateDelta(ctx, delta)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("delta_id", stored.ID).
		Str("company_id", stored.CompanyID).
		Float64("overall_delta", stored.OverallSentimentDelta).
		Str("significance", string(stored.ShiftSignificance)).
		Bool("created", created).
		Msg("Narrative delta computed")

	if s.events != nil && ShouldTriggerAlert(stored, s.thresholds) {
		payload := map[string]interface{}{
			"delta_id":     stored.ID,
			"company_id":   stored.CompanyID,
			"significance": string(stored.ShiftSignificance),
			"messages":     AlertMessages(stored),
		}
		if shift := SentimentShiftAlert(stored, "", s.thresholds.SentimentChange*100); shift != nil {
			payload["sentiment_shift"] = shift
		}
		if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventDeltaAlert, Payload: payload}); err != nil {
			s.logger.Warn().Err(err).Str("delta_id", stored.ID).Msg("Failed to publish delta alert")
		}
	}

	return stored, nil
}

func (s *Service) loadReport(ctx context.Context, op, id string) (*models.FinancialReport, error) {
	report, err := s.storage.ReportStorage().GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, &common.Error{Kind: common.KindNotFound, Op: op, Msg: id, Err: ErrReportNotFound}
		}
		return nil, err
	}
	return report, nil
}

func (s *Service) loadAnalysis(ctx context.Context, op, reportID string) (*models.NarrativeAnalysis, error) {
	analysis, err := s.storage.AnalysisStorage().GetAnalysisByReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, &common.Error{Kind: common.KindNotFound, Op: op, Msg: reportID, Err: ErrMissingAnalysis}
		}
		return nil, err
	}
	return analysis, nil
}

// Build computes an unsaved delta. Deltas are comparison minus base.
func Build(base, comparison *models.FinancialReport, baseAnalysis, comparisonAnalysis *models.NarrativeAnalysis) *models.NarrativeDelta {
	added, removed := themeChanges(baseAnalysis.KeyThemes, comparisonAnalysis.KeyThemes)

	now := time.Now()
	delta := &models.NarrativeDelta{
		ID:                    common.NewDeltaID(),
		CompanyID:             base.CompanyID,
		BaseReportID:          base.ID,
		ComparisonReportID:    comparison.ID,
		BaseAnalysisID:        baseAnalysis.ID,
		ComparisonAnalysisID:  comparisonAnalysis.ID,
		OptimismDelta:         comparisonAnalysis.OptimismScore - baseAnalysis.OptimismScore,
		RiskDelta:             comparisonAnalysis.RiskScore - baseAnalysis.RiskScore,
		UncertaintyDelta:      comparisonAnalysis.UncertaintyScore - baseAnalysis.UncertaintyScore,
		OverallSentimentDelta: comparisonAnalysis.OverallSentiment() - baseAnalysis.OverallSentiment(),
		ThemesAdded:           added,
		ThemesRemoved:         removed,
		ThemesEvolved:         []string{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	delta.ShiftSignificance = Significance(delta.OverallSentimentDelta, delta.TotalThemeChanges())
	return delta
}

// themeChanges trims and deduplicates both theme lists and returns the sorted
// added and removed sets
func themeChanges(base, comparison []string) (added, removed []string) {
	baseSet := themeSet(base)
	compSet := themeSet(comparison)

	added = []string{}
	for theme := range compSet {
		if _, ok := baseSet[theme]; !ok {
			added = append(added, theme)
		}
	}
	removed = []string{}
	for theme := range baseSet {
		if _, ok := compSet[theme]; !ok {
			removed = append(removed, theme)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func themeSet(themes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(themes))
	for _, t := range themes {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// SignificanceScore weights the overall change twice as heavily as theme churn.
// The result lies in [0, 1].
func SignificanceScore(overallDelta float64, themeChanges int) float64 {
	themeWeight := math.Min(float64(themeChanges)/10, 1)
	return (2*math.Abs(overallDelta) + themeWeight) / 3
}

// Significance classifies a shift
func Significance(overallDelta float64, themeChanges int) models.ShiftSignificance {
	score := SignificanceScore(overallDelta, themeChanges)
	switch {
	case score >= 0.8:
		return models.SignificanceCritical
	case score >= 0.5:
		return models.SignificanceMajor
	case score >= 0.2:
		return models.SignificanceModerate
	}
	return models.SignificanceMinor
}
