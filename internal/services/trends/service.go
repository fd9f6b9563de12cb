// Package trends builds a company's sentiment timeline across filings.
package trends

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

// DefaultWindow is the rolling average window
const DefaultWindow = 3

// Point is one analyzed filing on the timeline
type Point struct {
	ReportID     string    `json:"report_id"`
	AnalysisID   string    `json:"analysis_id"`
	FiscalPeriod string    `json:"fiscal_period"`
	FilingDate   time.Time `json:"filing_date"`
	Optimism     float64   `json:"optimism"`
	Risk         float64   `json:"risk"`
	Uncertainty  float64   `json:"uncertainty"`
	Overall      float64   `json:"overall"`
}

// Scores holds one value per sentiment dimension
type Scores struct {
	Optimism    float64 `json:"optimism"`
	Risk        float64 `json:"risk"`
	Uncertainty float64 `json:"uncertainty"`
	Overall     float64 `json:"overall"`
}

// PeriodChange is the change from the previous filing. Delta is nil for the
// first filing.
type PeriodChange struct {
	ReportID   string    `json:"report_id"`
	FilingDate time.Time `json:"filing_date"`
	Delta      *Scores   `json:"delta"`
}

// RollingPoint is the mean over the window ending at a filing
type RollingPoint struct {
	ReportID   string    `json:"report_id"`
	FilingDate time.Time `json:"filing_date"`
	Scores
}

// Trends is the full trend payload for a company
type Trends struct {
	CompanyID        string         `json:"company_id"`
	Window           int            `json:"window"`
	Timeline         []Point        `json:"timeline"`
	PeriodOverPeriod []PeriodChange `json:"period_over_period"`
	RollingAverage   []RollingPoint `json:"rolling_average"`
}

// Service computes company trends from stored analyses
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates the trend analyzer
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Timeline returns the company's analyzed filings ordered by filing date
func (s *Service) Timeline(ctx context.Context, companyID string) ([]Point, error) {
	if companyID == "" {
		return nil, common.ValidationError("trends.Timeline", "company id is required")
	}

	reports, err := s.storage.ReportStorage().ListReports(ctx, &interfaces.ReportFilter{
		CompanyID: companyID,
		Statuses:  []models.ProcessingStatus{models.StatusCompleted},
	})
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(reports))
	for _, report := range reports {
		analysis, err := s.storage.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				s.logger.Warn().Str("report_id", report.ID).Msg("Completed report has no analysis, skipped from timeline")
				continue
			}
			return nil, err
		}
		points = append(points, Point{
			ReportID:     report.ID,
			AnalysisID:   analysis.ID,
			FiscalPeriod: report.FiscalPeriod,
			FilingDate:   report.FilingDate,
			Optimism:     analysis.OptimismScore,
			Risk:         analysis.RiskScore,
			Uncertainty:  analysis.UncertaintyScore,
			Overall:      analysis.OverallSentiment(),
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].FilingDate.Before(points[j].FilingDate)
	})
	return points, nil
}

// Build returns the timeline with period-over-period changes and rolling
// averages. A non-positive window uses DefaultWindow.
func (s *Service) Build(ctx context.Context, companyID string, window int) (*Trends, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	points, err := s.Timeline(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &Trends{
		CompanyID:        companyID,
		Window:           window,
		Timeline:         points,
		PeriodOverPeriod: PeriodOverPeriod(points),
		RollingAverage:   RollingAverage(points, window),
	}, nil
}

// PeriodOverPeriod computes the change between consecutive points, rounded to 4 dp
func PeriodOverPeriod(points []Point) []PeriodChange {
	out := make([]PeriodChange, len(points))
	for i, p := range points {
		out[i] = PeriodChange{ReportID: p.ReportID, FilingDate: p.FilingDate}
		if i == 0 {
			continue
		}
		prev := points[i-1]
		out[i].Delta = &Scores{
			Optimism:    round4(p.Optimism - prev.Optimism),
			Risk:        round4(p.Risk - prev.Risk),
			Uncertainty: round4(p.Uncertainty - prev.Uncertainty),
			Overall:     round4(p.Overall - prev.Overall),
		}
	}
	return out
}

// RollingAverage averages each point with up to window-1 predecessors
func RollingAverage(points []Point, window int) []RollingPoint {
	if window <= 0 {
		window = DefaultWindow
	}
	out := make([]RollingPoint, len(points))
	for i, p := range points {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum Scores
		for _, w := range points[start : i+1] {
			sum.Optimism += w.Optimism
			sum.Risk += w.Risk
			sum.Uncertainty += w.Uncertainty
			sum.Overall += w.Overall
		}
		n := float64(i + 1 - start)
		out[i] = RollingPoint{
			ReportID:   p.ReportID,
			FilingDate: p.FilingDate,
			Scores: Scores{
				Optimism:    round4(sum.Optimism / n),
				Risk:        round4(sum.Risk / n),
				Uncertainty: round4(sum.Uncertainty / n),
				Overall:     round4(sum.Overall / n),
			},
		}
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
