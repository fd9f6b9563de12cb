package delta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/storage/badger"
)

type fixture struct {
	storage *badger.Manager
	service *Service
	alerts  chan interfaces.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewNoOpLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	f := &fixture{storage: storage, alerts: make(chan interfaces.Event, 10)}
	f.service = NewService(storage, &alertRecorder{ch: f.alerts}, common.AlertsConfig{RiskIncrease: 0.1}, logger)
	return f
}

type alertRecorder struct {
	ch chan interfaces.Event
}

func (a *alertRecorder) Subscribe(interfaces.EventType, interfaces.EventHandler) (func(), error) {
	return func() {}, nil
}
func (a *alertRecorder) Publish(ctx context.Context, e interfaces.Event) error { a.ch <- e; return nil }
func (a *alertRecorder) PublishSync(ctx context.Context, e interfaces.Event) error {
	return a.Publish(ctx, e)
}
func (a *alertRecorder) Close() error { return nil }

// addAnalyzed stores a completed report with one analysis
func (f *fixture) addAnalyzed(t *testing.T, companyID string, filed time.Time, scores models.SentimentScores, themes []string) *models.FinancialReport {
	t.Helper()
	ctx := context.Background()
	report := f.addReport(t, companyID, filed)

	analysis, err := models.NewNarrativeAnalysis(report.ID, scores, themes, nil, nil, "test")
	require.NoError(t, err)
	report, err = f.storage.TransactionStorage().StartProcessing(ctx, report.ID, "", false)
	require.NoError(t, err)
	require.NoError(t, report.Complete(analysis))
	require.NoError(t, f.storage.TransactionStorage().CommitAnalysis(ctx, report, "", analysis, nil))
	return report
}

func (f *fixture) addReport(t *testing.T, companyID string, filed time.Time) *models.FinancialReport {
	t.Helper()
	report, err := models.NewFinancialReport(companyID, models.ReportTypeAnnual, "FY"+filed.Format("2006"), filed,
		"/data/report.txt", models.FileFormatTXT, models.DownloadSourceManual)
	require.NoError(t, err)
	require.NoError(t, f.storage.ReportStorage().SaveReport(context.Background(), report))
	return report
}

func scores(optimism, risk, uncertainty float64) models.SentimentScores {
	return models.SentimentScores{
		OptimismScore: optimism, OptimismConfidence: 0.8,
		RiskScore: risk, RiskConfidence: 0.8,
		UncertaintyScore: uncertainty, UncertaintyConfidence: 0.8,
	}
}

var (
	fy2023 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	fy2024 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestCompare_SentimentDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Overall 0.71 -> 0.54
	base := f.addAnalyzed(t, "cmp_acme", fy2023, scores(0.73, 0.3, 0.3), []string{"growth", " expansion ", "margins"})
	comparison := f.addAnalyzed(t, "cmp_acme", fy2024, scores(0.52, 0.45, 0.45), []string{"margins", "layoffs", "debt", "debt"})

	delta, err := f.service.Compare(ctx, base.ID, comparison.ID)
	require.NoError(t, err)

	assert.InDelta(t, -0.17, delta.OverallSentimentDelta, 1e-9)
	assert.InDelta(t, -0.21, delta.OptimismDelta, 1e-9)
	assert.InDelta(t, 0.15, delta.RiskDelta, 1e-9)
	assert.Equal(t, []string{"debt", "layoffs"}, delta.ThemesAdded)
	assert.Equal(t, []string{"expansion", "growth"}, delta.ThemesRemoved)
	assert.Empty(t, delta.ThemesEvolved)
	assert.GreaterOrEqual(t, delta.ShiftSignificance.Rank(), models.SignificanceModerate.Rank())
	assert.Equal(t, base.ID, delta.BaseReportID)
	assert.Equal(t, "cmp_acme", delta.CompanyID)

	// Risk rose past the configured threshold
	select {
	case e := <-f.alerts:
		assert.Equal(t, interfaces.EventDeltaAlert, e.Type)
		// 17% is below the 20% sentiment threshold
		assert.NotContains(t, e.Payload.(map[string]interface{}), "sentiment_shift")
	case <-time.After(time.Second):
		t.Fatal("expected a delta alert")
	}
}

func TestCompare_LargeShiftCarriesShiftAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := f.addAnalyzed(t, "cmp_acme", fy2023, scores(0.9, 0.1, 0.1), []string{"growth"})
	comparison := f.addAnalyzed(t, "cmp_acme", fy2024, scores(0.3, 0.6, 0.6), []string{"growth"})

	delta, err := f.service.Compare(ctx, base.ID, comparison.ID)
	require.NoError(t, err)

	select {
	case e := <-f.alerts:
		payload := e.Payload.(map[string]interface{})
		shift, ok := payload["sentiment_shift"].(*models.Alert)
		require.True(t, ok, "payload: %v", payload)
		assert.Equal(t, "decrease", shift.Direction)
		assert.Equal(t, delta.ID, shift.DeltaID)
		assert.InDelta(t, 20.0, shift.Threshold, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("expected a delta alert")
	}
}

func TestCompare_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := f.addAnalyzed(t, "cmp_acme", fy2023, scores(0.6, 0.3, 0.3), []string{"growth"})
	comparison := f.addAnalyzed(t, "cmp_acme", fy2024, scores(0.62, 0.3, 0.3), []string{"growth"})

	first, err := f.service.Compare(ctx, base.ID, comparison.ID)
	require.NoError(t, err)
	second, err := f.service.Compare(ctx, base.ID, comparison.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	deltas, err := f.storage.DeltaStorage().ListDeltasByCompany(ctx, "cmp_acme")
	require.NoError(t, err)
	assert.Len(t, deltas, 1)
	assert.Equal(t, models.SignificanceMinor, second.ShiftSignificance)
}

func TestCompare_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := f.addAnalyzed(t, "cmp_acme", fy2023, scores(0.6, 0.3, 0.3), []string{"growth"})
	later := f.addAnalyzed(t, "cmp_acme", fy2024, scores(0.6, 0.3, 0.3), []string{"growth"})
	other := f.addAnalyzed(t, "cmp_other", fy2024, scores(0.6, 0.3, 0.3), []string{"growth"})
	unanalyzed := f.addReport(t, "cmp_acme", fy2024)

	tests := []struct {
		name       string
		base, comp string
		cause      error
		kind       error
	}{
		{"missing report", base.ID, "rpt_missing", ErrReportNotFound, common.ErrNotFound},
		{"different company", base.ID, other.ID, ErrDifferentCompany, common.ErrValidation},
		{"reversed order", later.ID, base.ID, ErrOutOfOrder, common.ErrValidation},
		{"missing analysis", base.ID, unanalyzed.ID, ErrMissingAnalysis, common.ErrNotFound},
		{"same report", base.ID, base.ID, ErrSameReport, common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Compare(ctx, tt.base, tt.comp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestSignificance(t *testing.T) {
	tests := []struct {
		overall float64
		themes  int
		want    models.ShiftSignificance
	}{
		{0, 0, models.SignificanceMinor},
		{0.05, 2, models.SignificanceMinor},
		{-0.17, 3, models.SignificanceModerate},
		{0.6, 5, models.SignificanceMajor},
		{0.9, 10, models.SignificanceCritical},
		{1, 40, models.SignificanceCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Significance(tt.overall, tt.themes), "%v/%d", tt.overall, tt.themes)
	}
	assert.InDelta(t, 1.0, SignificanceScore(1, 100), 1e-9)
}

func TestShouldTriggerAlert(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name  string
		delta models.NarrativeDelta
		want  bool
	}{
		{"quiet", models.NarrativeDelta{OverallSentimentDelta: 0.05, ShiftSignificance: models.SignificanceMinor}, false},
		{"sentiment drop", models.NarrativeDelta{OverallSentimentDelta: -0.25, ShiftSignificance: models.SignificanceModerate}, true},
		{"risk rise", models.NarrativeDelta{RiskDelta: 0.15, ShiftSignificance: models.SignificanceMinor}, true},
		{"risk fall", models.NarrativeDelta{RiskDelta: -0.3, ShiftSignificance: models.SignificanceMinor}, false},
		{"theme churn", models.NarrativeDelta{ThemesAdded: []string{"a", "b", "c"}, ThemesRemoved: []string{"d", "e"}, ShiftSignificance: models.SignificanceMinor}, true},
		{"major shift", models.NarrativeDelta{ShiftSignificance: models.SignificanceMajor}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTriggerAlert(&tt.delta, th))
		})
	}
}

func TestThresholdsFrom(t *testing.T) {
	th := ThresholdsFrom(common.AlertsConfig{SentimentChange: 0.1, MinSignificance: "critical"})
	assert.Equal(t, 0.1, th.SentimentChange)
	assert.Equal(t, 0.15, th.RiskIncrease)
	assert.Equal(t, 5, th.ThemeChanges)
	assert.Equal(t, models.SignificanceCritical, th.MinSignificance)
}

func TestAlertMessagesAndSummary(t *testing.T) {
	d := &models.NarrativeDelta{
		ID:                    "dlt_1",
		CompanyID:             "cmp_acme",
		OverallSentimentDelta: -0.2,
		OptimismDelta:         -0.3,
		RiskDelta:             0.12,
		ThemesAdded:           []string{"debt", "layoffs"},
		ThemesRemoved:         []string{"growth"},
		ThemesEvolved:         []string{},
		ShiftSignificance:     models.SignificanceMajor,
	}

	assert.Equal(t, []string{
		"Overall sentiment decreased by 20.0%",
		"Risk perception increased by 12.00%",
		"3 theme changes detected",
		"major narrative shift identified",
	}, AlertMessages(d))

	s := Summarize(d)
	assert.Equal(t, "negative", s.Overall.Direction)
	assert.Equal(t, "significant", s.Overall.Magnitude)
	assert.InDelta(t, -20.0, s.Overall.Percentage, 1e-9)
	assert.InDelta(t, -30.0, s.Optimism.Percentage, 1e-9)
	assert.Equal(t, 3, s.TotalChanges)
	assert.Equal(t, models.SignificanceModerate, s.Calculated)
}

func TestSentimentShiftAlert(t *testing.T) {
	d := &models.NarrativeDelta{ID: "dlt_1", CompanyID: "cmp_acme", OverallSentimentDelta: -0.17}

	assert.Nil(t, SentimentShiftAlert(d, "usr_1", 20))

	alert := SentimentShiftAlert(d, "usr_1", 15)
	require.NotNil(t, alert)
	assert.Equal(t, "decrease", alert.Direction)
	assert.InDelta(t, 17.0, alert.ActualChange, 1e-9)
	assert.Equal(t, "dlt_1", alert.DeltaID)
	assert.Equal(t, "usr_1", alert.UserID)
}
