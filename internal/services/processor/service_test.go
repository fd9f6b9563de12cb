package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/services/extraction"
	"github.com/ternarybob/tenor/internal/storage/badger"
)

const sampleFiling = `Management's Discussion and Analysis
Revenue increased eighteen percent year over year as demand for our industrial products remained strong across every region we serve.

Risk Factors
Rising interest rates and supply chain disruption could reduce margins and delay deliveries to our largest customers next year.
`

type fakeAnalyzer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &models.SentimentResult{
		SentimentScores: models.SentimentScores{
			OptimismScore: 0.7, OptimismConfidence: 0.8,
			RiskScore: 0.3, RiskConfidence: 0.8,
			UncertaintyScore: 0.2, UncertaintyConfidence: 0.7,
		},
		KeyThemes:         []string{"growth", "supply chain"},
		RiskIndicators:    []string{"interest rates"},
		NarrativeSections: map[string]string{"summary": "Strong year", "tone": "confident", "outlook": "positive"},
		Model:             "fake-model",
	}, nil
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Load(ctx context.Context) error { return f.err }
func (f *fakeEmbedder) IsLoaded() bool                 { return f.err == nil }
func (f *fakeEmbedder) Dimension() int                 { return 4 }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) (func(), error) {
	return func() {}, nil
}

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) types() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interfaces.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	storage  *badger.Manager
	analyzer *fakeAnalyzer
	embedder *fakeEmbedder
	events   *recordingEvents
	service  *Service
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewNoOpLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	f := &fixture{
		storage:  storage,
		analyzer: &fakeAnalyzer{},
		embedder: &fakeEmbedder{},
		events:   &recordingEvents{},
		dir:      t.TempDir(),
	}
	config := common.NewDefaultConfig().Processing
	f.service = NewService(storage, extraction.NewService(nil, nil, logger), nil,
		f.analyzer, f.embedder, f.events, config, logger)
	return f
}

func (f *fixture) addReport(t *testing.T, content, fiscalPeriod string) *models.FinancialReport {
	t.Helper()
	path := filepath.Join(f.dir, common.NewReportID()+".txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	report, err := models.NewFinancialReport("cmp_acme", models.ReportTypeAnnual, fiscalPeriod,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), path, models.FileFormatTXT, models.DownloadSourceManual)
	require.NoError(t, err)
	require.NoError(t, f.storage.ReportStorage().SaveReport(context.Background(), report))
	return report
}

func withEmbeddings() interfaces.ProcessOptions {
	return interfaces.ProcessOptions{IncludeEmbeddings: true}
}

func TestProcess_EndToEndTextReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, sampleFiling, "FY2024")

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	require.True(t, result.Success(), "errors: %v", result.Errors)
	assert.Equal(t, models.StatusCompleted, result.FinalStatus)
	assert.Equal(t, []models.ProcessingStep{
		models.StepValidation,
		models.StepTextExtraction,
		models.StepSentimentAnalysis,
		models.StepEmbeddingGeneration,
		models.StepDatabaseStorage,
		models.StepCompleted,
	}, result.CompletedSteps)
	assert.Empty(t, result.Warnings)
	assert.Positive(t, result.Duration)

	// Each section is analyzed exactly once
	require.Equal(t, 1, f.analyzer.calls())
	assert.Equal(t, 1, strings.Count(f.analyzer.texts[0], "Revenue increased"))
	assert.Equal(t, 1, strings.Count(f.analyzer.texts[0], "Rising interest rates"))

	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, int64(len(sampleFiling)), stored.FileSize)

	analysis, err := f.storage.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Analysis.ID, analysis.ID)
	assert.InDelta(t, 0.7, analysis.OptimismScore, 1e-9)
	assert.Equal(t, "tenor-sentiment-v1", analysis.ModelVersion)
	assert.Equal(t, "confident", analysis.NarrativeSections["tone"])
	assert.Contains(t, analysis.NarrativeSections, extraction.SectionMDA)
	require.NotNil(t, analysis.FinancialMetrics)
	assert.False(t, analysis.FinancialMetrics.HasFinancialData)

	embeddings, err := f.storage.EmbeddingStorage().GetEmbeddings(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Len(t, embeddings, 2)

	assert.Equal(t, "positive", result.Summary.OverallSentiment)
	assert.Equal(t, 2, result.Summary.SectionsAnalyzed)
	assert.Equal(t, []interfaces.EventType{interfaces.EventReportCompleted}, f.events.types())
}

func TestProcess_IdempotentUnlessForced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, sampleFiling, "FY2024")

	first := f.service.Process(ctx, report.ID, withEmbeddings())
	require.True(t, first.Success())

	again := f.service.Process(ctx, report.ID, withEmbeddings())
	assert.True(t, again.Success())
	assert.True(t, again.Reused)
	assert.Equal(t, first.Analysis.ID, again.Analysis.ID)
	require.Len(t, again.Warnings, 1)
	assert.Contains(t, again.Warnings[0], "already processed")
	assert.Equal(t, 1, f.analyzer.calls())

	forced := f.service.Process(ctx, report.ID, interfaces.ProcessOptions{ForceReprocess: true, IncludeEmbeddings: true})
	require.True(t, forced.Success(), "errors: %v", forced.Errors)
	assert.False(t, forced.Reused)
	assert.NotEqual(t, first.Analysis.ID, forced.Analysis.ID)
	assert.Equal(t, 2, f.analyzer.calls())

	// The prior analysis and its embeddings were replaced
	_, err := f.storage.AnalysisStorage().GetAnalysis(ctx, first.Analysis.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	old, err := f.storage.EmbeddingStorage().GetEmbeddings(ctx, first.Analysis.ID)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestProcess_ContractViolationPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.analyzer.err = common.ModelInferenceError("sentiment.Analyze", errors.New("missing required field risk_score"), "invalid model response")
	report := f.addReport(t, sampleFiling, "FY2024")

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	assert.False(t, result.Success())
	assert.Equal(t, models.StatusFailed, result.FinalStatus)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "risk_score")
	assert.Nil(t, result.Analysis)

	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ProcessingError, "risk_score")
	assert.Nil(t, stored.ProcessedAt)

	_, err = f.storage.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	n, err := f.storage.EmbeddingStorage().CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []interfaces.EventType{interfaces.EventReportFailed}, f.events.types())
}

func TestProcess_MissingFileFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, sampleFiling, "FY2024")
	require.NoError(t, os.Remove(report.FilePath))

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	assert.False(t, result.Success())
	assert.Empty(t, result.CompletedSteps)
	assert.Zero(t, f.analyzer.calls())

	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ProcessingError, "not accessible")
}

func TestProcess_BestEffortWarnings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.embedder.err = errors.New("embedding model offline")
	f.service.config.MaxFileSize = 10
	report := f.addReport(t, sampleFiling, "sometime in 2024")

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	require.True(t, result.Success(), "errors: %v", result.Errors)
	assert.NotContains(t, result.CompletedSteps, models.StepEmbeddingGeneration)
	assert.Empty(t, result.Embeddings)
	require.Len(t, result.Warnings, 3)
	assert.Contains(t, result.Warnings[0], "exceeds")
	assert.Contains(t, result.Warnings[1], "fiscal period")
	assert.Contains(t, result.Warnings[2], "embedding generation failed")
}

func TestProcess_TooLittleText(t *testing.T) {
	f := newFixture(t)
	report := f.addReport(t, "Short note.", "FY2024")

	result := f.service.Process(context.Background(), report.ID, withEmbeddings())

	assert.False(t, result.Success())
	assert.Equal(t, models.StatusFailed, result.FinalStatus)
	assert.Zero(t, f.analyzer.calls())
}

func TestProcess_ClaimedReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, sampleFiling, "FY2024")
	_, err := f.storage.TransactionStorage().ClaimBatch(ctx,
		&models.BatchJob{ID: "bat_1", UserID: "usr_1", ReportIDs: []string{report.ID}, TotalReports: 1}, false)
	require.NoError(t, err)

	// Another caller cannot start a report held by a batch
	direct := f.service.Process(ctx, report.ID, withEmbeddings())
	assert.False(t, direct.Success())
	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, "bat_1", stored.ClaimedBy)

	claimed := f.service.Process(ctx, report.ID, interfaces.ProcessOptions{ClaimedBy: "bat_1"})
	require.True(t, claimed.Success(), "errors: %v", claimed.Errors)
	assert.Empty(t, claimed.Embeddings)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error) {
	panic("decoder exploded")
}

func TestProcess_PanicMarksReportFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.service.analyzer = panickingAnalyzer{}
	report := f.addReport(t, sampleFiling, "FY2024")

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	assert.False(t, result.Success())
	assert.Equal(t, models.StatusFailed, result.FinalStatus)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "decoder exploded")

	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

// reclaimingAnalyzer lets the stuck sweep reset the report and a batch claim
// it while the run is still analyzing
type reclaimingAnalyzer struct {
	fakeAnalyzer
	storage  *badger.Manager
	reportID string
}

func (r *reclaimingAnalyzer) Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error) {
	tx := r.storage.TransactionStorage()
	if _, err := tx.ResetStuckReport(ctx, r.reportID, time.Now().Add(time.Minute)); err != nil {
		return nil, err
	}
	batch := &models.BatchJob{ID: "bat_2", UserID: "usr_1", ReportIDs: []string{r.reportID}, TotalReports: 1}
	if _, err := tx.ClaimBatch(ctx, batch, false); err != nil {
		return nil, err
	}
	return r.fakeAnalyzer.Analyze(ctx, text, sectionHint)
}

func TestProcess_LostClaimLeavesNewOwnerIntact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, sampleFiling, "FY2024")
	f.service.analyzer = &reclaimingAnalyzer{storage: f.storage, reportID: report.ID}

	result := f.service.Process(ctx, report.ID, withEmbeddings())

	assert.False(t, result.Success())
	assert.Equal(t, models.StatusProcessing, result.FinalStatus)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "not processing for")
	assert.Contains(t, result.Errors[1], "failed to save report status")

	stored, err := f.storage.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, "bat_2", stored.ClaimedBy)
	assert.Empty(t, stored.ProcessingError)

	_, err = f.storage.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	n, err := f.storage.EmbeddingStorage().CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.events.types())

	// The batch that now owns the report can still process it
	f.service.analyzer = f.analyzer
	claimed := f.service.Process(ctx, report.ID, interfaces.ProcessOptions{ClaimedBy: "bat_2"})
	require.True(t, claimed.Success(), "errors: %v", claimed.Errors)
	assert.Equal(t, models.StatusCompleted, claimed.FinalStatus)
}

func TestProcess_UnknownReport(t *testing.T) {
	f := newFixture(t)
	result := f.service.Process(context.Background(), "rpt_missing", withEmbeddings())
	assert.False(t, result.Success())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not found")
}

func TestProcessReports_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReport(t, sampleFiling, "FY2023")
	broken := f.addReport(t, sampleFiling, "FY2024")
	require.NoError(t, os.Remove(broken.FilePath))

	var seen []string
	stats, err := f.service.ProcessReports(ctx,
		&interfaces.ReportFilter{Statuses: []models.ProcessingStatus{models.StatusPending}},
		interfaces.ProcessOptions{}, func(r *models.ProcessingResult) { seen = append(seen, r.ReportID) })
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Len(t, seen, 2)

	status, err := f.service.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Counts[string(models.StatusCompleted)])
	assert.Equal(t, 1, status.Counts[string(models.StatusFailed)])
}

func TestAnalysisSections(t *testing.T) {
	long := strings.Repeat("x", 150)
	tests := []struct {
		name     string
		sections map[string]string
		want     []string
	}{
		{"named sections win", map[string]string{models.SectionFullDocument: long + long, "mda": long, "other": "short"}, []string{"mda"}},
		{"falls back to whole document", map[string]string{models.SectionFullDocument: long, "other": "short"}, []string{models.SectionFullDocument}},
		{"nothing long enough", map[string]string{models.SectionFullDocument: "short"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analysisSections(tt.sections, 100))
		})
	}
}

func TestFiscalPeriodPattern(t *testing.T) {
	for _, ok := range []string{"FY2024", "FY 2024", "Q3 2023", "2024", "2024-Q2", "H1 2024"} {
		assert.True(t, fiscalPeriodPattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"sometime in 2024", "FY24", "Q5 2024"} {
		assert.False(t, fiscalPeriodPattern.MatchString(bad), bad)
	}
}
