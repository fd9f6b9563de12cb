package badger

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
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(arbor.NewNoOpLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func saveReport(t *testing.T, m *Manager, companyID string, filed time.Time) *models.FinancialReport {
	t.Helper()
	r, err := models.NewFinancialReport(companyID, models.ReportTypeAnnual, "FY"+filed.Format("2006"), filed,
		"/data/"+companyID+".txt", models.FileFormatTXT, models.DownloadSourceManual)
	require.NoError(t, err)
	require.NoError(t, m.ReportStorage().SaveReport(context.Background(), r))
	return r
}

func newAnalysis(t *testing.T, reportID string, optimism float64) *models.NarrativeAnalysis {
	t.Helper()
	a, err := models.NewNarrativeAnalysis(reportID, models.SentimentScores{
		OptimismScore: optimism, OptimismConfidence: 0.8,
		RiskScore: 0.3, RiskConfidence: 0.8,
		UncertaintyScore: 0.3, UncertaintyConfidence: 0.8,
	}, []string{"growth"}, nil, map[string]string{"full_document": "preview"}, "test")
	require.NoError(t, err)
	return a
}

func commit(t *testing.T, m *Manager, report *models.FinancialReport, analysis *models.NarrativeAnalysis, n int) {
	t.Helper()
	ctx := context.Background()
	started, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "", true)
	require.NoError(t, err)
	*report = *started
	require.NoError(t, report.Complete(analysis))

	var embeddings []*models.NarrativeEmbedding
	for i := 0; i < n; i++ {
		embeddings = append(embeddings, &models.NarrativeEmbedding{
			ID:          common.NewEmbeddingID(),
			AnalysisID:  analysis.ID,
			SectionType: models.SectionOther,
			TextChunk:   "chunk",
			Vector:      []float32{float32(i + 1), 1, 0},
			ChunkIndex:  i,
		})
	}
	require.NoError(t, m.TransactionStorage().CommitAnalysis(ctx, report, "", analysis, embeddings))
}

func TestReportStorage_GetMissing(t *testing.T) {
	m := newTestManager(t)
	_, err := m.ReportStorage().GetReport(context.Background(), "rpt_missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestReportStorage_ListFilters(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	older := saveReport(t, m, "co_a", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC))
	newer := saveReport(t, m, "co_a", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	other := saveReport(t, m, "co_b", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, other.StartProcessing(""))
	require.NoError(t, other.Fail("bad file"))
	require.NoError(t, m.ReportStorage().SaveReport(ctx, other))

	reports, err := m.ReportStorage().ListReports(ctx, &interfaces.ReportFilter{CompanyID: "co_a"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, older.ID, reports[0].ID)
	assert.Equal(t, newer.ID, reports[1].ID)

	failed, err := m.ReportStorage().ListReports(ctx, &interfaces.ReportFilter{
		Statuses: []models.ProcessingStatus{models.StatusFailed},
	})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, other.ID, failed[0].ID)

	limited, err := m.ReportStorage().ListReports(ctx, &interfaces.ReportFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReportStorage_RejectsBrokenInvariant(t *testing.T) {
	m := newTestManager(t)
	r := saveReport(t, m, "co_a", time.Now())
	now := time.Now()
	r.ProcessedAt = &now

	err := m.ReportStorage().SaveReport(context.Background(), r)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestCommitAnalysis_ReplacesPriorAnalysisAndCascades(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())

	first := newAnalysis(t, report.ID, 0.6)
	commit(t, m, report, first, 3)

	stored, err := m.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	embeddings, err := m.EmbeddingStorage().GetEmbeddings(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.Equal(t, 0, embeddings[0].ChunkIndex)

	second := newAnalysis(t, report.ID, 0.7)
	commit(t, m, report, second, 1)

	current, err := m.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	_, err = m.AnalysisStorage().GetAnalysis(ctx, first.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	orphans, err := m.EmbeddingStorage().GetEmbeddings(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	count, err := m.EmbeddingStorage().CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitAnalysis_RejectsForeignAnalysis(t *testing.T) {
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())
	report, err := m.TransactionStorage().StartProcessing(context.Background(), report.ID, "", false)
	require.NoError(t, err)
	foreign := newAnalysis(t, "rpt_other", 0.5)
	require.NoError(t, report.Complete(foreign))

	err = m.TransactionStorage().CommitAnalysis(context.Background(), report, "", foreign, nil)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestUpdateFinancialMetrics(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())
	analysis := newAnalysis(t, report.ID, 0.6)
	commit(t, m, report, analysis, 0)

	insights := &models.CrossReferenceInsights{OverallSentiment: "neutral", Insights: []string{"narrative sentiment only"}}
	require.NoError(t, m.AnalysisStorage().UpdateFinancialMetrics(ctx, analysis.ID, insights))

	stored, err := m.AnalysisStorage().GetAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FinancialMetrics)
	assert.Equal(t, "neutral", stored.FinancialMetrics.OverallSentiment)
	assert.Equal(t, analysis.OptimismScore, stored.OptimismScore)
}

func TestSearchSimilar(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())
	analysis := newAnalysis(t, report.ID, 0.6)
	commit(t, m, report, analysis, 3)

	results, err := m.EmbeddingStorage().SearchSimilar(ctx, []float32{3, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].ChunkIndex)
}

func TestFindOrCreateDelta_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	delta := &models.NarrativeDelta{
		CompanyID:            "co_a",
		BaseAnalysisID:       "ana_1",
		ComparisonAnalysisID: "ana_2",
		OptimismDelta:        -0.1,
		ShiftSignificance:    models.SignificanceMinor,
	}
	first, created, err := m.DeltaStorage().FindOrCreateDelta(ctx, delta)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.NarrativeDelta{
		CompanyID:            "co_a",
		BaseAnalysisID:       "ana_1",
		ComparisonAnalysisID: "ana_2",
		OptimismDelta:        -0.2,
		ShiftSignificance:    models.SignificanceModerate,
	}
	second, created, err := m.DeltaStorage().FindOrCreateDelta(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, -0.2, second.OptimismDelta)

	deltas, err := m.DeltaStorage().ListDeltasByCompany(ctx, "co_a")
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, models.SignificanceModerate, deltas[0].ShiftSignificance)
}

func TestClaimBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("claims every member atomically", func(t *testing.T) {
		m := newTestManager(t)
		a := saveReport(t, m, "co_a", time.Now())
		b := saveReport(t, m, "co_a", time.Now())
		batch := &models.BatchJob{ID: common.NewBatchID(), UserID: "u1", ReportIDs: []string{a.ID, b.ID}, TotalReports: 2}

		claimed, err := m.TransactionStorage().ClaimBatch(ctx, batch, false)
		require.NoError(t, err)
		require.Len(t, claimed, 2)

		for _, id := range batch.ReportIDs {
			r, err := m.ReportStorage().GetReport(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.StatusProcessing, r.Status)
			assert.Equal(t, batch.ID, r.ClaimedBy)
		}
		_, err = m.BatchStorage().GetBatch(ctx, batch.ID)
		assert.NoError(t, err)
	})

	t.Run("missing member rolls back", func(t *testing.T) {
		m := newTestManager(t)
		a := saveReport(t, m, "co_a", time.Now())
		batch := &models.BatchJob{ID: common.NewBatchID(), ReportIDs: []string{a.ID, "rpt_missing"}}

		_, err := m.TransactionStorage().ClaimBatch(ctx, batch, false)
		assert.True(t, errors.Is(err, common.ErrNotFound))

		r, err := m.ReportStorage().GetReport(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, r.Status)
		_, err = m.BatchStorage().GetBatch(ctx, batch.ID)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("completed member requires force", func(t *testing.T) {
		m := newTestManager(t)
		done := saveReport(t, m, "co_a", time.Now())
		commit(t, m, done, newAnalysis(t, done.ID, 0.5), 0)

		batch := &models.BatchJob{ID: common.NewBatchID(), ReportIDs: []string{done.ID}}
		_, err := m.TransactionStorage().ClaimBatch(ctx, batch, false)
		assert.True(t, errors.Is(err, common.ErrValidation))

		claimed, err := m.TransactionStorage().ClaimBatch(ctx, batch, true)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, claimed[0].Status)
		assert.Nil(t, claimed[0].ProcessedAt)
	})
}

func TestStartProcessing_StaleCopyCannotDropBatchClaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())

	stale, err := m.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, stale.Status)

	batch := &models.BatchJob{ID: "bat_1", UserID: "u1", ReportIDs: []string{report.ID}, TotalReports: 1}
	_, err = m.TransactionStorage().ClaimBatch(ctx, batch, false)
	require.NoError(t, err)

	// The caller still holds the PENDING copy, but the guard runs on the stored row
	_, err = m.TransactionStorage().StartProcessing(ctx, stale.ID, "", false)
	assert.True(t, errors.Is(err, common.ErrValidation))

	stored, err := m.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, "bat_1", stored.ClaimedBy)

	started, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "bat_1", false)
	require.NoError(t, err)
	assert.Equal(t, "bat_1", started.ClaimedBy)
}

func TestStartProcessing_ResetsCompletedOnlyWhenAsked(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())
	commit(t, m, report, newAnalysis(t, report.ID, 0.6), 0)

	_, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "", false)
	assert.True(t, errors.Is(err, common.ErrValidation))

	started, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, started.Status)
	assert.Nil(t, started.ProcessedAt)
}

func TestFailReport_RequiresCurrentClaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())
	_, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "bat_1", false)
	require.NoError(t, err)

	for _, claimant := range []string{"", "bat_2"} {
		_, err := m.TransactionStorage().FailReport(ctx, report.ID, claimant, "boom")
		assert.True(t, errors.Is(err, common.ErrConflict), claimant)
	}

	failed, err := m.TransactionStorage().FailReport(ctx, report.ID, "bat_1", "boom")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.ProcessingError)
	assert.Empty(t, failed.ClaimedBy)

	_, err = m.TransactionStorage().FailReport(ctx, report.ID, "bat_1", "again")
	assert.True(t, errors.Is(err, common.ErrConflict))

	_, err = m.TransactionStorage().FailReport(ctx, "rpt_missing", "", "boom")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCommitAnalysis_RejectsLostClaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())

	run, err := m.TransactionStorage().StartProcessing(ctx, report.ID, "", false)
	require.NoError(t, err)

	// The sweep resets the run's report and a batch claims it before the run commits
	_, err = m.TransactionStorage().ResetStuckReport(ctx, report.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	batch := &models.BatchJob{ID: "bat_2", UserID: "u1", ReportIDs: []string{report.ID}, TotalReports: 1}
	_, err = m.TransactionStorage().ClaimBatch(ctx, batch, false)
	require.NoError(t, err)

	analysis := newAnalysis(t, report.ID, 0.6)
	require.NoError(t, run.Complete(analysis))
	err = m.TransactionStorage().CommitAnalysis(ctx, run, "", analysis, nil)
	assert.True(t, errors.Is(err, common.ErrConflict))

	stored, err := m.ReportStorage().GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Equal(t, "bat_2", stored.ClaimedBy)
	_, err = m.AnalysisStorage().GetAnalysisByReport(ctx, report.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestResetStuckReport_RechecksState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())

	// Pending is never stuck
	_, err := m.TransactionStorage().ResetStuckReport(ctx, report.ID, time.Now().Add(time.Minute))
	assert.True(t, errors.Is(err, common.ErrConflict))

	_, err = m.TransactionStorage().StartProcessing(ctx, report.ID, "bat_1", false)
	require.NoError(t, err)

	// Updated after the cutoff
	_, err = m.TransactionStorage().ResetStuckReport(ctx, report.ID, time.Now().Add(-time.Hour))
	assert.True(t, errors.Is(err, common.ErrConflict))

	reset, err := m.TransactionStorage().ResetStuckReport(ctx, report.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reset.Status)
	assert.Empty(t, reset.ClaimedBy)
}

func TestResetReport(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	report := saveReport(t, m, "co_a", time.Now())

	_, err := m.TransactionStorage().ResetReport(ctx, report.ID)
	assert.True(t, errors.Is(err, common.ErrValidation))

	commit(t, m, report, newAnalysis(t, report.ID, 0.6), 0)
	reset, err := m.TransactionStorage().ResetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reset.Status)
	assert.Nil(t, reset.ProcessedAt)
}

func TestFindStuckReports(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	r := saveReport(t, m, "co_a", time.Now())
	require.NoError(t, r.StartProcessing(""))
	require.NoError(t, m.ReportStorage().SaveReport(ctx, r))

	stuck, err := m.ReportStorage().FindStuckReports(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	none, err := m.ReportStorage().FindStuckReports(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
