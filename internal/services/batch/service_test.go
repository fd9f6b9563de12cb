package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/queue"
	"github.com/ternarybob/tenor/internal/services/extraction"
	"github.com/ternarybob/tenor/internal/services/processor"
	"github.com/ternarybob/tenor/internal/storage/badger"
)

const filing = `Management's Discussion and Analysis
Revenue increased eighteen percent year over year as demand for our industrial products remained strong across every region we serve.

Risk Factors
Rising interest rates and supply chain disruption could reduce margins and delay deliveries to our largest customers next year.
`

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, text, sectionHint string) (*models.SentimentResult, error) {
	return &models.SentimentResult{
		SentimentScores: models.SentimentScores{
			OptimismScore: 0.7, OptimismConfidence: 0.8,
			RiskScore: 0.3, RiskConfidence: 0.8,
			UncertaintyScore: 0.2, UncertaintyConfidence: 0.7,
		},
		KeyThemes: []string{"growth"},
		Model:     "stub",
	}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (e *eventLog) Subscribe(interfaces.EventType, interfaces.EventHandler) (func(), error) {
	return func() {}, nil
}

func (e *eventLog) Publish(ctx context.Context, event interfaces.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventLog) PublishSync(ctx context.Context, event interfaces.Event) error {
	return e.Publish(ctx, event)
}

func (e *eventLog) Close() error { return nil }

func (e *eventLog) progress() []models.BatchProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.BatchProgress
	for _, ev := range e.events {
		if ev.Type != interfaces.EventBatchProgress {
			continue
		}
		payload := ev.Payload.(map[string]interface{})
		out = append(out, payload["progress"].(models.BatchProgress))
	}
	return out
}

func (e *eventLog) count(eventType interfaces.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	dir     string
	storage *badger.Manager
	queue   *queue.BadgerManager
	pool    *queue.WorkerPool
	events  *eventLog
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewNoOpLogger()
	config := common.NewDefaultConfig()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	q, err := queue.NewBadgerManager(storage.DB(), queue.NewDefaultConfig(), logger)
	require.NoError(t, err)

	proc := processor.NewService(storage, extraction.NewService(nil, nil, logger), nil,
		stubAnalyzer{}, nil, nil, config.Processing, logger)

	f := &fixture{
		dir:     t.TempDir(),
		storage: storage,
		queue:   q,
		events:  &eventLog{},
	}
	f.service = NewService(storage, q, proc, f.events, config.Batch, logger)
	f.pool = queue.NewWorkerPool(q, queue.NewDefaultConfig(), logger)
	f.pool.RegisterHandler(models.MessageTypeBatchProcess, f.service.HandleMessage)
	return f
}

func (f *fixture) addReport(t *testing.T, content string) *models.FinancialReport {
	t.Helper()
	path := filepath.Join(f.dir, common.NewReportID()+".txt")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	report, err := models.NewFinancialReport("cmp_acme", models.ReportTypeQuarterly, "Q1 2024",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), path, models.FileFormatTXT, models.DownloadSourceManual)
	require.NoError(t, err)
	require.NoError(t, f.storage.ReportStorage().SaveReport(context.Background(), report))
	return report
}

func (f *fixture) status(t *testing.T, id string) models.ProcessingStatus {
	t.Helper()
	report, err := f.storage.ReportStorage().GetReport(context.Background(), id)
	require.NoError(t, err)
	return report.Status
}

func ids(reports ...*models.FinancialReport) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}

func TestBatch_IsolatesMemberFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good1 := f.addReport(t, filing)
	missing := f.addReport(t, "") // file never written
	blank := f.addReport(t, "  \n\t\n  ")
	good2 := f.addReport(t, filing)

	batch, err := f.service.Submit(ctx, Request{
		UserID:    "usr_1",
		Tier:      models.TierPro,
		ReportIDs: ids(good1, missing, blank, good2),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchPending, batch.Status)

	// Every member is claimed before execution starts
	for _, id := range batch.ReportIDs {
		assert.Equal(t, models.StatusProcessing, f.status(t, id))
	}
	n, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.pool.ProcessNext(ctx))

	done, err := f.service.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPartiallyCompleted, done.Status)
	assert.Equal(t, 2, done.SuccessfulReports)
	assert.Equal(t, 2, done.FailedReports)
	require.Len(t, done.Results, 4)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, models.BatchProgress{Total: 4, Successful: 2, Failed: 2}, done.Progress)

	assert.Equal(t, "success", done.Results[0].Status)
	assert.NotEmpty(t, done.Results[0].AnalysisID)

	validation := done.Results[1]
	assert.Equal(t, missing.ID, validation.ReportID)
	assert.Equal(t, "failed", validation.Status)
	require.NotEmpty(t, validation.Errors)
	assert.Contains(t, validation.Errors[0], "not accessible")

	extractionFailure := done.Results[2]
	assert.Equal(t, blank.ID, extractionFailure.ReportID)
	assert.Equal(t, "failed", extractionFailure.Status)
	require.NotEmpty(t, extractionFailure.Errors)
	assert.Contains(t, extractionFailure.Errors[0], "no narrative text")
	assert.Empty(t, extractionFailure.AnalysisID)

	assert.Equal(t, "success", done.Results[3].Status)

	assert.Equal(t, models.StatusCompleted, f.status(t, good1.ID))
	assert.Equal(t, models.StatusFailed, f.status(t, missing.ID))
	assert.Equal(t, models.StatusFailed, f.status(t, blank.ID))
	assert.Equal(t, models.StatusCompleted, f.status(t, good2.ID))

	// One event as each member starts, naming it, and one as it finishes
	progress := f.events.progress()
	require.Len(t, progress, 8)
	for i, id := range ids(good1, missing, blank, good2) {
		assert.Equal(t, id, progress[2*i].CurrentReport)
		assert.Equal(t, i, progress[2*i].Successful+progress[2*i].Failed)
		assert.Empty(t, progress[2*i+1].CurrentReport)
		assert.Equal(t, i+1, progress[2*i+1].Successful+progress[2*i+1].Failed)
	}
	assert.Equal(t, 1, f.events.count(interfaces.EventBatchCompleted))
}

func TestBatch_TerminalStatus(t *testing.T) {
	tests := []struct {
		name   string
		broken []bool
		want   models.BatchStatus
	}{
		{"all succeed", []bool{false, false}, models.BatchCompleted},
		{"all fail", []bool{true, true}, models.BatchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			var members []*models.FinancialReport
			for _, b := range tt.broken {
				content := filing
				if b {
					content = ""
				}
				members = append(members, f.addReport(t, content))
			}

			batch, err := f.service.Submit(ctx, Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(members...)})
			require.NoError(t, err)
			require.NoError(t, f.service.Execute(ctx, batch.ID))

			done, err := f.service.Get(ctx, batch.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, done.Status)
			assert.Len(t, done.Results, len(members))
		})
	}
}

func TestBatch_RedeliveryOfFinishedBatchIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, filing)

	batch, err := f.service.Submit(ctx, Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(report)})
	require.NoError(t, err)
	require.NoError(t, f.service.Execute(ctx, batch.ID))
	require.NoError(t, f.service.Execute(ctx, batch.ID))

	done, err := f.service.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, done.Status)
	assert.Len(t, done.Results, 1)
	assert.Equal(t, 1, f.events.count(interfaces.EventBatchCompleted))
}

func TestSubmit_RejectsBeforeClaiming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var members []*models.FinancialReport
	for i := 0; i < 4; i++ {
		members = append(members, f.addReport(t, filing))
	}
	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = common.NewReportID()
	}

	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{"over tier cap", Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(members...)}, "basic subscription limit (3)"},
		{"over hard cap", Request{UserID: "usr_1", Tier: models.TierEnterprise, ReportIDs: eleven}, "maximum limit (10)"},
		{"no reports", Request{UserID: "usr_1", Tier: models.TierPro}, "invalid batch request"},
		{"duplicate reports", Request{UserID: "usr_1", Tier: models.TierPro, ReportIDs: []string{members[0].ID, members[0].ID}}, "invalid batch request"},
		{"unknown tier", Request{UserID: "usr_1", Tier: "gold", ReportIDs: ids(members[0])}, "invalid batch request"},
		{"missing user", Request{Tier: models.TierPro, ReportIDs: ids(members[0])}, "invalid batch request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Submit(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	for _, m := range members {
		assert.Equal(t, models.StatusPending, f.status(t, m.ID))
	}
	n, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmit_UnknownReportClaimsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, filing)

	_, err := f.service.Submit(ctx, Request{
		UserID:    "usr_1",
		Tier:      models.TierPro,
		ReportIDs: []string{report.ID, "rpt_missing"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, models.StatusPending, f.status(t, report.ID))
}

func TestSubmit_CompletedReportNeedsForce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	report := f.addReport(t, filing)

	first, err := f.service.Submit(ctx, Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(report)})
	require.NoError(t, err)
	require.NoError(t, f.service.Execute(ctx, first.ID))
	require.Equal(t, models.StatusCompleted, f.status(t, report.ID))

	_, err = f.service.Submit(ctx, Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(report)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))

	forced, err := f.service.Submit(ctx, Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(report), Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, f.status(t, report.ID))
	require.NoError(t, f.service.Execute(ctx, forced.ID))

	batches, err := f.service.ListByUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Len(t, batches, 2)
}

func TestExecute_CancelledContextReleasesMembers(t *testing.T) {
	f := newFixture(t)
	report := f.addReport(t, filing)

	batch, err := f.service.Submit(context.Background(), Request{UserID: "usr_1", Tier: models.TierBasic, ReportIDs: ids(report)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.service.Execute(ctx, batch.ID))

	done, err := f.service.Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, done.Status)
	assert.Equal(t, models.StatusFailed, f.status(t, report.ID))
}
