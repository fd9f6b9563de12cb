package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/storage/badger"
)

func newStorage(t *testing.T) *badger.Manager {
	t.Helper()
	storage, err := badger.NewManager(arbor.NewNoOpLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func saveReport(t *testing.T, storage *badger.Manager, status models.ProcessingStatus, claimedBy string) *models.FinancialReport {
	t.Helper()
	report, err := models.NewFinancialReport("cmp_acme", models.ReportTypeAnnual, "FY2024",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "/data/report.pdf", models.FileFormatPDF, models.DownloadSourceSEC)
	require.NoError(t, err)
	if status == models.StatusProcessing {
		require.NoError(t, report.StartProcessing(claimedBy))
	} else if status == models.StatusFailed {
		require.NoError(t, report.Fail("extraction failed"))
	}
	require.NoError(t, storage.ReportStorage().SaveReport(context.Background(), report))
	return report
}

// markTime returns an instant strictly between the surrounding saves
func markTime() time.Time {
	time.Sleep(2 * time.Millisecond)
	mark := time.Now()
	time.Sleep(2 * time.Millisecond)
	return mark
}

func TestService_ResetStuck(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	svc := NewService(storage, common.SweepConfig{StuckThreshold: "1h"}, arbor.NewNoOpLogger())

	stuck := saveReport(t, storage, models.StatusProcessing, "bat_1")
	pending := saveReport(t, storage, models.StatusPending, "")
	failed := saveReport(t, storage, models.StatusFailed, "")
	mark := markTime()
	fresh := saveReport(t, storage, models.StatusProcessing, "")

	// An hour after the mark, only reports saved before it are stuck
	svc.now = func() time.Time { return mark.Add(time.Hour) }

	result, err := svc.ResetStuck(ctx, 0)
	require.NoError(t, err)
	assert.True(t, result.Cutoff.Equal(mark))
	assert.Equal(t, 1, result.Found)
	assert.Equal(t, []string{stuck.ID}, result.Reset)
	assert.Empty(t, result.Errors)

	reset, err := storage.ReportStorage().GetReport(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reset.Status)
	assert.Empty(t, reset.ClaimedBy)

	for id, want := range map[string]models.ProcessingStatus{
		fresh.ID:   models.StatusProcessing,
		pending.ID: models.StatusPending,
		failed.ID:  models.StatusFailed,
	} {
		got, err := storage.ReportStorage().GetReport(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}
}

func TestService_ResetStuckExplicitAge(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	svc := NewService(storage, common.SweepConfig{}, arbor.NewNoOpLogger())
	assert.Equal(t, time.Hour, svc.Threshold())

	report := saveReport(t, storage, models.StatusProcessing, "")
	mark := markTime()
	svc.now = func() time.Time { return mark.Add(10 * time.Minute) }

	// Ten minutes old: below the default threshold
	result, err := svc.ResetStuck(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Reset)

	result, err = svc.ResetStuck(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{report.ID}, result.Reset)

	again, err := svc.ResetStuck(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Found)
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	svc := NewService(newStorage(t), common.SweepConfig{}, arbor.NewNoOpLogger())
	scheduler := NewScheduler(svc, arbor.NewNoOpLogger())

	assert.Error(t, scheduler.Start("not a schedule"))
	require.NoError(t, scheduler.Start("0 */15 * * * *"))
	scheduler.Stop()
}
