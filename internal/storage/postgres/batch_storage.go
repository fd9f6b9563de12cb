package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

const batchColumns = `id, user_id, status, total_reports, successful_reports, failed_reports, report_ids,
	results, progress, include_embeddings, error_message, created_at, started_at, completed_at`

// BatchStorage implements the BatchStorage interface for Postgres
type BatchStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewBatchStorage creates a new BatchStorage instance
func NewBatchStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.BatchStorage {
	return &BatchStorage{pool: pool, logger: logger}
}

func scanBatch(row pgx.Row) (*models.BatchJob, error) {
	var b models.BatchJob
	var results, progress []byte
	err := row.Scan(&b.ID, &b.UserID, &b.Status, &b.TotalReports, &b.SuccessfulReports, &b.FailedReports,
		&b.ReportIDs, &results, &progress, &b.IncludeEmbeddings, &b.ErrorMessage, &b.CreatedAt,
		&b.StartedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &b.Results); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(progress, &b.Progress); err != nil {
		return nil, err
	}
	return &b, nil
}

func upsertBatch(ctx context.Context, q querier, b *models.BatchJob) error {
	results := b.Results
	if results == nil {
		results = []models.BatchReportResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	progressJSON, err := json.Marshal(b.Progress)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO batch_jobs (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			successful_reports = EXCLUDED.successful_reports,
			failed_reports = EXCLUDED.failed_reports,
			results = EXCLUDED.results,
			progress = EXCLUDED.progress,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		b.ID, b.UserID, string(b.Status), b.TotalReports, b.SuccessfulReports, b.FailedReports,
		nonNil(b.ReportIDs), resultsJSON, progressJSON, b.IncludeEmbeddings, b.ErrorMessage, b.CreatedAt,
		b.StartedAt, b.CompletedAt)
	return err
}

func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.BatchJob) error {
	if batch.ID == "" {
		return common.ValidationError("save_batch", "batch ID is required")
	}
	return mapError("save_batch", upsertBatch(ctx, s.pool, batch), "failed to save batch %s", batch.ID)
}

func (s *BatchStorage) GetBatch(ctx context.Context, id string) (*models.BatchJob, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batch_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get_batch", err, "batch %s not found", id)
	}
	return b, nil
}

func (s *BatchStorage) ListBatchesByUser(ctx context.Context, userID string) ([]*models.BatchJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batch_jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError("list_batches", err, "query failed")
	}
	defer rows.Close()

	var result []*models.BatchJob
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, mapError("list_batches", err, "scan failed")
		}
		result = append(result, b)
	}
	return result, mapError("list_batches", rows.Err(), "rows failed")
}
