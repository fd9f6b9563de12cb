package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ternarybob/tenor/internal/common"
)

// schemaStatements creates the tables when missing. Versioned migrations are
// out of scope; this only guarantees a usable schema on first start.
func schemaStatements(dimension int) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS financial_reports (
			id               TEXT PRIMARY KEY,
			company_id       TEXT NOT NULL,
			report_type      TEXT NOT NULL,
			fiscal_period    TEXT NOT NULL DEFAULT '',
			filing_date      TIMESTAMPTZ NOT NULL,
			file_path        TEXT NOT NULL,
			file_format      TEXT NOT NULL,
			file_size        BIGINT NOT NULL DEFAULT 0,
			download_source  TEXT NOT NULL,
			status           TEXT NOT NULL,
			processing_error TEXT NOT NULL DEFAULT '',
			claimed_by       TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			processed_at     TIMESTAMPTZ,
			CONSTRAINT processed_at_matches_status CHECK ((processed_at IS NOT NULL) = (status = 'completed'))
		)`,
		`CREATE INDEX IF NOT EXISTS financial_reports_company_idx ON financial_reports (company_id, filing_date)`,
		`CREATE INDEX IF NOT EXISTS financial_reports_status_idx ON financial_reports (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS narrative_analyses (
			id                      TEXT PRIMARY KEY,
			report_id               TEXT NOT NULL UNIQUE REFERENCES financial_reports (id),
			optimism_score          DOUBLE PRECISION NOT NULL CHECK (optimism_score BETWEEN 0 AND 1),
			optimism_confidence     DOUBLE PRECISION NOT NULL CHECK (optimism_confidence BETWEEN 0 AND 1),
			risk_score              DOUBLE PRECISION NOT NULL CHECK (risk_score BETWEEN 0 AND 1),
			risk_confidence         DOUBLE PRECISION NOT NULL CHECK (risk_confidence BETWEEN 0 AND 1),
			uncertainty_score       DOUBLE PRECISION NOT NULL CHECK (uncertainty_score BETWEEN 0 AND 1),
			uncertainty_confidence  DOUBLE PRECISION NOT NULL CHECK (uncertainty_confidence BETWEEN 0 AND 1),
			key_themes              TEXT[] NOT NULL DEFAULT '{}',
			risk_indicators         TEXT[] NOT NULL DEFAULT '{}',
			narrative_sections      JSONB NOT NULL DEFAULT '{}',
			financial_metrics       JSONB,
			processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			model_version           TEXT NOT NULL DEFAULT '',
			created_at              TIMESTAMPTZ NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS narrative_embeddings (
			id           TEXT PRIMARY KEY,
			analysis_id  TEXT NOT NULL REFERENCES narrative_analyses (id) ON DELETE CASCADE,
			section_type TEXT NOT NULL,
			text_chunk   TEXT NOT NULL,
			embedding    vector(%d) NOT NULL,
			chunk_index  INTEGER NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS narrative_embeddings_analysis_idx ON narrative_embeddings (analysis_id, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS narrative_deltas (
			id                      TEXT PRIMARY KEY,
			company_id              TEXT NOT NULL,
			base_report_id          TEXT NOT NULL REFERENCES financial_reports (id),
			comparison_report_id    TEXT NOT NULL REFERENCES financial_reports (id),
			base_analysis_id        TEXT NOT NULL REFERENCES narrative_analyses (id) ON DELETE CASCADE,
			comparison_analysis_id  TEXT NOT NULL REFERENCES narrative_analyses (id) ON DELETE CASCADE,
			optimism_delta          DOUBLE PRECISION NOT NULL,
			risk_delta              DOUBLE PRECISION NOT NULL,
			uncertainty_delta       DOUBLE PRECISION NOT NULL,
			overall_sentiment_delta DOUBLE PRECISION NOT NULL,
			themes_added            TEXT[] NOT NULL DEFAULT '{}',
			themes_removed          TEXT[] NOT NULL DEFAULT '{}',
			themes_evolved          TEXT[] NOT NULL DEFAULT '{}',
			shift_significance      TEXT NOT NULL,
			created_at              TIMESTAMPTZ NOT NULL,
			updated_at              TIMESTAMPTZ NOT NULL,
			UNIQUE (base_analysis_id, comparison_analysis_id)
		)`,
		`CREATE INDEX IF NOT EXISTS narrative_deltas_company_idx ON narrative_deltas (company_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS batch_jobs (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			status             TEXT NOT NULL,
			total_reports      INTEGER NOT NULL,
			successful_reports INTEGER NOT NULL DEFAULT 0,
			failed_reports     INTEGER NOT NULL DEFAULT 0,
			report_ids         TEXT[] NOT NULL,
			results            JSONB NOT NULL DEFAULT '[]',
			progress           JSONB NOT NULL DEFAULT '{}',
			include_embeddings BOOLEAN NOT NULL DEFAULT FALSE,
			error_message      TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL,
			started_at         TIMESTAMPTZ,
			completed_at       TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS batch_jobs_user_idx ON batch_jobs (user_id, created_at)`,
	}
}

// EnsureSchema creates any missing tables and indexes
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	for _, stmt := range schemaStatements(dimension) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return common.DatabaseError("ensure_schema", err, "failed to apply schema")
		}
	}
	return nil
}
