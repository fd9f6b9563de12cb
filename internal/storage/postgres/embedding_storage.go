package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
)

const embeddingColumns = `id, analysis_id, section_type, text_chunk, embedding, chunk_index, created_at`

// EmbeddingStorage implements the EmbeddingStorage interface for Postgres with pgvector
type EmbeddingStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewEmbeddingStorage creates a new EmbeddingStorage instance
func NewEmbeddingStorage(pool *pgxpool.Pool, logger arbor.ILogger) interfaces.EmbeddingStorage {
	return &EmbeddingStorage{pool: pool, logger: logger}
}

func scanEmbedding(row pgx.Row) (*models.NarrativeEmbedding, error) {
	var e models.NarrativeEmbedding
	var vec pgvector.Vector
	if err := row.Scan(&e.ID, &e.AnalysisID, &e.SectionType, &e.TextChunk, &vec, &e.ChunkIndex, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Vector = vec.Slice()
	return &e, nil
}

func insertEmbedding(ctx context.Context, q querier, e *models.NarrativeEmbedding) error {
	_, err := q.Exec(ctx, `INSERT INTO narrative_embeddings (`+embeddingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.AnalysisID, string(e.SectionType), e.TextChunk, pgvector.NewVector(e.Vector), e.ChunkIndex, e.CreatedAt)
	return err
}

func (s *EmbeddingStorage) GetEmbeddings(ctx context.Context, analysisID string) ([]*models.NarrativeEmbedding, error) {
	return s.query(ctx, "get_embeddings",
		`SELECT `+embeddingColumns+` FROM narrative_embeddings WHERE analysis_id = $1 ORDER BY chunk_index`, analysisID)
}

func (s *EmbeddingStorage) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM narrative_embeddings`).Scan(&n); err != nil {
		return 0, mapError("count_embeddings", err, "count failed")
	}
	return n, nil
}

// SearchSimilar orders by pgvector cosine distance
func (s *EmbeddingStorage) SearchSimilar(ctx context.Context, query []float32, limit int) ([]*models.NarrativeEmbedding, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.query(ctx, "search_similar",
		`SELECT `+embeddingColumns+` FROM narrative_embeddings ORDER BY embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(query), limit)
}

func (s *EmbeddingStorage) query(ctx context.Context, op, sql string, args ...any) ([]*models.NarrativeEmbedding, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err, "query failed")
	}
	defer rows.Close()

	var result []*models.NarrativeEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, mapError(op, err, "scan failed")
		}
		result = append(result, e)
	}
	return result, mapError(op, rows.Err(), "rows failed")
}
