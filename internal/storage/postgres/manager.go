package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// Manager implements the StorageManager interface for Postgres
type Manager struct {
	pool        *pgxpool.Pool
	report      interfaces.ReportStorage
	analysis    interfaces.AnalysisStorage
	embedding   interfaces.EmbeddingStorage
	delta       interfaces.DeltaStorage
	batch       interfaces.BatchStorage
	transaction interfaces.TransactionStorage
	logger      arbor.ILogger
}

// NewManager connects, ensures the schema and builds the storages
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig, dimension int) (*Manager, error) {
	pool, err := NewPool(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Int("vector_dimension", dimension).Msg("Postgres storage manager initialized")

	return &Manager{
		pool:        pool,
		report:      NewReportStorage(pool, logger),
		analysis:    NewAnalysisStorage(pool, logger),
		embedding:   NewEmbeddingStorage(pool, logger),
		delta:       NewDeltaStorage(pool, logger),
		batch:       NewBatchStorage(pool, logger),
		transaction: NewTransactionStorage(pool, logger),
		logger:      logger,
	}, nil
}

func (m *Manager) ReportStorage() interfaces.ReportStorage           { return m.report }
func (m *Manager) AnalysisStorage() interfaces.AnalysisStorage       { return m.analysis }
func (m *Manager) EmbeddingStorage() interfaces.EmbeddingStorage     { return m.embedding }
func (m *Manager) DeltaStorage() interfaces.DeltaStorage             { return m.delta }
func (m *Manager) BatchStorage() interfaces.BatchStorage             { return m.batch }
func (m *Manager) TransactionStorage() interfaces.TransactionStorage { return m.transaction }

func (m *Manager) Backend() string {
	return "postgres"
}

func (m *Manager) Ping(ctx context.Context) error {
	if err := m.pool.Ping(ctx); err != nil {
		return common.DatabaseError("ping", err, "postgres unreachable")
	}
	return nil
}

func (m *Manager) Close() error {
	m.pool.Close()
	return nil
}
