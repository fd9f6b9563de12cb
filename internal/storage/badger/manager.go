package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	report      interfaces.ReportStorage
	analysis    interfaces.AnalysisStorage
	embedding   interfaces.EmbeddingStorage
	delta       interfaces.DeltaStorage
	batch       interfaces.BatchStorage
	transaction interfaces.TransactionStorage
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:          db,
		report:      NewReportStorage(db, logger),
		analysis:    NewAnalysisStorage(db, logger),
		embedding:   NewEmbeddingStorage(db, logger),
		delta:       NewDeltaStorage(db, logger),
		batch:       NewBatchStorage(db, logger),
		transaction: NewTransactionStorage(db, logger),
		logger:      logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.report
}

func (m *Manager) AnalysisStorage() interfaces.AnalysisStorage {
	return m.analysis
}

func (m *Manager) EmbeddingStorage() interfaces.EmbeddingStorage {
	return m.embedding
}

func (m *Manager) DeltaStorage() interfaces.DeltaStorage {
	return m.delta
}

func (m *Manager) BatchStorage() interfaces.BatchStorage {
	return m.batch
}

func (m *Manager) TransactionStorage() interfaces.TransactionStorage {
	return m.transaction
}

// Backend returns the storage backend name
func (m *Manager) Backend() string {
	return "badger"
}

// Ping checks the database is open and readable
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil || m.db.Store() == nil {
		return common.DatabaseError("ping", nil, "badger store is not open")
	}
	return m.db.Badger().View(func(txn *badgerdb.Txn) error { return nil })
}

// DB returns the raw Badger handle for the durable queue
func (m *Manager) DB() *badgerdb.DB {
	return m.db.Badger()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
