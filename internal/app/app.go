package app

import (
	"context"
	"fmt"
	"path/filepath"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/handlers"
	"github.com/ternarybob/tenor/internal/interfaces"
	"github.com/ternarybob/tenor/internal/models"
	"github.com/ternarybob/tenor/internal/queue"
	"github.com/ternarybob/tenor/internal/services/batch"
	"github.com/ternarybob/tenor/internal/services/cache"
	"github.com/ternarybob/tenor/internal/services/delta"
	"github.com/ternarybob/tenor/internal/services/embeddings"
	"github.com/ternarybob/tenor/internal/services/events"
	"github.com/ternarybob/tenor/internal/services/export"
	"github.com/ternarybob/tenor/internal/services/extraction"
	"github.com/ternarybob/tenor/internal/services/llm"
	"github.com/ternarybob/tenor/internal/services/processor"
	"github.com/ternarybob/tenor/internal/services/sentiment"
	"github.com/ternarybob/tenor/internal/services/sweep"
	"github.com/ternarybob/tenor/internal/services/trends"
	"github.com/ternarybob/tenor/internal/storage"
	badgerstore "github.com/ternarybob/tenor/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager

	// queueDB is only owned by the app when the relational backend is active
	queueDB *badgerdb.DB

	// Async execution
	QueueManager *queue.BadgerManager
	WorkerPool   *queue.WorkerPool
	EventService interfaces.EventService

	// Model-facing services
	GenerationService *llm.Service
	SentimentService  *sentiment.Service
	EmbeddingService  *embeddings.Service // nil when embeddings are disabled or unavailable

	// Pipeline
	Parser           *extraction.IXBRLParser
	ExtractorService *extraction.Service
	ProcessorService *processor.Service
	DeltaService     *delta.Service
	BatchService     *batch.Service

	// Maintenance and reporting
	SweepService   *sweep.Service
	SweepScheduler *sweep.Scheduler
	TrendService   *trends.Service
	ExportService  *export.Service

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	ReportHandler *handlers.ReportHandler
	BatchHandler  *handlers.BatchHandler
	DeltaHandler  *handlers.DeltaHandler
	TrendHandler  *handlers.TrendHandler
	ExportHandler *handlers.ExportHandler
	SweepHandler  *handlers.SweepHandler
	WSHandler     *handlers.BatchStreamHandler

	workersStarted bool
}

// New initializes the application with all dependencies. Queue workers and
// the sweep schedule are not started; serve calls Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := app.subscribeLogger(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("storage", app.StorageManager.Backend()).
		Str("provider", app.GenerationService.Provider()).
		Str("model", app.GenerationService.DefaultModel()).
		Bool("embeddings", app.EmbeddingService != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the configured store and the badger database backing the queue
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.ctx, a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	// The badger store shares its database with the queue; the relational
	// store needs a dedicated one.
	var db *badgerdb.DB
	if m, ok := storageManager.(*badgerstore.Manager); ok {
		db = m.DB()
	} else {
		path := filepath.Join(a.Config.Storage.Badger.Path, "queue")
		opts := badgerdb.DefaultOptions(path).WithLogger(nil)
		db, err = badgerdb.Open(opts)
		if err != nil {
			return fmt.Errorf("failed to open queue database at %s: %w", path, err)
		}
		a.queueDB = db
	}

	qm, err := queue.NewBadgerManager(db, queue.ConfigFrom(a.Config.Queue), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create queue manager: %w", err)
	}
	a.QueueManager = qm

	a.Logger.Debug().
		Str("storage", storageManager.Backend()).
		Str("badger_path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) subscribeLogger() error {
	logHandler := events.NewLoggerSubscriber(a.Logger)
	for _, t := range []interfaces.EventType{
		interfaces.EventBatchCompleted,
		interfaces.EventReportCompleted,
		interfaces.EventReportFailed,
		interfaces.EventDeltaAlert,
	} {
		if _, err := a.EventService.Subscribe(t, logHandler); err != nil {
			return err
		}
	}
	return nil
}

// initServices initializes all business services in dependency order:
// generation → sentiment/embeddings → extraction → processor → delta/batch →
// sweep/trends/export.
func (a *App) initServices() error {
	var err error

	a.GenerationService, err = llm.NewService(a.ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize generation service: %w", err)
	}

	var sentimentCache *cache.Cache[*models.SentimentResult]
	var vectorCache *cache.Cache[[]float32]
	if a.Config.Cache.Enabled {
		sentimentCache = cache.New[*models.SentimentResult](a.Config.Cache.SentimentSize,
			common.ParseDuration(a.Config.Cache.SentimentTTL, cache.DefaultTTL))
		vectorCache = cache.New[[]float32](a.Config.Cache.EmbeddingSize,
			common.ParseDuration(a.Config.Cache.EmbeddingTTL, cache.DefaultTTL))
	}

	a.SentimentService = sentiment.NewService(a.GenerationService, sentimentCache, a.Config, a.Logger)

	// Embeddings are best-effort: a missing provider disables them
	var embedder interfaces.EmbeddingGenerator
	if a.Config.Embeddings.Enabled {
		provider, err := embeddings.NewGeminiProvider(a.ctx, a.Config, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Embedding provider unavailable - embeddings disabled")
		} else {
			a.EmbeddingService = embeddings.NewService(provider, vectorCache, &a.Config.Embeddings, a.Logger)
			embedder = a.EmbeddingService
		}
	}

	a.Parser = extraction.NewIXBRLParser(a.Logger)
	inspector := extraction.NewPDFInspector()
	a.ExtractorService = extraction.NewService(a.Parser, inspector, a.Logger)

	a.ProcessorService = processor.NewService(
		a.StorageManager,
		a.ExtractorService,
		inspector,
		a.SentimentService,
		embedder,
		a.EventService,
		a.Config.Processing,
		a.Logger,
	)

	a.DeltaService = delta.NewService(a.StorageManager, a.EventService, a.Config.Alerts, a.Logger)

	a.BatchService = batch.NewService(
		a.StorageManager,
		a.QueueManager,
		a.ProcessorService,
		a.EventService,
		a.Config.Batch,
		a.Logger,
	)

	a.WorkerPool = queue.NewWorkerPool(a.QueueManager, queue.ConfigFrom(a.Config.Queue), a.Logger)
	a.WorkerPool.RegisterHandler(models.MessageTypeBatchProcess, a.BatchService.HandleMessage)

	a.SweepService = sweep.NewService(a.StorageManager, a.Config.Sweep, a.Logger)
	if a.Config.Sweep.Enabled {
		a.SweepScheduler = sweep.NewScheduler(a.SweepService, a.Logger)
	}

	a.TrendService = trends.NewService(a.StorageManager, a.Logger)
	a.ExportService = export.NewService(a.StorageManager, a.TrendService, a.Logger)

	return nil
}

// initHandlers creates the HTTP handlers over the initialized services
func (a *App) initHandlers() {
	health := []handlers.HealthCheck{
		{Name: "storage", Check: a.StorageManager.Ping},
		{Name: "generation", Check: a.GenerationService.HealthCheck},
		{Name: "structured_parser", Check: a.Parser.HealthCheck},
	}
	if a.EmbeddingService != nil {
		health = append(health, handlers.HealthCheck{Name: "embeddings", Check: a.EmbeddingService.HealthCheck})
	}

	a.APIHandler = handlers.NewAPIHandler(health, a.Logger)
	a.ReportHandler = handlers.NewReportHandler(a.StorageManager, a.ProcessorService, a.Config.Processing.IncludeEmbeddings, a.Logger)
	a.BatchHandler = handlers.NewBatchHandler(a.BatchService, a.Logger)
	a.DeltaHandler = handlers.NewDeltaHandler(a.DeltaService, a.Logger)
	a.TrendHandler = handlers.NewTrendHandler(a.TrendService, a.Logger)
	a.ExportHandler = handlers.NewExportHandler(a.ExportService, a.Logger)
	a.SweepHandler = handlers.NewSweepHandler(a.SweepService, a.Logger)
	a.WSHandler = handlers.NewBatchStreamHandler(a.BatchService, a.EventService, a.Logger)
}

// Start launches the queue workers and, when enabled, the sweep schedule
func (a *App) Start() error {
	if a.SweepScheduler != nil {
		if err := a.SweepScheduler.Start(a.Config.Sweep.Schedule); err != nil {
			return fmt.Errorf("failed to start sweep scheduler: %w", err)
		}
	}
	a.WorkerPool.Start()
	a.workersStarted = true
	return nil
}

// Close stops background work and releases every resource
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SweepScheduler != nil {
		a.SweepScheduler.Stop()
	}

	if a.WorkerPool != nil && a.workersStarted {
		a.WorkerPool.Stop()
		a.Logger.Info().Msg("Worker pool stopped")
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.GenerationService != nil {
		if err := a.GenerationService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close generation service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.queueDB != nil {
		if err := a.queueDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue database")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
