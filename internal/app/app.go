// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/pipeline"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/services/chunker"
	"github.com/ternarybob/colligo/internal/services/converter"
	"github.com/ternarybob/colligo/internal/services/crawler"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/indexer"
	"github.com/ternarybob/colligo/internal/services/scheduler"
	badgerstore "github.com/ternarybob/colligo/internal/storage/badger"
)

// App is the explicit context object holding every component and its
// dependencies. Construction wires the full graph; Start and Stop manage
// component lifecycles in dependency order.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB             *badgerstore.BadgerDB
	StorageManager interfaces.StorageManager
	QueueManager   interfaces.QueueManager
	WorkerPool     *queue.WorkerPool

	EventService     interfaces.EventService
	CrawlerService   interfaces.CrawlerService
	Converter        interfaces.DocumentConverter
	ChunkerService   interfaces.ChunkerService
	IndexPublisher   interfaces.IndexPublisher
	PipelineService  *pipeline.Service
	SchedulerService interfaces.SchedulerService

	started bool
}

// New builds the application graph from configuration. Nothing starts yet;
// call Start to launch workers and the scheduler.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	storageManager := badgerstore.NewManager(db, logger)

	queueManager, err := queue.NewManager(db.Badger(), &cfg.Queue, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create queue manager: %w", err)
	}

	eventService := events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		db.Close()
		return nil, err
	}

	crawlerService := crawler.NewService(&cfg.Crawler, eventService, logger)
	converterService := converter.NewService(crawlerService, logger)
	chunkerService := chunker.NewService(&cfg.Chunker, logger)
	publisher := indexer.NewPublisher(storageManager.SearchIndex(), storageManager.BlobStorage(), &cfg.Indexer, logger)

	pipelineService := pipeline.NewService(
		storageManager.JobStorage(),
		storageManager.BlobStorage(),
		queueManager,
		converterService,
		chunkerService,
		publisher,
		eventService,
		&cfg.Pipeline,
		logger,
	)

	workerPool := queue.NewWorkerPool(queueManager, &cfg.Queue, logger)
	pipelineService.RegisterHandlers(workerPool)

	schedulerService := scheduler.NewService(logger)
	if err := registerMaintenanceJobs(schedulerService, pipelineService, &cfg.Pipeline); err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Config:           cfg,
		Logger:           logger,
		DB:               db,
		StorageManager:   storageManager,
		QueueManager:     queueManager,
		WorkerPool:       workerPool,
		EventService:     eventService,
		CrawlerService:   crawlerService,
		Converter:        converterService,
		ChunkerService:   chunkerService,
		IndexPublisher:   publisher,
		PipelineService:  pipelineService,
		SchedulerService: schedulerService,
	}, nil
}

func registerMaintenanceJobs(sched interfaces.SchedulerService, svc *pipeline.Service, cfg *common.PipelineConfig) error {
	if err := sched.RegisterJob("job-cleanup", cfg.CleanupSchedule,
		"Delete terminal jobs past retention", func() error {
			_, err := svc.CleanupOldJobs(context.Background())
			return err
		}); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	if err := sched.RegisterJob("stuck-job-reactivation", "@every 10m",
		"Requeue processing jobs idle past the stuck threshold", func() error {
			_, err := svc.ReactivateStuckJobs(context.Background(), cfg.StuckJobThreshold)
			return err
		}); err != nil {
		return fmt.Errorf("failed to register reactivation job: %w", err)
	}
	return nil
}

// Start launches the worker pool and the scheduler
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("app already started")
	}

	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		a.WorkerPool.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.started = true
	a.Logger.Info().Msg("Application started")
	return nil
}

// Stop shuts components down in reverse dependency order: producers first,
// then the queue, then storage.
func (a *App) Stop() {
	if a.started {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler shutdown error")
		}
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Worker pool shutdown error")
		}
	}

	if err := a.CrawlerService.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Crawler shutdown error")
	}
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service shutdown error")
	}
	if err := a.QueueManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Queue shutdown error")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage shutdown error")
	}

	a.started = false
	a.Logger.Info().Msg("Application stopped")
}
