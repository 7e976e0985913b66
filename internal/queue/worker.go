package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// WorkerPool polls the stage queues and dispatches envelopes to handlers
// registered by message type
type WorkerPool struct {
	queueMgr     *Manager
	handlers     map[models.MessageType]interfaces.MessageHandler
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr *Manager, config *common.QueueConfig, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &WorkerPool{
		queueMgr:     queueMgr,
		handlers:     make(map[models.MessageType]interfaces.MessageHandler),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a handler for a message type. Handlers must be
// registered before Start.
func (wp *WorkerPool) RegisterHandler(msgType models.MessageType, handler interfaces.MessageHandler) {
	wp.handlers[msgType] = handler
	wp.logger.Debug().
		Str("message_type", string(msgType)).
		Msg("Message handler registered")
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight handlers to return
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to reduce transaction conflicts on the shared
	// database; spread workers evenly across the poll interval.
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processNext(workerID); err != nil {
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processNext polls the stage queues in pipeline order and processes at
// most one message
func (wp *WorkerPool) processNext(workerID int) error {
	for _, queue := range interfaces.QueueNames {
		env, deleteFn, err := wp.queueMgr.Receive(wp.ctx, queue)
		if err != nil {
			if errors.Is(err, models.ErrNoMessage) {
				continue
			}
			return err
		}
		return wp.dispatch(workerID, queue, env, deleteFn)
	}
	return models.ErrNoMessage
}

func (wp *WorkerPool) dispatch(workerID int, queue interfaces.QueueName, env *models.Envelope, deleteFn interfaces.DeleteFunc) error {
	handler, exists := wp.handlers[env.Type]
	if !exists {
		wp.logger.Error().
			Str("message_type", string(env.Type)).
			Str("message_id", env.ID).
			Str("queue", string(queue)).
			Msg("No handler registered for message type")
		// Unroutable, acknowledge so it never redelivers
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unroutable message")
		}
		return nil
	}

	wp.logger.Debug().
		Str("message_id", env.ID).
		Str("message_type", string(env.Type)).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := handler(wp.ctx, env)
	duration := time.Since(startTime)

	if handlerErr != nil {
		// Leave the message unacknowledged; it redelivers after the
		// visibility timeout and is eventually dropped as poison.
		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", env.ID).
			Str("message_type", string(env.Type)).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Message handler failed")
		return handlerErr
	}

	wp.logger.Info().
		Str("message_id", env.ID).
		Str("message_type", string(env.Type)).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed")

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", env.ID).
			Msg("Failed to acknowledge message after processing")
		return err
	}
	return nil
}
