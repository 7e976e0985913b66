// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service orchestrates the four-stage ingestion pipeline. Submissions create
// the job record and its first message; stage handlers (handlers.go) carry
// the job through processing, chunking and indexing.
type Service struct {
	jobs      interfaces.JobStorage
	blobs     interfaces.BlobStorage
	queue     interfaces.QueueManager
	converter interfaces.DocumentConverter
	chunker   interfaces.ChunkerService
	publisher interfaces.IndexPublisher
	events    interfaces.EventService
	config    *common.PipelineConfig
	logger    arbor.ILogger
}

func NewService(
	jobs interfaces.JobStorage,
	blobs interfaces.BlobStorage,
	queue interfaces.QueueManager,
	converter interfaces.DocumentConverter,
	chunker interfaces.ChunkerService,
	publisher interfaces.IndexPublisher,
	events interfaces.EventService,
	config *common.PipelineConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		jobs:      jobs,
		blobs:     blobs,
		queue:     queue,
		converter: converter,
		chunker:   chunker,
		publisher: publisher,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// RegisterHandlers wires the stage handlers into the worker pool
func (s *Service) RegisterHandlers(pool interfaces.WorkerPool) {
	pool.RegisterHandler(models.MessageTypeProcessing, s.HandleProcessing)
	pool.RegisterHandler(models.MessageTypeChunking, s.HandleChunking)
	pool.RegisterHandler(models.MessageTypeIndexing, s.HandleIndexing)
}

// SubmitFile stores the upload blob, creates a queued job and sends its
// processing message.
func (s *Service) SubmitFile(ctx context.Context, userID, projectID, fileName, mimeType string, data []byte) (*models.ProcessingJob, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file upload: %s", fileName)
	}

	jobID := common.NewJobID()
	blobName := fmt.Sprintf("%s/upload/%s", jobID, fileName)
	if _, err := s.blobs.Put(ctx, blobName, data, map[string]string{
		"project_id":   projectID,
		"stage":        "upload",
		"content_type": mimeType,
	}); err != nil {
		return nil, fmt.Errorf("failed to store upload blob: %w", err)
	}

	job := &models.ProcessingJob{
		ID:          jobID,
		UserID:      userID,
		ProjectID:   projectID,
		InputType:   models.InputTypeFile,
		InputSource: blobName,
		FileName:    fileName,
		FileSize:    int64(len(data)),
		MimeType:    mimeType,
		Status:      models.JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.submit(ctx, job)
}

// SubmitURL creates a queued crawl job. Crawl bounds travel both on the job
// record and the message so stuck jobs can be reactivated from the record.
func (s *Service) SubmitURL(ctx context.Context, userID, projectID, seedURL string, params models.CrawlParams) (*models.ProcessingJob, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("seed URL must be absolute http(s): %s", seedURL)
	}

	job := &models.ProcessingJob{
		ID:          common.NewJobID(),
		UserID:      userID,
		ProjectID:   projectID,
		InputType:   models.InputTypeURL,
		InputSource: seedURL,
		Status:      models.JobStatusQueued,
		Crawl:       &params,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.submit(ctx, job)
}

// SubmitFolder creates a queued job whose input is a blob prefix; the
// process stage expands it to every blob beneath the prefix.
func (s *Service) SubmitFolder(ctx context.Context, userID, projectID, prefix string) (*models.ProcessingJob, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, fmt.Errorf("folder prefix must not be empty")
	}

	job := &models.ProcessingJob{
		ID:          common.NewJobID(),
		UserID:      userID,
		ProjectID:   projectID,
		InputType:   models.InputTypeFolder,
		InputSource: prefix,
		Status:      models.JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.submit(ctx, job)
}

func (s *Service) submit(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.sendProcessingMessage(ctx, job); err != nil {
		// The job record exists but will sit queued forever without its
		// message; fail it so the submitter sees the outcome.
		s.failJob(ctx, job.ID, fmt.Sprintf("failed to enqueue job: %v", err))
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("input_type", string(job.InputType)).
		Str("source", job.InputSource).
		Msg("Job submitted")
	s.publishStatus(ctx, job.ID, models.JobStatusQueued, 0, "")
	return job, nil
}

func (s *Service) sendProcessingMessage(ctx context.Context, job *models.ProcessingJob) error {
	msg := &models.ProcessingJobMessage{
		JobID:       job.ID,
		UserID:      job.UserID,
		ProjectID:   job.ProjectID,
		InputType:   job.InputType,
		InputSource: job.InputSource,
		FileName:    job.FileName,
		FileSize:    job.FileSize,
		MimeType:    job.MimeType,
		Crawl:       job.Crawl,
	}
	env, err := models.NewEnvelope(models.MessageTypeProcessing, msg)
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, interfaces.QueueProcessing, env)
}

// ReactivateStuckJobs resets processing jobs whose UpdatedAt is older than
// the threshold back to queued and re-sends their processing messages,
// reconstructed from the job records alone.
func (s *Service) ReactivateStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.jobs.GetStuckJobs(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	reactivated := 0
	for _, job := range stuck {
		queued := models.JobStatusQueued
		progress := 0
		empty := ""
		if err := s.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{
			Status:       &queued,
			Progress:     &progress,
			ErrorMessage: &empty,
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reset stuck job")
			continue
		}

		if err := s.sendProcessingMessage(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue stuck job")
			continue
		}

		s.logger.Info().
			Str("job_id", job.ID).
			Dur("stuck_for", time.Since(job.UpdatedAt)).
			Msg("Reactivated stuck job")
		s.publishStatus(ctx, job.ID, models.JobStatusQueued, 0, "")
		reactivated++
	}
	return reactivated, nil
}

// CleanupOldJobs removes terminal jobs past the configured retention. Run by
// the scheduler on the configured cron schedule.
func (s *Service) CleanupOldJobs(ctx context.Context) (int, error) {
	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	removed, err := s.jobs.CleanupOldJobs(ctx, retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Cleaned up old jobs")
	}
	return removed, nil
}

// failJob marks a job failed with a human-readable message. Best effort: a
// storage failure here is logged, not propagated, because the caller is
// already on an error path.
func (s *Service) failJob(ctx context.Context, jobID, message string) {
	failed := models.JobStatusFailed
	if err := s.jobs.UpdateJob(ctx, jobID, &models.JobUpdate{
		Status:       &failed,
		ErrorMessage: &message,
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job failed")
		return
	}
	s.logger.Warn().Str("job_id", jobID).Str("error", message).Msg("Job failed")
	s.publishStatus(ctx, jobID, models.JobStatusFailed, 0, message)
}

func (s *Service) publishStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, errMsg string) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobStatus,
		Payload: models.JobStatusUpdate{
			JobID:    jobID,
			Status:   status,
			Progress: progress,
			Error:    errMsg,
		},
	})
}
