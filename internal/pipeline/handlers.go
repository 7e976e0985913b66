package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/chunker"
)

// Stage handlers. Each is invoked by the worker pool with at-least-once
// delivery: a nil return acknowledges the message, an error leaves it for
// redelivery. Handlers therefore ack everything that retrying cannot fix
// (missing jobs, conversion failures) and return errors only for transient
// infrastructure faults.

// HandleProcessing converts the job's input into markdown blobs and hands
// the job to the chunking stage.
func (s *Service) HandleProcessing(ctx context.Context, env *models.Envelope) error {
	var msg models.ProcessingJobMessage
	if err := env.DecodeBody(&msg); err != nil {
		s.logger.Warn().Err(err).Str("envelope_id", env.ID).Msg("Dropping undecodable processing message")
		return nil
	}

	job, ok, err := s.loadJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		// The chunking handoff is two writes: the status advance, then the
		// enqueue. A crash between them leaves the job at chunking with no
		// chunking message in flight, so a redelivered processing message
		// re-sends the handoff instead of dropping. The chunking stage is
		// repeat-safe, so a duplicate message is harmless. Once ChunkFiles
		// is recorded the chunking stage has run and its own redelivery
		// covers any remaining race.
		if job.Status == models.JobStatusChunking && job.Results != nil &&
			len(job.Results.MarkdownFiles) > 0 && len(job.Results.ChunkFiles) == 0 {
			s.logger.Info().
				Str("job_id", job.ID).
				Msg("Redelivered processing message for chunking job, re-sending chunking handoff")
			return s.enqueueChunking(ctx, job.ID, msg.ProjectID, job.Results.MarkdownFiles)
		}
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Dropping redelivered processing message for advanced job")
		return nil
	}

	if err := s.advance(ctx, job, models.JobStatusProcessing, 10, nil); err != nil {
		return err
	}

	start := time.Now()
	results, convErr := s.convert(ctx, &msg)
	if convErr != nil {
		s.failJob(ctx, job.ID, fmt.Sprintf("conversion failed: %v", convErr))
		return nil
	}

	markdownFiles, err := s.storeMarkdown(ctx, msg.JobID, msg.ProjectID, results)
	if err != nil {
		return err
	}

	jobResults := &models.JobResults{
		MarkdownFiles:    markdownFiles,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if msg.InputType == models.InputTypeURL && len(results) > 0 {
		jobResults.PagesCrawled = results[0].Metadata.PagesCrawled
	}

	// A crawl that produced nothing fails the job, but its diagnostic
	// artifact is already in blob storage for inspection.
	if msg.InputType == models.InputTypeURL && len(results) == 1 && results[0].Metadata.Error != "" {
		jobResults.CrawlErrors = []models.CrawlError{{
			URL:       msg.InputSource,
			Error:     results[0].Metadata.Error,
			Timestamp: time.Now().UTC(),
		}}
		if err := s.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Results: jobResults}); err != nil {
			return err
		}
		s.failJob(ctx, job.ID, results[0].Metadata.Error)
		return nil
	}

	if err := s.advance(ctx, job, models.JobStatusChunking, 40, jobResults); err != nil {
		return err
	}

	if err := s.enqueueChunking(ctx, msg.JobID, msg.ProjectID, markdownFiles); err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("markdown_files", len(markdownFiles)).
		Msg("Processing stage complete")
	return nil
}

// enqueueChunking sends the chunking stage its message
func (s *Service) enqueueChunking(ctx context.Context, jobID, projectID string, markdownFiles []string) error {
	chunkMsg := &models.ChunkingJobMessage{
		JobID:         jobID,
		ProjectID:     projectID,
		MarkdownFiles: markdownFiles,
	}
	next, err := models.NewEnvelope(models.MessageTypeChunking, chunkMsg)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, interfaces.QueueChunking, next); err != nil {
		return fmt.Errorf("failed to enqueue chunking message: %w", err)
	}
	return nil
}

// HandleChunking splits each markdown blob into chunks, stores them as
// JSONL blobs and hands the job to the indexing stage.
func (s *Service) HandleChunking(ctx context.Context, env *models.Envelope) error {
	var msg models.ChunkingJobMessage
	if err := env.DecodeBody(&msg); err != nil {
		s.logger.Warn().Err(err).Str("envelope_id", env.ID).Msg("Dropping undecodable chunking message")
		return nil
	}

	job, ok, err := s.loadJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if job.Status != models.JobStatusChunking {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Dropping redelivered chunking message for advanced job")
		return nil
	}

	if err := s.advance(ctx, job, models.JobStatusChunking, 50, nil); err != nil {
		return err
	}

	var chunkFiles []string
	totalChunks := 0
	for n, name := range msg.MarkdownFiles {
		data, err := s.blobs.Get(ctx, name)
		if err != nil {
			if errors.Is(err, interfaces.ErrBlobNotFound) {
				s.failJob(ctx, job.ID, fmt.Sprintf("markdown blob %s missing", name))
				return nil
			}
			return err
		}

		chunks, err := s.chunker.ChunkMarkdown(string(data), msg.ProjectID, name)
		if err != nil {
			// One empty document does not sink the job; the job fails only
			// when no file yields chunks.
			if errors.Is(err, chunker.ErrEmptyDocument) {
				continue
			}
			s.failJob(ctx, job.ID, fmt.Sprintf("chunking %s failed: %v", name, err))
			return nil
		}
		if len(chunks) == 0 {
			continue
		}

		jsonl, err := chunker.ChunksToJSONL(chunks)
		if err != nil {
			s.failJob(ctx, job.ID, fmt.Sprintf("encoding chunks for %s failed: %v", name, err))
			return nil
		}

		chunkName := fmt.Sprintf("%s/%d.chunks.jsonl", msg.JobID, n)
		if _, err := s.blobs.Put(ctx, chunkName, jsonl, map[string]string{
			"project_id":  msg.ProjectID,
			"stage":       "chunks",
			"source_file": name,
		}); err != nil {
			return fmt.Errorf("failed to store chunk blob %s: %w", chunkName, err)
		}
		chunkFiles = append(chunkFiles, chunkName)
		totalChunks += len(chunks)
	}

	if len(chunkFiles) == 0 {
		s.failJob(ctx, job.ID, "no chunks produced from any markdown file")
		return nil
	}

	if err := s.advance(ctx, job, models.JobStatusChunking, 70, &models.JobResults{ChunkFiles: chunkFiles}); err != nil {
		return err
	}

	indexMsg := &models.IndexingJobMessage{
		JobID:      msg.JobID,
		ProjectID:  msg.ProjectID,
		ChunkFiles: chunkFiles,
	}
	next, err := models.NewEnvelope(models.MessageTypeIndexing, indexMsg)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, interfaces.QueueIndexing, next); err != nil {
		return fmt.Errorf("failed to enqueue indexing message: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("chunk_files", len(chunkFiles)).
		Int("chunks", totalChunks).
		Msg("Chunking stage complete")
	return nil
}

// HandleIndexing publishes every chunk blob to the search index and marks
// the job completed.
func (s *Service) HandleIndexing(ctx context.Context, env *models.Envelope) error {
	var msg models.IndexingJobMessage
	if err := env.DecodeBody(&msg); err != nil {
		s.logger.Warn().Err(err).Str("envelope_id", env.ID).Msg("Dropping undecodable indexing message")
		return nil
	}

	job, ok, err := s.loadJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if job.Status != models.JobStatusChunking && job.Status != models.JobStatusIndexing {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Dropping redelivered indexing message for advanced job")
		return nil
	}

	if err := s.advance(ctx, job, models.JobStatusIndexing, 80, nil); err != nil {
		return err
	}

	var chunks []models.DocumentChunk
	for _, name := range msg.ChunkFiles {
		data, err := s.blobs.Get(ctx, name)
		if err != nil {
			if errors.Is(err, interfaces.ErrBlobNotFound) {
				s.failJob(ctx, job.ID, fmt.Sprintf("chunk blob %s missing", name))
				return nil
			}
			return err
		}
		fileChunks, err := chunker.JSONLToChunks(data)
		if err != nil {
			s.failJob(ctx, job.ID, fmt.Sprintf("parsing chunk blob %s failed: %v", name, err))
			return nil
		}
		chunks = append(chunks, fileChunks...)
	}

	indexed, failed, err := s.publisher.PublishChunks(ctx, msg.JobID, msg.ProjectID, chunks)
	if err != nil {
		return fmt.Errorf("index publish failed: %w", err)
	}

	results := &models.JobResults{
		IndexedDocuments: indexed,
		FailedDocuments:  failed,
		ProcessingTimeMs: time.Since(job.CreatedAt).Milliseconds(),
	}
	if err := s.advance(ctx, job, models.JobStatusCompleted, 100, results); err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("indexed", indexed).
		Int("failed", failed).
		Msg("Job completed")
	return nil
}

// convert runs the appropriate converter for the message's input type
func (s *Service) convert(ctx context.Context, msg *models.ProcessingJobMessage) ([]*models.ConversionResult, error) {
	switch msg.InputType {
	case models.InputTypeFile:
		data, err := s.blobs.Get(ctx, msg.InputSource)
		if err != nil {
			return nil, err
		}
		result, err := s.converter.ConvertFile(ctx, msg.FileName, msg.MimeType, data)
		if err != nil {
			return nil, err
		}
		return []*models.ConversionResult{result}, nil

	case models.InputTypeFolder:
		names, err := s.blobs.List(ctx, msg.InputSource)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no blobs under prefix %s", msg.InputSource)
		}
		var results []*models.ConversionResult
		for _, name := range names {
			data, err := s.blobs.Get(ctx, name)
			if err != nil {
				return nil, err
			}
			result, err := s.converter.ConvertFile(ctx, name, "", data)
			if err != nil {
				return nil, fmt.Errorf("converting %s: %w", name, err)
			}
			results = append(results, result)
		}
		return results, nil

	case models.InputTypeURL:
		params := models.CrawlParams{}
		if msg.Crawl != nil {
			params = *msg.Crawl
		}
		return s.converter.ConvertURL(ctx, msg.JobID, msg.InputSource, params)

	default:
		return nil, fmt.Errorf("unknown input type %s", msg.InputType)
	}
}

// storeMarkdown uploads one markdown blob per conversion result, named by
// position within the job.
func (s *Service) storeMarkdown(ctx context.Context, jobID, projectID string, results []*models.ConversionResult) ([]string, error) {
	names := make([]string, 0, len(results))
	for n, result := range results {
		name := fmt.Sprintf("%s/%d.md", jobID, n)
		if _, err := s.blobs.Put(ctx, name, []byte(result.Markdown), map[string]string{
			"project_id":  projectID,
			"stage":       "markdown",
			"source_file": result.Metadata.SourceFile,
		}); err != nil {
			return nil, fmt.Errorf("failed to store markdown blob %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// loadJob fetches the job for a message. A missing job acknowledges the
// message: the record was deleted, so retrying cannot succeed.
func (s *Service) loadJob(ctx context.Context, jobID string) (*models.ProcessingJob, bool, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		s.logger.Warn().Str("job_id", jobID).Msg("Dropping message for unknown job")
		return nil, false, nil
	}
	return job, true, nil
}

// advance moves a job to the next status with the given progress, merging
// any stage results, and publishes the transition. Re-applying the current
// status (redelivery, intra-stage progress) is allowed; any other illegal
// transition is an error.
func (s *Service) advance(ctx context.Context, job *models.ProcessingJob, next models.JobStatus, progress int, results *models.JobResults) error {
	if job.Status != next && !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for job %s", job.Status, next, job.ID)
	}

	update := &models.JobUpdate{
		Status:   &next,
		Progress: &progress,
		Results:  results,
	}
	if err := s.jobs.UpdateJob(ctx, job.ID, update); err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	job.Status = next
	job.Progress = progress

	s.publishStatus(ctx, job.ID, next, progress, "")
	return nil
}
