// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 09:41:12 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface on BadgerHold
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("job already exists: %s", job.ID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateJob applies the non-nil fields of update to the stored job. Status
// changes are checked against the pipeline transition graph; the one edge
// outside the graph, processing back to queued, is permitted because it is
// the operator reactivation path for stuck jobs.
func (s *JobStorage) UpdateJob(ctx context.Context, id string, update *models.JobUpdate) error {
	var job models.ProcessingJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job not found: %s", id)
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if update.Status != nil && *update.Status != job.Status {
		next := *update.Status
		reactivating := job.Status == models.JobStatusProcessing && next == models.JobStatusQueued
		if !reactivating && !job.Status.CanTransitionTo(next) {
			return fmt.Errorf("invalid status transition: %s -> %s", job.Status, next)
		}
		job.Status = next
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.Results != nil {
		job.Results = mergeResults(job.Results, update.Results)
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// mergeResults folds the incoming stage results into whatever is already
// recorded. Zero-valued fields in next leave the stored value alone so a
// later stage never clobbers what an earlier stage wrote.
func mergeResults(prev, next *models.JobResults) *models.JobResults {
	if prev == nil {
		return next
	}
	merged := *prev
	if len(next.MarkdownFiles) > 0 {
		merged.MarkdownFiles = next.MarkdownFiles
	}
	if len(next.ChunkFiles) > 0 {
		merged.ChunkFiles = next.ChunkFiles
	}
	if next.IndexedDocuments > 0 {
		merged.IndexedDocuments = next.IndexedDocuments
	}
	if next.FailedDocuments > 0 {
		merged.FailedDocuments = next.FailedDocuments
	}
	if next.PagesCrawled > 0 {
		merged.PagesCrawled = next.PagesCrawled
	}
	if len(next.CrawlErrors) > 0 {
		merged.CrawlErrors = next.CrawlErrors
	}
	if next.ProcessingTimeMs > 0 {
		merged.ProcessingTimeMs = next.ProcessingTimeMs
	}
	return &merged
}

func (s *JobStorage) ListJobs(ctx context.Context, userID, projectID string, limit int) ([]*models.ProcessingJob, error) {
	var query *badgerhold.Query
	if userID != "" {
		query = badgerhold.Where("UserID").Eq(userID)
	} else {
		query = badgerhold.Where("ID").Ne("")
	}
	if projectID != "" {
		query = query.And("ProjectID").Eq(projectID)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.ProcessingJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobPointers(jobs), nil
}

func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}
	return jobPointers(jobs), nil
}

// GetStuckJobs returns processing jobs whose last update is older than the
// threshold. Queued jobs are excluded: a queued job still has a live message
// on the queue and will be picked up without intervention.
func (s *JobStorage) GetStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.ProcessingJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var jobs []models.ProcessingJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing).And("UpdatedAt").Lt(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to get stuck jobs: %w", err)
	}
	return jobPointers(jobs), nil
}

func (s *JobStorage) GetJobStats(ctx context.Context, userID, projectID string) (*models.JobStats, error) {
	var query *badgerhold.Query
	if userID != "" {
		query = badgerhold.Where("UserID").Eq(userID)
	} else {
		query = badgerhold.Where("ID").Ne("")
	}
	if projectID != "" {
		query = query.And("ProjectID").Eq(projectID)
	}

	var jobs []models.ProcessingJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}

	stats := &models.JobStats{Total: len(jobs)}
	for i := range jobs {
		switch jobs[i].Status.StatsBucket() {
		case "queued":
			stats.Queued++
		case "processing":
			stats.Processing++
		case "completed":
			stats.Completed++
		case "failed":
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.ProcessingJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// CleanupOldJobs deletes terminal jobs whose last update predates the cutoff.
// Jobs still moving through the pipeline are never touched regardless of age.
func (s *JobStorage) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var jobs []models.ProcessingJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("UpdatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find old jobs: %w", err)
	}

	deleted := 0
	for i := range jobs {
		if !jobs[i].Status.IsTerminal() {
			continue
		}
		if err := s.db.Store().Delete(jobs[i].ID, &models.ProcessingJob{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to delete old job")
			continue
		}
		deleted++
	}
	return deleted, nil
}

func jobPointers(jobs []models.ProcessingJob) []*models.ProcessingJob {
	result := make([]*models.ProcessingJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result
}
