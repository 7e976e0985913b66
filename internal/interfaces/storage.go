// -----------------------------------------------------------------------
// Last Modified: Monday, 13th July 2026 11:24:08 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// JobStorage - persistent record of processing jobs
type JobStorage interface {
	// CreateJob persists a new job. Status queued, progress 0.
	CreateJob(ctx context.Context, job *models.ProcessingJob) error

	// GetJob returns (nil, nil) for an unknown id so callers can tell
	// "not found" from a storage failure.
	GetJob(ctx context.Context, id string) (*models.ProcessingJob, error)

	// UpdateJob applies a merge-style partial update: only non-nil fields
	// change, UpdatedAt always refreshes.
	UpdateJob(ctx context.Context, id string, update *models.JobUpdate) error

	// ListJobs returns a user's jobs newest-first, optionally scoped to a
	// project. limit <= 0 means no limit.
	ListJobs(ctx context.Context, userID, projectID string, limit int) ([]*models.ProcessingJob, error)

	// GetJobsByStatus returns all jobs currently in the given status
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.ProcessingJob, error)

	// GetStuckJobs returns processing jobs not updated within the threshold
	GetStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.ProcessingJob, error)

	// GetJobStats aggregates counts per reporting bucket; empty userID or
	// projectID means unscoped.
	GetJobStats(ctx context.Context, userID, projectID string) (*models.JobStats, error)

	// DeleteJob removes a job record
	DeleteJob(ctx context.Context, id string) error

	// CleanupOldJobs deletes terminal-state jobs older than the cutoff and
	// returns how many were removed. Non-terminal jobs are never touched.
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	BlobStorage() BlobStorage
	SearchIndex() SearchIndex
	DB() interface{}
	Close() error
}
