// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// DocumentConverter dispatches inputs to per-format extraction
type DocumentConverter interface {
	// ConvertFile converts one uploaded blob to markdown. Extraction
	// failures are returned as errors; the caller marks the job failed.
	ConvertFile(ctx context.Context, fileName, mimeType string, data []byte) (*models.ConversionResult, error)

	// ConvertURL crawls a seed URL and converts each page. It never
	// returns an error for crawl failures: a fully failed crawl yields a
	// single diagnostic result whose Metadata.Error is set.
	ConvertURL(ctx context.Context, jobID, seedURL string, params models.CrawlParams) ([]*models.ConversionResult, error)
}

// CrawlerService runs bounded multi-page crawls
type CrawlerService interface {
	// Crawl fetches pages breadth-first from the seed URL. Page failures
	// land in the result's Errors; the returned error is non-nil only for
	// unusable input (e.g. an invalid seed URL).
	Crawl(ctx context.Context, jobID, seedURL string, params models.CrawlParams) (*models.CrawlResult, error)

	// Stop releases crawler resources (browser allocator)
	Stop() error
}

// ChunkerService splits converted markdown into bounded overlapping chunks
type ChunkerService interface {
	ChunkMarkdown(markdown, projectID, sourceFile string) ([]models.DocumentChunk, error)
}

// IndexPublisher pushes chunks into the search index in batches and mirrors
// the JSONL to blob storage as an audit artifact.
type IndexPublisher interface {
	// PublishChunks returns the indexed and failed document counts. Partial
	// failures never produce an error; only transport-level batch failures do.
	PublishChunks(ctx context.Context, jobID, projectID string, chunks []models.DocumentChunk) (indexed, failed int, err error)
}

// PipelineService is the submission and operations surface of the pipeline
type PipelineService interface {
	SubmitFile(ctx context.Context, userID, projectID, fileName, mimeType string, data []byte) (*models.ProcessingJob, error)
	SubmitURL(ctx context.Context, userID, projectID, seedURL string, params models.CrawlParams) (*models.ProcessingJob, error)
	SubmitFolder(ctx context.Context, userID, projectID, prefix string) (*models.ProcessingJob, error)

	// ReactivateStuckJobs resets processing jobs older than the threshold
	// back to queued and re-sends their messages. This is the only
	// supported escape for a wedged job.
	ReactivateStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// SchedulerService runs background maintenance on cron schedules
type SchedulerService interface {
	RegisterJob(name, schedule, description string, handler func() error) error
	Start() error
	Stop() error
	IsRunning() bool
}
