package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// SearchIndex is the indexing target. UploadBatch reports per-document
// outcomes rather than failing wholesale so the publisher can count and
// log partial failures without aborting a job.
type SearchIndex interface {
	UploadBatch(ctx context.Context, docs []*models.IndexDocument) ([]models.IndexUploadResult, error)

	// Search returns documents in a project whose content or title contains
	// the term, case-insensitive.
	Search(ctx context.Context, projectID, term string, limit int) ([]*models.IndexDocument, error)

	// Count returns the number of indexed documents for a project; empty
	// projectID counts everything.
	Count(ctx context.Context, projectID string) (int, error)
}
