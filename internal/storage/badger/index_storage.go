package badger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// IndexStorage implements the SearchIndex interface on BadgerHold
type IndexStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIndexStorage creates a new IndexStorage instance
func NewIndexStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SearchIndex {
	return &IndexStorage{
		db:     db,
		logger: logger,
	}
}

// UploadBatch upserts each document and reports a per-document outcome.
// One bad document never aborts the rest of the batch.
func (s *IndexStorage) UploadBatch(ctx context.Context, docs []*models.IndexDocument) ([]models.IndexUploadResult, error) {
	results := make([]models.IndexUploadResult, 0, len(docs))
	for _, doc := range docs {
		result := models.IndexUploadResult{ID: doc.ID}
		if doc.ID == "" {
			result.Error = "document ID is required"
			results = append(results, result)
			continue
		}
		if doc.Content == "" {
			result.Error = "document content is required"
			results = append(results, result)
			continue
		}
		if doc.IndexedAt.IsZero() {
			doc.IndexedAt = time.Now().UTC()
		}
		if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
			result.Error = err.Error()
			s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Failed to index document")
		} else {
			result.Succeeded = true
		}
		results = append(results, result)
	}
	return results, nil
}

// Search does a case-insensitive substring match over content and title.
// BadgerHold only offers RegExp matching, so the term is quoted into a
// literal pattern. Slow for large corpora but fine at this scale.
func (s *IndexStorage) Search(ctx context.Context, projectID, term string, limit int) ([]*models.IndexDocument, error) {
	regex, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
	if err != nil {
		return nil, fmt.Errorf("invalid search term: %w", err)
	}

	var query *badgerhold.Query
	if projectID != "" {
		query = badgerhold.Where("ProjectID").Eq(projectID).And("Content").RegExp(regex).
			Or(badgerhold.Where("ProjectID").Eq(projectID).And("Title").RegExp(regex))
	} else {
		query = badgerhold.Where("Content").RegExp(regex).
			Or(badgerhold.Where("Title").RegExp(regex))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []models.IndexDocument
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := make([]*models.IndexDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *IndexStorage) Count(ctx context.Context, projectID string) (int, error) {
	var query *badgerhold.Query
	if projectID != "" {
		query = badgerhold.Where("ProjectID").Eq(projectID)
	}

	count, err := s.db.Store().Count(&models.IndexDocument{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed documents: %w", err)
	}
	return int(count), nil
}
