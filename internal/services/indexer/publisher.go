// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 11:05:41 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/chunker"
)

const defaultBatchSize = 100

// Publisher uploads chunks to the search index in batches and mirrors the
// JSONL to blob storage as an audit artifact.
type Publisher struct {
	index  interfaces.SearchIndex
	blobs  interfaces.BlobStorage
	config *common.IndexerConfig
	logger arbor.ILogger
}

// NewPublisher creates a new index publisher
func NewPublisher(index interfaces.SearchIndex, blobs interfaces.BlobStorage, config *common.IndexerConfig, logger arbor.ILogger) interfaces.IndexPublisher {
	return &Publisher{
		index:  index,
		blobs:  blobs,
		config: config,
		logger: logger,
	}
}

// PublishChunks indexes the chunks in batches. A document that fails within
// a batch is logged and counted without aborting the remaining batches;
// only a batch-level upload failure returns an error.
func (p *Publisher) PublishChunks(ctx context.Context, jobID, projectID string, chunks []models.DocumentChunk) (int, int, error) {
	if len(chunks) == 0 {
		p.logger.Debug().Str("job_id", jobID).Msg("No chunks to publish")
		return 0, 0, nil
	}

	batchSize := p.config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	docs := make([]*models.IndexDocument, len(chunks))
	for i, chunk := range chunks {
		docs[i] = &models.IndexDocument{
			ID:         chunk.ID,
			ProjectID:  projectID,
			SourceFile: chunk.Metadata.SourceFile,
			Title:      chunk.Metadata.Title,
			Content:    chunk.Content,
			ChunkIndex: chunk.Metadata.ChunkIndex,
			WordCount:  chunk.Metadata.WordCount,
		}
	}

	var indexed, failed int
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		results, err := p.index.UploadBatch(ctx, docs[start:end])
		if err != nil {
			return indexed, failed, fmt.Errorf("batch upload failed at document %d: %w", start, err)
		}
		for _, result := range results {
			if result.Succeeded {
				indexed++
				continue
			}
			failed++
			p.logger.Warn().
				Str("job_id", jobID).
				Str("document_id", result.ID).
				Str("error", result.Error).
				Msg("Document failed to index")
		}
	}

	p.backup(ctx, jobID, projectID, chunks)

	p.logger.Info().
		Str("job_id", jobID).
		Str("project_id", projectID).
		Int("indexed", indexed).
		Int("failed", failed).
		Msg("Chunks published to search index")

	return indexed, failed, nil
}

// backup mirrors the published JSONL to blob storage. A backup failure is
// logged but never fails the publish; the index upload already happened.
func (p *Publisher) backup(ctx context.Context, jobID, projectID string, chunks []models.DocumentChunk) {
	data, err := chunker.ChunksToJSONL(chunks)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to encode index backup")
		return
	}

	now := time.Now().UTC()
	name := fmt.Sprintf("index-backup/%s/%s.jsonl", projectID, now.Format("20060102-150405"))
	metadata := map[string]string{
		"project_id": projectID,
		"job_id":     jobID,
		"indexed_at": now.Format(time.RFC3339),
	}
	if _, err := p.blobs.Put(ctx, name, data, metadata); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Str("blob", name).Msg("Failed to write index backup")
		return
	}

	p.logger.Debug().Str("job_id", jobID).Str("blob", name).Msg("Index backup written")
}
