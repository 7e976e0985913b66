// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 10:30:18 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ErrEmptyDocument is returned when a document has no body to chunk. The
// pipeline skips such documents rather than failing the job.
var ErrEmptyDocument = errors.New("document has no chunkable content")

// boundaryWindow is how far either side of the default cut point the
// splitter looks for a natural boundary.
const boundaryWindow = 200

// Service implements boundary-aware markdown chunking
type Service struct {
	config *common.ChunkerConfig
	logger arbor.ILogger
}

// NewService creates a new chunker service
func NewService(config *common.ChunkerConfig, logger arbor.ILogger) interfaces.ChunkerService {
	return &Service{
		config: config,
		logger: logger,
	}
}

// ChunkMarkdown strips the document's front matter and splits the body into
// bounded, overlapping chunks tagged with metadata carried over from the
// front matter. ChunkIndex runs contiguously from zero in emission order.
func (s *Service) ChunkMarkdown(markdown, projectID, sourceFile string) ([]models.DocumentChunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("empty markdown content: %w", ErrEmptyDocument)
	}

	meta, body := parseFrontMatter(markdown)
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("no content after front matter: %w", ErrEmptyDocument)
	}

	if sourceFile == "" {
		sourceFile = meta["source_file"]
	}

	pieces := s.split(body)

	chunks := make([]models.DocumentChunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, models.DocumentChunk{
			ID:      chunkID(projectID, sourceFile, i),
			Content: content,
			Metadata: models.ChunkMetadata{
				SourceFile:   sourceFile,
				DocumentType: meta["document_type"],
				ChunkIndex:   i,
				WordCount:    len(strings.Fields(content)),
				ProjectID:    projectID,
				CrawlTime:    meta["crawl_time"],
				Title:        meta["title"],
				Created:      meta["created"],
				Modified:     meta["modified"],
			},
		})
	}

	s.logger.Debug().
		Str("source_file", sourceFile).
		Int("chunks", len(chunks)).
		Int("body_size", len(body)).
		Msg("Markdown chunked")

	return chunks, nil
}

// split cuts body into pieces no larger than MaxChunkSize plus the boundary
// tolerance. Consecutive pieces overlap by OverlapSize characters so text
// near a cut appears in both neighbors.
func (s *Service) split(body string) []string {
	maxSize := s.config.MaxChunkSize
	overlap := s.config.OverlapSize

	if len(body) <= maxSize {
		return []string{body}
	}

	var pieces []string
	start := 0
	for start < len(body) {
		end := start + maxSize
		if end >= len(body) {
			pieces = append(pieces, body[start:])
			break
		}

		boundary := end
		if s.config.RespectParagraphs {
			boundary = findBoundary(body, start, end)
		}

		pieces = append(pieces, body[start:boundary])

		next := boundary - overlap
		if next < 0 {
			next = 0
		}
		// The cursor must always move forward, even when the overlap
		// reaches back past the previous start
		if next <= start {
			next = boundary
		}
		start = next
	}
	return pieces
}

// findBoundary searches a window around the default cut point for, in
// priority order, a paragraph break, a line break, then a sentence end,
// and returns the position just after the separator. When the window holds
// none, the raw cut point is returned.
func findBoundary(body string, start, end int) int {
	windowStart := end - boundaryWindow
	if windowStart < start {
		windowStart = start
	}
	windowEnd := end + boundaryWindow
	if windowEnd > len(body) {
		windowEnd = len(body)
	}

	window := body[windowStart:windowEnd]
	for _, sep := range []string{"\n\n", "\n", ". "} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			boundary := windowStart + i + len(sep)
			if boundary > start {
				return boundary
			}
		}
	}
	return end
}

// chunkID derives a stable ID from the chunk's coordinates so re-running a
// redelivered chunking message upserts the same documents instead of
// duplicating them.
func chunkID(projectID, sourceFile string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", projectID, sourceFile, index)))
	return hex.EncodeToString(sum[:8])
}
