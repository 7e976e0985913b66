package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service dispatches inputs to per-format extraction. File formats are
// resolved MIME-first, then by extension; URLs route through the crawler.
type Service struct {
	crawler interfaces.CrawlerService
	logger  arbor.ILogger
}

func NewService(crawler interfaces.CrawlerService, logger arbor.ILogger) *Service {
	return &Service{
		crawler: crawler,
		logger:  logger,
	}
}

// ConvertFile converts one uploaded blob to normalized markdown. Unsupported
// formats and extraction failures are errors; the caller fails the job.
func (s *Service) ConvertFile(ctx context.Context, fileName, mimeType string, data []byte) (*models.ConversionResult, error) {
	kind, ok := DetectDocumentType(fileName, mimeType)
	if !ok {
		return nil, fmt.Errorf("unsupported document format: file=%s mime=%s", fileName, mimeType)
	}

	s.logger.Debug().
		Str("file", fileName).
		Str("kind", string(kind)).
		Int("bytes", len(data)).
		Msg("Converting document")

	var result *models.ConversionResult
	var err error

	switch kind {
	case models.KindDocument:
		result, err = convertWord(fileName, data)
	case models.KindSpreadsheet:
		result, err = convertExcel(fileName, data)
	case models.KindPresentation:
		result, err = convertPowerPoint(fileName, data)
	case models.KindPDF:
		result, err = convertPDF(fileName, data)
	case models.KindText, models.KindMarkdown:
		result, err = convertText(fileName, kind, data)
	default:
		return nil, fmt.Errorf("no converter for document kind %s", kind)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("file", fileName).
		Str("kind", string(kind)).
		Int("word_count", result.Metadata.WordCount).
		Msg("Document converted")
	return result, nil
}

// ConvertURL crawls seedURL and converts each page. See convertURL for the
// no-error contract on crawl failures.
func (s *Service) ConvertURL(ctx context.Context, jobID, seedURL string, params models.CrawlParams) ([]*models.ConversionResult, error) {
	results, err := s.convertURL(ctx, jobID, seedURL, params)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("url", seedURL).
		Int("results", len(results)).
		Msg("URL conversion finished")
	return results, nil
}

// baseName strips the directory and extension from a file name for use as a
// fallback title
func baseName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
