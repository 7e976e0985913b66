package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/xuri/excelize/v2"
)

func newTestService(crawler *stubCrawler) *Service {
	return NewService(crawler, arbor.NewLogger())
}

// stubCrawler returns a canned crawl result so URL conversion can be tested
// without a network
type stubCrawler struct {
	result *models.CrawlResult
	err    error
}

func (s *stubCrawler) Crawl(ctx context.Context, jobID, seedURL string, params models.CrawlParams) (*models.CrawlResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubCrawler) Stop() error { return nil }

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		want     models.DocumentKind
		ok       bool
	}{
		{"docx by mime", "report.bin", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", models.KindDocument, true},
		{"mime beats extension", "notes.txt", "application/pdf", models.KindPDF, true},
		{"mime params stripped", "notes.bin", "text/plain; charset=utf-8", models.KindText, true},
		{"extension fallback", "deck.pptx", "", models.KindPresentation, true},
		{"extension fallback on unknown mime", "sheet.xlsx", "application/octet-stream", models.KindSpreadsheet, true},
		{"markdown extension", "README.md", "", models.KindMarkdown, true},
		{"unsupported", "archive.tar.gz", "application/gzip", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := DetectDocumentType(tt.fileName, tt.mimeType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func buildDocx(t *testing.T, paragraphs []string, coreXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&doc, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	doc.WriteString(`</w:body></w:document>`)

	writeZipEntry(t, zw, "word/document.xml", doc.String())
	if coreXML != "" {
		writeZipEntry(t, zw, "docProps/core.xml", coreXML)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZipEntry(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
}

const testCoreXML = `<?xml version="1.0"?>` +
	`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
	`<dc:title>Annual Report</dc:title><dc:creator>J. Smith</dc:creator></cp:coreProperties>`

func TestConvertFile_Word(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	data := buildDocx(t, []string{"First paragraph.", "Second paragraph."}, testCoreXML)

	result, err := svc.ConvertFile(context.Background(), "report.docx", "", data)
	require.NoError(t, err)

	assert.Equal(t, "Annual Report", result.Metadata.Title)
	assert.Equal(t, "J. Smith", result.Metadata.Author)
	assert.Equal(t, models.KindDocument, result.Metadata.DocumentType)
	assert.Contains(t, result.Markdown, "First paragraph.\n\nSecond paragraph.")
	assert.Contains(t, result.Markdown, `title: "Annual Report"`)
	assert.True(t, strings.HasPrefix(result.Markdown, "---\n"))
}

func TestConvertFile_WordWithoutTitleFallsBackToFileName(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	data := buildDocx(t, []string{"Body text."}, "")

	result, err := svc.ConvertFile(context.Background(), "docs/meeting-notes.docx", "", data)
	require.NoError(t, err)
	assert.Equal(t, "meeting-notes", result.Metadata.Title)
}

func TestConvertFile_WordEmptyDocument(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	data := buildDocx(t, nil, "")

	_, err := svc.ConvertFile(context.Background(), "empty.docx", "", data)
	require.Error(t, err)
}

func TestConvertFile_WordInvalidArchive(t *testing.T) {
	svc := newTestService(&stubCrawler{})

	_, err := svc.ConvertFile(context.Background(), "broken.docx", "", []byte("not a zip"))
	require.Error(t, err)
}

func TestConvertFile_Excel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Inventory"))
	require.NoError(t, f.SetCellValue("Inventory", "A1", "Item"))
	require.NoError(t, f.SetCellValue("Inventory", "B1", "Count"))
	require.NoError(t, f.SetCellValue("Inventory", "A2", "Widget"))
	require.NoError(t, f.SetCellValue("Inventory", "B2", 42))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	svc := newTestService(&stubCrawler{})
	result, err := svc.ConvertFile(context.Background(), "stock.xlsx", "", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "stock", result.Metadata.Title)
	assert.Equal(t, models.KindSpreadsheet, result.Metadata.DocumentType)
	assert.Contains(t, result.Markdown, "## Inventory")
	assert.Contains(t, result.Markdown, "| Item | Count |")
	assert.Contains(t, result.Markdown, "| --- | --- |")
	assert.Contains(t, result.Markdown, "| Widget | 42 |")
}

func TestConvertFile_ExcelEmptyWorkbook(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	svc := newTestService(&stubCrawler{})
	_, err = svc.ConvertFile(context.Background(), "blank.xlsx", "", buf.Bytes())
	require.Error(t, err)
}

func buildPptx(t *testing.T, slides map[string][]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for name, lines := range slides {
		var slide strings.Builder
		slide.WriteString(`<?xml version="1.0"?><p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree>`)
		for _, line := range lines {
			fmt.Fprintf(&slide, `<p:sp><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`, line)
		}
		slide.WriteString(`</p:spTree></p:cSld></p:sld>`)
		writeZipEntry(t, zw, name, slide.String())
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestConvertFile_PowerPoint(t *testing.T) {
	// Archive order is slide2 first; output must still be slide order
	data := buildPptx(t, map[string][]string{
		"ppt/slides/slide2.xml": {"Roadmap", "Ship Q3"},
		"ppt/slides/slide1.xml": {"Product Review", "Agenda"},
	})

	svc := newTestService(&stubCrawler{})
	result, err := svc.ConvertFile(context.Background(), "review.pptx", "", data)
	require.NoError(t, err)

	assert.Equal(t, "Product Review", result.Metadata.Title)
	assert.Equal(t, 2, result.Metadata.PageCount)

	firstSlide := strings.Index(result.Markdown, "## Slide 1")
	secondSlide := strings.Index(result.Markdown, "## Slide 2")
	require.GreaterOrEqual(t, firstSlide, 0)
	require.Greater(t, secondSlide, firstSlide)
	assert.Contains(t, result.Markdown, "Ship Q3")
}

func TestConvertFile_PowerPointNoSlides(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeZipEntry(t, zw, "ppt/presentation.xml", `<p:presentation/>`)
	require.NoError(t, zw.Close())

	svc := newTestService(&stubCrawler{})
	_, err := svc.ConvertFile(context.Background(), "empty.pptx", "", buf.Bytes())
	require.Error(t, err)
}

func TestConvertFile_PDF(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "Quarterly revenue summary")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	svc := newTestService(&stubCrawler{})
	result, err := svc.ConvertFile(context.Background(), "q3.pdf", "application/pdf", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, models.KindPDF, result.Metadata.DocumentType)
	assert.Equal(t, 1, result.Metadata.PageCount)
	assert.Contains(t, result.Markdown, "Quarterly revenue summary")
}

func TestConvertFile_PDFInvalid(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	_, err := svc.ConvertFile(context.Background(), "bad.pdf", "application/pdf", []byte("%PDF-garbage"))
	require.Error(t, err)
}

func TestConvertFile_MarkdownTitleFromHeading(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	body := "# Getting Started\n\nInstall the binary and run it.\n"

	result, err := svc.ConvertFile(context.Background(), "guide.md", "", []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Getting Started", result.Metadata.Title)
	assert.Equal(t, models.KindMarkdown, result.Metadata.DocumentType)
	assert.Contains(t, result.Markdown, "Install the binary")
}

func TestConvertFile_PlainTextTitleFromFileName(t *testing.T) {
	svc := newTestService(&stubCrawler{})

	result, err := svc.ConvertFile(context.Background(), "changelog.txt", "text/plain", []byte("v1.2 fixes crash on startup"))
	require.NoError(t, err)
	assert.Equal(t, "changelog", result.Metadata.Title)
	assert.Equal(t, models.KindText, result.Metadata.DocumentType)
}

func TestConvertFile_TextInvalidUTF8(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	_, err := svc.ConvertFile(context.Background(), "binary.txt", "", []byte{0xff, 0xfe, 0x01})
	require.Error(t, err)
}

func TestConvertFile_UnsupportedFormat(t *testing.T) {
	svc := newTestService(&stubCrawler{})
	_, err := svc.ConvertFile(context.Background(), "image.png", "image/png", []byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document format")
}

func TestConvertURL_OneResultPerPage(t *testing.T) {
	svc := newTestService(&stubCrawler{result: &models.CrawlResult{
		Pages: []models.CrawlPage{
			{URL: "https://example.com/", Title: "Home", Markdown: "Welcome to the site", Depth: 0, FetchedVia: models.FetchMethodHTTP},
			{URL: "https://example.com/docs", Title: "Docs", Markdown: "Read the docs here", Depth: 1, FetchedVia: models.FetchMethodHTTP},
		},
		HTTPAttempts: 2,
	}})

	results, err := svc.ConvertURL(context.Background(), "job-1", "https://example.com/", models.CrawlParams{MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Home", results[0].Metadata.Title)
	assert.Equal(t, "https://example.com/", results[0].Metadata.SourceURL)
	assert.Equal(t, 2, results[0].Metadata.PagesCrawled)
	assert.Empty(t, results[0].Metadata.Error)
	assert.Contains(t, results[0].Markdown, `source_url: "https://example.com/"`)
	assert.Contains(t, results[0].Markdown, "Welcome to the site")

	assert.Equal(t, 1, results[1].Metadata.Depth)
}

func TestConvertURL_ZeroPagesYieldsDiagnostic(t *testing.T) {
	svc := newTestService(&stubCrawler{result: &models.CrawlResult{
		Errors: []models.CrawlError{
			{URL: "https://blocked.example.com/", Error: "bot_detection: challenge page detected", Method: models.FetchMethodHTTP},
			{URL: "https://blocked.example.com/a", Error: "bot_detection: challenge page detected", Method: models.FetchMethodHTTP},
			{URL: "https://blocked.example.com/b", Error: "access_denied: HTTP 403", Method: models.FetchMethodHTTP},
		},
		HTTPAttempts: 3,
	}})

	results, err := svc.ConvertURL(context.Background(), "job-2", "https://blocked.example.com/", models.CrawlParams{MaxPages: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)

	diag := results[0]
	assert.Contains(t, diag.Metadata.Error, "bot_detection")
	assert.Equal(t, "bot_detection=2, access_denied=1", diag.Metadata.ErrorDetails)
	assert.Equal(t, 3, diag.Metadata.ErrorCount)
	assert.Equal(t, 0, diag.Metadata.PagesCrawled)
	assert.Contains(t, diag.Markdown, "error_details: \"bot_detection=2, access_denied=1\"")
	assert.Contains(t, diag.Markdown, "crawl_errors: 3")
	assert.Contains(t, diag.Markdown, "# Crawl Failed")
	assert.Contains(t, diag.Markdown, "bot_detection: 2")
	assert.Contains(t, diag.Markdown, "access_denied: 1")
	assert.Contains(t, diag.Markdown, "## Recommendations")
	assert.Contains(t, diag.Markdown, "browser")
}

func TestConvertURL_CrawlerErrorStillYieldsDiagnostic(t *testing.T) {
	svc := newTestService(&stubCrawler{err: errors.New("seed URL must be absolute http(s)")})

	results, err := svc.ConvertURL(context.Background(), "job-3", "not-a-url", models.CrawlParams{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Metadata.Error)
	assert.Contains(t, results[0].Markdown, "# Crawl Failed")
}

func TestClassifyErrors(t *testing.T) {
	kinds := classifyErrors([]models.CrawlError{
		{Error: "rate_limit: HTTP 429"},
		{Error: "rate_limit: retry-after"},
		{Error: "something odd happened"},
	})

	require.Len(t, kinds, 2)
	assert.Equal(t, "rate_limit", kinds[0].kind)
	assert.Equal(t, 2, kinds[0].count)
	assert.Equal(t, "other", kinds[1].kind)
	assert.Equal(t, "rate_limit", dominantKind(kinds))
}
