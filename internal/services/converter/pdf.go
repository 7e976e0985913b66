package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/colligo/internal/models"
)

// textShowPattern matches parenthesized string operands of the Tj/TJ text
// show operators in a decoded content stream
var textShowPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// convertPDF extracts a PDF via pdfcpu. The library works on files, so the
// input round-trips through a scratch directory; per-page decoded content
// streams are mined for text show operators.
func convertPDF(fileName string, data []byte) (*models.ConversionResult, error) {
	tempDir, err := os.MkdirTemp("", "colligo-pdf-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write scratch PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := readExtractedPages(outDir)

	var sections []string
	for page := 1; page <= pageCount; page++ {
		text := strings.TrimSpace(pageTexts[page])
		if text == "" {
			continue
		}
		if pageCount > 1 {
			sections = append(sections, fmt.Sprintf("## Page %d\n\n%s", page, text))
		} else {
			sections = append(sections, text)
		}
	}

	body := strings.Join(sections, "\n\n")
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("PDF contains no extractable text")
	}

	meta := models.DocumentMetadata{
		Title:        baseName(fileName),
		DocumentType: models.KindPDF,
		SourceFile:   fileName,
		WordCount:    countWords(body),
		PageCount:    pageCount,
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}, nil
}

// readExtractedPages maps page numbers to the text mined from their
// decoded content streams
func readExtractedPages(outDir string) map[int]string {
	pageTexts := make(map[int]string)

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return pageTexts
	}

	pagePattern := regexp.MustCompile(`(\d+)`)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pagePattern.FindString(entry.Name())
		if match == "" {
			continue
		}
		page, _ := strconv.Atoi(match)

		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageTexts[page] = contentStreamText(string(content))
	}
	return pageTexts
}

// contentStreamText harvests the string operands of text show operators
// from a decoded content stream, preserving stream order
func contentStreamText(stream string) string {
	matches := textShowPattern.FindAllStringSubmatch(stream, -1)
	if len(matches) == 0 {
		return ""
	}

	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		text := unescapePDFString(match[1])
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// unescapePDFString resolves the escape sequences PDF literal strings use
func unescapePDFString(s string) string {
	replacer := strings.NewReplacer(
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}
