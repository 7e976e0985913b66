package converter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/xuri/excelize/v2"
)

// convertExcel extracts a .xlsx workbook: each sheet becomes a section with
// its rows rendered as a markdown table, first row as the header.
func convertExcel(fileName string, data []byte) (*models.ConversionResult, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx workbook: %w", err)
	}
	defer workbook.Close()

	var b strings.Builder
	sheets := workbook.GetSheetList()

	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", sheet)
		writeMarkdownTable(&b, rows)
	}

	body := strings.TrimSpace(b.String())
	if body == "" {
		return nil, fmt.Errorf("xlsx contains no data")
	}

	meta := models.DocumentMetadata{
		Title:        baseName(fileName),
		DocumentType: models.KindSpreadsheet,
		SourceFile:   fileName,
		WordCount:    countWords(body),
		PageCount:    len(sheets),
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}, nil
}

// writeMarkdownTable renders rows as a pipe table, padding ragged rows to
// the header width
func writeMarkdownTable(b *strings.Builder, rows [][]string) {
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}

	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(row[i], "|", "\\|")
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			fmt.Fprintf(b, " %s |", cell)
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range rows[1:] {
		writeRow(row)
	}
}
