package converter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// convertPowerPoint extracts a .pptx deck: text runs per slide in slide
// order, each slide rendered as its own section. A deck with no extractable
// text is an error, not a silently empty document.
func convertPowerPoint(fileName string, data []byte) (*models.ConversionResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid pptx archive: %w", err)
	}

	type slide struct {
		number int
		lines  []string
	}
	var slides []slide

	for _, file := range zr.File {
		match := slidePattern.FindStringSubmatch(file.Name)
		if match == nil {
			continue
		}
		number, _ := strconv.Atoi(match[1])

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open slide %d: %w", number, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", number, err)
		}

		lines, err := extractSlideText(content)
		if err != nil {
			return nil, fmt.Errorf("failed to extract slide %d: %w", number, err)
		}
		slides = append(slides, slide{number: number, lines: lines})
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("pptx contains no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var b strings.Builder
	hasText := false
	for _, s := range slides {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## Slide %d\n\n", s.number)
		if len(s.lines) > 0 {
			hasText = true
			b.WriteString(strings.Join(s.lines, "\n\n"))
			b.WriteString("\n")
		}
	}
	if !hasText {
		return nil, fmt.Errorf("pptx contains no extractable text")
	}

	body := strings.TrimSpace(b.String())

	props := readCoreProperties(zr)
	title := props.Title
	if title == "" && len(slides[0].lines) > 0 {
		// The first text line of the opening slide is almost always the
		// deck title
		title = slides[0].lines[0]
	}
	if title == "" {
		title = baseName(fileName)
	}

	meta := models.DocumentMetadata{
		Title:        title,
		DocumentType: models.KindPresentation,
		SourceFile:   fileName,
		WordCount:    countWords(body),
		PageCount:    len(slides),
		Author:       props.Creator,
		Created:      props.Created,
		Modified:     props.Modified,
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}, nil
}

// extractSlideText collects a:t text runs from one slide, one line per
// paragraph (a:p)
func extractSlideText(slideXML []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(slideXML))

	var lines []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch tok := token.(type) {
		case xml.StartElement:
			if tok.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					lines = append(lines, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(tok)
			}
		}
	}

	if text := strings.TrimSpace(current.String()); text != "" {
		lines = append(lines, text)
	}
	return lines, nil
}
