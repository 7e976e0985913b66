package converter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// convertWord extracts a .docx document: text runs from the main document
// part, creator metadata from the core properties part.
func convertWord(fileName string, data []byte) (*models.ConversionResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid docx archive: %w", err)
	}

	docXML, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("docx has no document part: %w", err)
	}

	body, err := extractWordText(docXML)
	if err != nil {
		return nil, fmt.Errorf("failed to extract docx text: %w", err)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("docx contains no extractable text")
	}

	props := readCoreProperties(zr)
	title := props.Title
	if title == "" {
		title = baseName(fileName)
	}

	meta := models.DocumentMetadata{
		Title:        title,
		DocumentType: models.KindDocument,
		SourceFile:   fileName,
		WordCount:    countWords(body),
		Author:       props.Creator,
		Created:      props.Created,
		Modified:     props.Modified,
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}, nil
}

// extractWordText walks the document XML collecting w:t text runs, joining
// runs within a paragraph and separating paragraphs with a blank line
func extractWordText(docXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
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
		paragraphs = append(paragraphs, text)
	}

	return strings.Join(paragraphs, "\n\n"), nil
}

// coreProperties is the subset of docProps/core.xml shared by all OOXML
// formats
type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

// readCoreProperties reads OOXML core metadata; missing or malformed
// properties degrade to empty fields, never an error
func readCoreProperties(zr *zip.Reader) coreProperties {
	var props coreProperties
	data, err := readZipFile(zr, "docProps/core.xml")
	if err != nil {
		return props
	}
	_ = xml.Unmarshal(data, &props)
	return props
}

// readZipFile reads one named entry from an archive
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, file := range zr.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("entry %s not found", name)
}
