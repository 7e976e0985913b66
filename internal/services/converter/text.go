package converter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// convertText passes plain text and markdown bodies through unchanged,
// deriving the title from the first markdown heading when one exists.
func convertText(fileName string, kind models.DocumentKind, data []byte) (*models.ConversionResult, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file %s is not valid UTF-8 text", fileName)
	}

	body := strings.TrimSpace(string(data))
	if body == "" {
		return nil, fmt.Errorf("file %s is empty", fileName)
	}

	title := firstHeading(data)
	if title == "" {
		title = baseName(fileName)
	}

	meta := models.DocumentMetadata{
		Title:        title,
		DocumentType: kind,
		SourceFile:   fileName,
		WordCount:    countWords(body),
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}, nil
}

// firstHeading walks the markdown AST and returns the text of the first
// heading, or "" when the document has none
func firstHeading(source []byte) string {
	root := goldmark.DefaultParser().Parse(gmtext.NewReader(source))

	var title string
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		var b strings.Builder
		for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
			if textNode, ok := child.(*ast.Text); ok {
				b.Write(textNode.Segment.Value(source))
			}
		}
		title = strings.TrimSpace(b.String())
		return ast.WalkStop, nil
	})
	return title
}
