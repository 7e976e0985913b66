package converter

import (
	"path/filepath"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// mimeKinds resolves document kinds by MIME type. MIME wins over the file
// extension because upload clients report it from actual content sniffing
// more often than from the name.
var mimeKinds = map[string]models.DocumentKind{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   models.KindDocument,
	"application/msword":                                                        models.KindDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         models.KindSpreadsheet,
	"application/vnd.ms-excel":                                                  models.KindSpreadsheet,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": models.KindPresentation,
	"application/vnd.ms-powerpoint":                                             models.KindPresentation,
	"application/pdf":                                                           models.KindPDF,
	"text/plain":                                                                models.KindText,
	"text/markdown":                                                             models.KindMarkdown,
}

// extensionKinds resolves document kinds by file extension when the MIME
// type is absent or unknown
var extensionKinds = map[string]models.DocumentKind{
	".docx": models.KindDocument,
	".xlsx": models.KindSpreadsheet,
	".pptx": models.KindPresentation,
	".pdf":  models.KindPDF,
	".txt":  models.KindText,
	".md":   models.KindMarkdown,
}

// DetectDocumentType resolves the converter dispatch kind from the MIME
// type first, then the file extension. The second return is false when
// neither identifies a supported format.
func DetectDocumentType(fileName, mimeType string) (models.DocumentKind, bool) {
	if mimeType != "" {
		// Parameters like "; charset=utf-8" never matter for dispatch
		base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
		if kind, ok := mimeKinds[strings.ToLower(base)]; ok {
			return kind, true
		}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if kind, ok := extensionKinds[ext]; ok {
		return kind, true
	}

	return "", false
}
