package models

import (
	"time"
)

// DocumentKind classifies an input for converter dispatch. The value is
// also what lands in front matter as document_type.
type DocumentKind string

const (
	KindDocument     DocumentKind = "document"     // .docx
	KindSpreadsheet  DocumentKind = "spreadsheet"  // .xlsx
	KindPresentation DocumentKind = "presentation" // .pptx
	KindPDF          DocumentKind = "pdf"
	KindText         DocumentKind = "text"
	KindMarkdown     DocumentKind = "markdown"
	KindURL          DocumentKind = "url"
)

// DocumentMetadata describes one converted document. The converter embeds
// these fields into the YAML front matter prefixed to the markdown body;
// the URL-specific fields are only set for crawled documents.
type DocumentMetadata struct {
	Title        string       `json:"title"`
	DocumentType DocumentKind `json:"document_type"`
	SourceFile   string       `json:"source_file"`
	WordCount    int          `json:"word_count"`
	PageCount    int          `json:"page_count,omitempty"`
	Author       string       `json:"author,omitempty"`
	Created      string       `json:"created,omitempty"`
	Modified     string       `json:"modified,omitempty"`

	// Error is set instead of returning an error for crawl failures: URL
	// conversion always yields a storable artifact (see the url converter).
	// ErrorDetails carries the per-kind failure tally, ErrorCount the number
	// of crawl errors recorded.
	Error        string `json:"error,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
	ErrorCount   int    `json:"error_count,omitempty"`

	// Crawl audit fields, URL documents only
	SourceURL        string `json:"source_url,omitempty"`
	Depth            int    `json:"depth,omitempty"`
	MaxPages         int    `json:"max_pages,omitempty"`
	PagesCrawled     int    `json:"pages_crawled,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	HTTPAttempts     int    `json:"http_attempts,omitempty"`
	BrowserFallbacks int    `json:"browser_fallbacks,omitempty"`
}

// ConversionResult pairs a normalized markdown body (front matter included)
// with its metadata.
type ConversionResult struct {
	Markdown string
	Metadata DocumentMetadata
}

// IndexDocument is one search-index row, one per chunk
type IndexDocument struct {
	ID         string    `json:"id" badgerhold:"key"`
	ProjectID  string    `json:"project_id" badgerhold:"index"`
	SourceFile string    `json:"source_file"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	WordCount  int       `json:"word_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// IndexUploadResult reports one document's outcome within a batch upload.
// A failed document never aborts the rest of its batch.
type IndexUploadResult struct {
	ID        string `json:"id"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}
