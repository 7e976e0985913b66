package models

import (
	"time"
)

// FetchMethod identifies which fetch strategy produced a page or error
type FetchMethod string

const (
	FetchMethodHTTP    FetchMethod = "http"
	FetchMethodBrowser FetchMethod = "browser"
)

// CrawlParams bounds a crawl. Carried as first-class message fields, never
// encoded into unrelated file fields.
type CrawlParams struct {
	MaxDepth int `json:"max_depth"`
	MaxPages int `json:"max_pages"`
}

// CrawlError records a single page failure. Errors are accumulated for the
// whole crawl and attached to job results; they are never silently dropped.
type CrawlError struct {
	URL       string      `json:"url"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	Method    FetchMethod `json:"method"`
}

// CrawlPage is one successfully fetched and converted page
type CrawlPage struct {
	URL        string      `json:"url"`
	Title      string      `json:"title"`
	Markdown   string      `json:"markdown"`
	Depth      int         `json:"depth"`
	FetchedVia FetchMethod `json:"fetched_via"`
}

// CrawlResult is the full audit record of one crawl: every page, every
// error, and the attempt counters for both fetch strategies.
type CrawlResult struct {
	Pages            []CrawlPage  `json:"pages"`
	Errors           []CrawlError `json:"errors"`
	HTTPAttempts     int          `json:"http_attempts"`
	BrowserFallbacks int          `json:"browser_fallbacks"`
}

// CrawlProgress is the payload published to the event sink after each page
// outcome.
type CrawlProgress struct {
	JobID      string `json:"job_id,omitempty"`
	URL        string `json:"url"`
	Depth      int    `json:"depth"`
	PagesDone  int    `json:"pages_done"`
	MaxPages   int    `json:"max_pages"`
	ErrorCount int    `json:"error_count"`
	Failed     bool   `json:"failed"`
}
