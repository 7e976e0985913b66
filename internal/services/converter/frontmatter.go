package converter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// buildFrontMatter renders the YAML front matter block embedded at the top
// of every converted document. Field order is fixed so converted output is
// byte-stable for identical inputs. String values are double-quoted; the
// chunker's front matter scanner strips the quotes back off.
func buildFrontMatter(meta models.DocumentMetadata) string {
	var b strings.Builder
	b.WriteString("---\n")

	fmt.Fprintf(&b, "crawl_time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "document_type: %s\n", meta.DocumentType)
	fmt.Fprintf(&b, "source_file: %q\n", meta.SourceFile)
	fmt.Fprintf(&b, "title: %q\n", meta.Title)
	fmt.Fprintf(&b, "word_count: %d\n", meta.WordCount)

	if meta.PageCount > 0 {
		fmt.Fprintf(&b, "page_count: %d\n", meta.PageCount)
	}
	if meta.Author != "" {
		fmt.Fprintf(&b, "author: %q\n", meta.Author)
	}
	if meta.Created != "" {
		fmt.Fprintf(&b, "created: %q\n", meta.Created)
	}
	if meta.Modified != "" {
		fmt.Fprintf(&b, "modified: %q\n", meta.Modified)
	}

	// Crawl audit fields, URL documents only
	if meta.SourceURL != "" {
		fmt.Fprintf(&b, "source_url: %q\n", meta.SourceURL)
		fmt.Fprintf(&b, "depth: %d\n", meta.Depth)
		fmt.Fprintf(&b, "max_pages: %d\n", meta.MaxPages)
		fmt.Fprintf(&b, "pages_crawled: %d\n", meta.PagesCrawled)
		fmt.Fprintf(&b, "processing_time_ms: %d\n", meta.ProcessingTimeMs)
		fmt.Fprintf(&b, "http_attempts: %d\n", meta.HTTPAttempts)
		fmt.Fprintf(&b, "browser_fallbacks: %d\n", meta.BrowserFallbacks)
	}
	if meta.Error != "" {
		fmt.Fprintf(&b, "error_summary: %q\n", meta.Error)
		if meta.ErrorDetails != "" {
			fmt.Fprintf(&b, "error_details: %q\n", meta.ErrorDetails)
		}
		fmt.Fprintf(&b, "crawl_errors: %d\n", meta.ErrorCount)
	}

	b.WriteString("---\n\n")
	return b.String()
}

// composeDocument prefixes the body with its front matter
func composeDocument(meta models.DocumentMetadata, body string) string {
	return buildFrontMatter(meta) + strings.TrimSpace(body) + "\n"
}

// countWords is the word count stamped into front matter
func countWords(text string) int {
	return len(strings.Fields(text))
}
