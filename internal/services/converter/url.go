package converter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// convertURL crawls a seed URL and converts each crawled page into its own
// result. Crawl failures never surface as errors from here: a crawl that
// produced zero pages yields one diagnostic result whose Metadata.Error is
// set, so a failed crawl still leaves an auditable artifact in blob storage.
func (s *Service) convertURL(ctx context.Context, jobID, seedURL string, params models.CrawlParams) ([]*models.ConversionResult, error) {
	start := time.Now()

	crawl, err := s.crawler.Crawl(ctx, jobID, seedURL, params)
	if err != nil {
		// Unusable input (bad seed URL). Still an artifact, not an error.
		crawl = &models.CrawlResult{
			Errors: []models.CrawlError{{
				URL:       seedURL,
				Error:     err.Error(),
				Timestamp: time.Now().UTC(),
			}},
		}
	}

	elapsed := time.Since(start).Milliseconds()

	if len(crawl.Pages) == 0 {
		return []*models.ConversionResult{diagnosticResult(seedURL, params, crawl, elapsed)}, nil
	}

	results := make([]*models.ConversionResult, 0, len(crawl.Pages))
	for _, page := range crawl.Pages {
		meta := models.DocumentMetadata{
			Title:            page.Title,
			DocumentType:     models.KindURL,
			SourceFile:       page.URL,
			WordCount:        countWords(page.Markdown),
			SourceURL:        page.URL,
			Depth:            page.Depth,
			MaxPages:         params.MaxPages,
			PagesCrawled:     len(crawl.Pages),
			ProcessingTimeMs: elapsed,
			HTTPAttempts:     crawl.HTTPAttempts,
			BrowserFallbacks: crawl.BrowserFallbacks,
		}
		results = append(results, &models.ConversionResult{
			Markdown: composeDocument(meta, page.Markdown),
			Metadata: meta,
		})
	}
	return results, nil
}

// diagnosticResult synthesizes the artifact stored when a crawl produced no
// pages: the error set classified by kind, the fetch methods attempted, and
// recommendations matched to the dominant failure class.
func diagnosticResult(seedURL string, params models.CrawlParams, crawl *models.CrawlResult, elapsedMs int64) *models.ConversionResult {
	kinds := classifyErrors(crawl.Errors)

	var b strings.Builder
	b.WriteString("# Crawl Failed\n\n")
	fmt.Fprintf(&b, "No pages could be retrieved from %s.\n\n", seedURL)

	b.WriteString("## Attempts\n\n")
	fmt.Fprintf(&b, "- HTTP fetch attempts: %d\n", crawl.HTTPAttempts)
	fmt.Fprintf(&b, "- Browser fallback attempts: %d\n", crawl.BrowserFallbacks)
	fmt.Fprintf(&b, "- Errors recorded: %d\n", len(crawl.Errors))

	if len(kinds) > 0 {
		b.WriteString("\n## Error Classification\n\n")
		for _, kc := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", kc.kind, kc.count)
		}
	}

	if len(crawl.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, crawlErr := range crawl.Errors {
			method := string(crawlErr.Method)
			if method == "" {
				method = "n/a"
			}
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", crawlErr.URL, method, crawlErr.Error)
		}
	}

	b.WriteString("\n## Recommendations\n\n")
	for _, rec := range recommendations(kinds, crawl.BrowserFallbacks) {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	body := b.String()
	meta := models.DocumentMetadata{
		Title:            "Crawl Failed: " + seedURL,
		DocumentType:     models.KindURL,
		SourceFile:       seedURL,
		WordCount:        countWords(body),
		Error:            errorSummary(seedURL, kinds),
		ErrorDetails:     errorDetails(kinds),
		ErrorCount:       len(crawl.Errors),
		SourceURL:        seedURL,
		MaxPages:         params.MaxPages,
		PagesCrawled:     0,
		ProcessingTimeMs: elapsedMs,
		HTTPAttempts:     crawl.HTTPAttempts,
		BrowserFallbacks: crawl.BrowserFallbacks,
	}

	return &models.ConversionResult{
		Markdown: composeDocument(meta, body),
		Metadata: meta,
	}
}

type kindCount struct {
	kind  string
	count int
}

// classifyErrors tallies crawl errors by kind. Error strings carry their
// kind as a leading "kind: " token; anything else counts as other.
func classifyErrors(errs []models.CrawlError) []kindCount {
	known := []string{"bot_detection", "access_denied", "rate_limit", "transport", "content_type"}

	counts := make(map[string]int)
	for _, crawlErr := range errs {
		kind := "other"
		for _, k := range known {
			if strings.HasPrefix(crawlErr.Error, k+":") {
				kind = k
				break
			}
		}
		counts[kind]++
	}

	order := append(known, "other")
	var result []kindCount
	for _, kind := range order {
		if counts[kind] > 0 {
			result = append(result, kindCount{kind: kind, count: counts[kind]})
		}
	}
	return result
}

// dominantKind is the most frequent error kind, ties broken by severity
// order (bot defenses first)
func dominantKind(kinds []kindCount) string {
	if len(kinds) == 0 {
		return ""
	}
	best := kinds[0]
	for _, kc := range kinds[1:] {
		if kc.count > best.count {
			best = kc
		}
	}
	return best.kind
}

// errorDetails renders the kind tally as a single scalar ("bot_detection=2,
// transport=1") so it survives the flat front-matter scanner
func errorDetails(kinds []kindCount) string {
	parts := make([]string, 0, len(kinds))
	for _, kc := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kc.kind, kc.count))
	}
	return strings.Join(parts, ", ")
}

func errorSummary(seedURL string, kinds []kindCount) string {
	kind := dominantKind(kinds)
	if kind == "" {
		return fmt.Sprintf("crawl of %s produced no pages", seedURL)
	}
	return fmt.Sprintf("crawl of %s produced no pages (dominant failure: %s)", seedURL, kind)
}

func recommendations(kinds []kindCount, browserFallbacks int) []string {
	switch dominantKind(kinds) {
	case "bot_detection":
		recs := []string{
			"The site serves an anti-bot challenge page to automated clients.",
		}
		if browserFallbacks == 0 {
			recs = append(recs, "Enable the browser fallback (crawler.browser_enabled) so challenges can be rendered.")
		} else {
			recs = append(recs, "The browser fallback was attempted and also challenged; the site likely requires an authenticated session.")
		}
		recs = append(recs, "If the content is available via an API or feed, prefer that over crawling.")
		return recs
	case "access_denied":
		return []string{
			"The site returned 403 for every request; it may block by IP range or require authentication.",
			"Verify the URL is publicly reachable from this network.",
		}
	case "rate_limit":
		return []string{
			"The site rate-limited the crawl. Lower crawler.requests_per_second and retry.",
			"Reduce max_pages so the crawl stays under the site's request budget.",
		}
	case "transport":
		return []string{
			"Requests failed at the network layer. Check DNS resolution and outbound connectivity for the host.",
			"Retry later; the site may have been temporarily unreachable.",
		}
	case "content_type":
		return []string{
			"The URL serves non-HTML content. Download it and submit it as a file upload instead.",
		}
	default:
		return []string{
			"Verify the seed URL is correct and reachable in a regular browser.",
			"Retry the job; transient failures resolve on their own.",
		}
	}
}
