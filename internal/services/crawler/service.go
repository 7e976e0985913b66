// -----------------------------------------------------------------------
// Advanced Crawler - dual-strategy multi-page site crawler
// Phase 1 fetches over plain HTTP; phase 2 falls back to a headless
// browser when anti-bot defenses are the reason phase 1 failed.
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
)

const (
	// circuitBreakerThreshold halts a crawl after this many consecutive
	// page failures, regardless of remaining queue or budget
	circuitBreakerThreshold = 5

	// minContentLength is the floor below which extracted markdown counts
	// as boilerplate and the page is skipped without error
	minContentLength = 50

	// backoffStep and backoffCap bound the adaptive per-request delay:
	// min(consecutiveErrors*backoffStep, backoffCap) plus jitter
	backoffStep   = 500 * time.Millisecond
	backoffCap    = 3 * time.Second
	backoffJitter = 500 * time.Millisecond
)

// Service implements the dual-strategy crawler. Pages are processed
// sequentially within a crawl: parallel fetching would raise throughput
// but also the odds of tripping rate limits, and the backoff and circuit
// breaker only mean anything against a serial request stream.
type Service struct {
	config  *common.CrawlerConfig
	events  interfaces.EventService
	logger  arbor.ILogger
	http    *httpFetcher
	browser browserFetcher
	limiter *rate.Limiter
}

// NewService creates the crawler service. The browser fallback is only
// wired when the config enables it.
func NewService(config *common.CrawlerConfig, events interfaces.EventService, logger arbor.ILogger) *Service {
	s := &Service{
		config:  config,
		events:  events,
		logger:  logger,
		http:    newHTTPFetcher(config, logger),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
	if config.BrowserEnabled {
		s.browser = newChromeFetcher(config, logger)
	}
	return s
}

// Crawl walks the site breadth-first from the seed URL within the given
// bounds. Page failures are accumulated in the result, never dropped; the
// returned error is non-nil only for unusable input.
func (s *Service) Crawl(ctx context.Context, jobID, seedURL string, params models.CrawlParams) (*models.CrawlResult, error) {
	seed, err := url.Parse(seedURL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") {
		return nil, fmt.Errorf("invalid seed URL %q", seedURL)
	}

	maxDepth := params.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.config.MaxDepth
	}
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = s.config.MaxPages
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("seed_url", seedURL).
		Int("max_depth", maxDepth).
		Int("max_pages", maxPages).
		Msg("Starting crawl")

	queue := newCrawlQueue()
	queue.Push(seedURL, 0)

	result := &models.CrawlResult{}
	consecutiveFailures := 0
	startTime := time.Now()

	for len(result.Pages) < maxPages {
		if consecutiveFailures >= circuitBreakerThreshold {
			s.logger.Warn().
				Str("job_id", jobID).
				Int("consecutive_failures", consecutiveFailures).
				Int("queued_remaining", queue.Len()).
				Msg("Circuit breaker tripped, halting crawl")
			break
		}

		entry, ok := queue.Pop()
		if !ok {
			break
		}

		if err := s.waitBeforeFetch(ctx, consecutiveFailures); err != nil {
			return result, err
		}

		page, links, crawlErr := s.fetchPage(ctx, entry, seedURL, result)
		if crawlErr != nil {
			result.Errors = append(result.Errors, *crawlErr)
			consecutiveFailures++
			s.publishProgress(ctx, jobID, entry, result, maxPages, true)
			continue
		}
		if page == nil {
			// Boilerplate page, skipped without affecting the breaker
			continue
		}

		consecutiveFailures = 0
		result.Pages = append(result.Pages, *page)

		if s.config.FollowLinks && entry.depth < maxDepth {
			for _, link := range links {
				if s.config.SameDomainOnly && !sameHost(link, seedURL) {
					continue
				}
				queue.Push(link, entry.depth+1)
			}
		}

		s.publishProgress(ctx, jobID, entry, result, maxPages, false)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("pages", len(result.Pages)).
		Int("errors", len(result.Errors)).
		Int("http_attempts", result.HTTPAttempts).
		Int("browser_fallbacks", result.BrowserFallbacks).
		Dur("elapsed", time.Since(startTime)).
		Msg("Crawl finished")

	return result, nil
}

// fetchPage runs both fetch phases for one queue entry and converts the
// winning HTML to markdown. Returns a nil page without error for
// boilerplate pages below the content floor. Attempt counters accumulate
// on the crawl result as a side effect of which phases ran.
func (s *Service) fetchPage(ctx context.Context, entry crawlEntry, seedURL string, result *models.CrawlResult) (*models.CrawlPage, []string, *models.CrawlError) {
	method := models.FetchMethodHTTP

	result.HTTPAttempts++
	res, err := s.http.fetch(ctx, entry.url, seedURL, entry.depth)

	// Phase 2 runs only when phase 1 failed because something was
	// blocking automated access
	if err != nil && s.browser != nil && fallbackEligible(err) {
		s.logger.Info().
			Str("url", entry.url).
			Str("reason", string(ClassifyError(err))).
			Msg("Falling back to browser fetch")

		method = models.FetchMethodBrowser
		result.BrowserFallbacks++
		res, err = s.browser.fetch(ctx, entry.url)
	}

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("url", entry.url).
			Str("method", string(method)).
			Msg("Page fetch failed")
		return nil, nil, &models.CrawlError{
			URL:       entry.url,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
			Method:    method,
		}
	}

	doc, parseErr := parsePage(res.HTML)
	if parseErr != nil {
		return nil, nil, &models.CrawlError{
			URL:       entry.url,
			Error:     parseErr.Error(),
			Timestamp: time.Now().UTC(),
			Method:    method,
		}
	}

	title := pageTitle(doc)
	links := extractLinks(doc, res.URL)

	markdown, mdErr := pageToMarkdown(doc, res.URL)
	if mdErr != nil {
		return nil, nil, &models.CrawlError{
			URL:       entry.url,
			Error:     mdErr.Error(),
			Timestamp: time.Now().UTC(),
			Method:    method,
		}
	}

	if len(markdown) < minContentLength {
		s.logger.Debug().
			Str("url", entry.url).
			Int("content_length", len(markdown)).
			Msg("Skipping boilerplate page below content floor")
		return nil, nil, nil
	}

	return &models.CrawlPage{
		URL:        res.URL,
		Title:      title,
		Markdown:   markdown,
		Depth:      entry.depth,
		FetchedVia: method,
	}, links, nil
}

// waitBeforeFetch applies the politeness limiter plus adaptive backoff
// that grows with the current failure streak
func (s *Service) waitBeforeFetch(ctx context.Context, consecutiveFailures int) error {
	if consecutiveFailures > 0 {
		delay := time.Duration(consecutiveFailures) * backoffStep
		if delay > backoffCap {
			delay = backoffCap
		}
		delay += time.Duration(rand.Int63n(int64(backoffJitter)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return s.limiter.Wait(ctx)
}

// publishProgress emits a crawl progress event after each page outcome
func (s *Service) publishProgress(ctx context.Context, jobID string, entry crawlEntry, result *models.CrawlResult, maxPages int, failed bool) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventCrawlProgress,
		Payload: models.CrawlProgress{
			JobID:      jobID,
			URL:        entry.url,
			Depth:      entry.depth,
			PagesDone:  len(result.Pages),
			MaxPages:   maxPages,
			ErrorCount: len(result.Errors),
			Failed:     failed,
		},
	})
}

// Stop releases crawler resources
func (s *Service) Stop() error {
	if s.browser != nil {
		return s.browser.stop()
	}
	return nil
}
