package crawler

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// httpRetryBudget is the number of additional attempts after the first on
// transport failure. Classified failures (bot detection, HTTP errors) fail
// the attempt immediately; retrying those without a different strategy
// just burns the backoff budget.
const httpRetryBudget = 2

// fetchResult is the raw outcome of one successful page fetch, before
// markdown conversion
type fetchResult struct {
	URL        string
	HTML       string
	StatusCode int
}

// httpFetcher is the phase-1 fetch strategy: plain HTTP via colly with a
// randomized browser identity.
type httpFetcher struct {
	config *common.CrawlerConfig
	logger arbor.ILogger
}

func newHTTPFetcher(config *common.CrawlerConfig, logger arbor.ILogger) *httpFetcher {
	return &httpFetcher{
		config: config,
		logger: logger,
	}
}

// fetch GETs a page, retrying transport failures with a 1-3s randomized
// delay up to the retry budget
func (f *httpFetcher) fetch(ctx context.Context, pageURL, seedURL string, depth int) (*fetchResult, error) {
	var lastErr error

	for attempt := 0; attempt <= httpRetryBudget; attempt++ {
		if attempt > 0 {
			delay := time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
			f.logger.Debug().
				Str("url", pageURL).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying HTTP fetch after transport failure")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := f.attempt(ctx, pageURL, seedURL, depth)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Only transport failures earn a retry
		if ClassifyError(err) != ErrorKindTransport {
			return nil, err
		}
	}

	return nil, lastErr
}

func (f *httpFetcher) attempt(ctx context.Context, pageURL, seedURL string, depth int) (*fetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(randomUserAgent()),
		colly.MaxBodySize(f.config.MaxBodySize),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(f.config.RequestTimeout)

	var result *fetchResult
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		for key, value := range browserHeaders(seedURL, depth) {
			r.Headers.Set(key, value)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			pageErr := classifyStatusError(pageURL, r.StatusCode, err)
			// A 403 that arrives with a challenge body is bot defense,
			// not a plain permission problem
			if pageErr.Kind == ErrorKindAccessDenied && len(r.Body) > 0 {
				if indicator := detectBotDefense(string(r.Body)); indicator != "" {
					fetchErr = newBotDetectionError(pageURL, indicator)
					return
				}
			}
			fetchErr = pageErr
			return
		}
		fetchErr = newTransportError(pageURL, err)
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := strings.ToLower(r.Headers.Get("Content-Type"))
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
			fetchErr = &PageError{
				Kind:       ErrorKindContentType,
				URL:        pageURL,
				StatusCode: r.StatusCode,
				Message:    "non-HTML content type " + contentType,
			}
			return
		}

		body := string(r.Body)
		if indicator := detectBotDefense(body); indicator != "" {
			fetchErr = newBotDetectionError(pageURL, indicator)
			return
		}
		if indicator := detectRateLimit(body); indicator != "" {
			fetchErr = &PageError{
				Kind:       ErrorKindRateLimit,
				URL:        pageURL,
				StatusCode: r.StatusCode,
				Message:    "rate-limit text in response body (" + indicator + ")",
			}
			return
		}

		result = &fetchResult{
			URL:        r.Request.URL.String(),
			HTML:       body,
			StatusCode: r.StatusCode,
		}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = newTransportError(pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, newTransportError(pageURL, errors.New("no response received"))
	}
	return result, nil
}
