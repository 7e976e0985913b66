package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func testConfig() *common.CrawlerConfig {
	return &common.CrawlerConfig{
		MaxDepth:          2,
		MaxPages:          10,
		RequestTimeout:    5 * time.Second,
		BrowserTimeout:    5 * time.Second,
		BrowserEnabled:    false,
		RequestsPerSecond: 1000,
		FollowLinks:       true,
		SameDomainOnly:    true,
		MaxBodySize:       10 * 1024 * 1024,
	}
}

func newTestService(config *common.CrawlerConfig) *Service {
	if config == nil {
		config = testConfig()
	}
	return NewService(config, nil, arbor.NewLogger())
}

// pageHTML renders a small but substantive page linking to the given paths
func pageHTML(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><main>", title)
	fmt.Fprintf(&b, "<h1>%s</h1>", title)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d with enough prose to clear the boilerplate floor comfortably.</p>", i)
	}
	for _, link := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, link, link)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func TestCrawl_HealthySite(t *testing.T) {
	var mu sync.Mutex
	hits := make(map[string]int)

	mux := http.NewServeMux()
	record := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[path]++
			mu.Unlock()
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		})
	}
	record("/", pageHTML("Home", "/a", "/b", "/c"))
	record("/a", pageHTML("Page A"))
	record("/b", pageHTML("Page B"))
	record("/c", pageHTML("Page C"))

	server := httptest.NewServer(mux)
	defer server.Close()

	config := testConfig()
	config.MaxPages = 3
	svc := newTestService(config)

	result, err := svc.Crawl(context.Background(), "job-1", server.URL+"/", models.CrawlParams{MaxDepth: 2, MaxPages: 3})
	require.NoError(t, err)

	assert.Len(t, result.Pages, 3)
	assert.Equal(t, 3, result.HTTPAttempts)
	assert.Equal(t, 0, result.BrowserFallbacks)
	assert.Empty(t, result.Errors)

	assert.Equal(t, "Home", result.Pages[0].Title)
	assert.Equal(t, models.FetchMethodHTTP, result.Pages[0].FetchedVia)
	assert.Greater(t, len(result.Pages[0].Markdown), minContentLength)

	// No URL fetched twice
	mu.Lock()
	defer mu.Unlock()
	for path, count := range hits {
		assert.Equal(t, 1, count, "URL %s fetched %d times", path, count)
	}
}

func TestCrawl_RespectsMaxDepth(t *testing.T) {
	mux := http.NewServeMux()
	// A chain deeper than MaxDepth: / -> /d1 -> /d2 -> /d3
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Root", "/d1"))
	})
	mux.HandleFunc("/d1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Depth 1", "/d2"))
	})
	mux.HandleFunc("/d2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Depth 2", "/d3"))
	})
	mux.HandleFunc("/d3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Depth 3"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestService(nil)
	result, err := svc.Crawl(context.Background(), "job-1", server.URL+"/", models.CrawlParams{MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)

	// Depth 0 (root) and depth 1 only; /d2's link was never followed
	require.Len(t, result.Pages, 2)
	for _, page := range result.Pages {
		assert.LessOrEqual(t, page.Depth, 1)
	}
}

func TestCrawl_SameDomainOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Home", "/a", "https://elsewhere.example.com/external"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Page A"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestService(nil)
	result, err := svc.Crawl(context.Background(), "job-1", server.URL+"/", models.CrawlParams{MaxDepth: 2, MaxPages: 10})
	require.NoError(t, err)

	// The external link was never queued, so there is nothing but the two
	// local pages and no errors from unreachable hosts
	assert.Len(t, result.Pages, 2)
	assert.Empty(t, result.Errors)
}

func TestCrawl_CircuitBreaker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			// Every linked page is missing
			http.NotFound(w, r)
			return
		}
		links := make([]string, 10)
		for i := range links {
			links[i] = fmt.Sprintf("/missing-%d", i)
		}
		fmt.Fprint(w, pageHTML("Home", links...))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestService(nil)
	result, err := svc.Crawl(context.Background(), "job-1", server.URL+"/", models.CrawlParams{MaxDepth: 1, MaxPages: 20})
	require.NoError(t, err)

	// Exactly 5 consecutive failures trip the breaker; the remaining
	// queued URLs are left unprocessed
	assert.Len(t, result.Pages, 1)
	assert.Len(t, result.Errors, circuitBreakerThreshold)
	for _, crawlErr := range result.Errors {
		assert.Equal(t, models.FetchMethodHTTP, crawlErr.Method)
		assert.NotEmpty(t, crawlErr.Error)
		assert.False(t, crawlErr.Timestamp.IsZero())
	}
}

func TestCrawl_BotDetectionWithoutBrowser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>Checking your browser before accessing. Cloudflare Ray ID: abc123</body></html>`)
	}))
	defer server.Close()

	svc := newTestService(nil) // browser disabled
	result, err := svc.Crawl(context.Background(), "job-1", server.URL, models.CrawlParams{MaxPages: 3})
	require.NoError(t, err)

	assert.Empty(t, result.Pages)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "bot_detection")
	assert.Equal(t, 0, result.BrowserFallbacks)
}

// stubBrowser lets tests exercise the fallback path without Chrome
type stubBrowser struct {
	result *fetchResult
	err    error
	calls  int
}

func (s *stubBrowser) fetch(ctx context.Context, pageURL string) (*fetchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.URL = pageURL
	return &res, nil
}

func (s *stubBrowser) stop() error { return nil }

func TestCrawl_BrowserFallbackOnBotDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>Verify you are human - captcha required</body></html>`)
	}))
	defer server.Close()

	svc := newTestService(nil)
	browser := &stubBrowser{result: &fetchResult{HTML: pageHTML("Rendered Page")}}
	svc.browser = browser

	result, err := svc.Crawl(context.Background(), "job-1", server.URL, models.CrawlParams{MaxPages: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, browser.calls)
	assert.Equal(t, 1, result.BrowserFallbacks)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, models.FetchMethodBrowser, result.Pages[0].FetchedVia)
	assert.Empty(t, result.Errors)
}

func TestCrawl_PersistentChallengeFailsWithBrowser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>Cloudflare - checking your browser</body></html>`)
	}))
	defer server.Close()

	svc := newTestService(nil)
	browser := &stubBrowser{err: newBotDetectionError(server.URL, "cloudflare")}
	svc.browser = browser

	result, err := svc.Crawl(context.Background(), "job-1", server.URL, models.CrawlParams{MaxPages: 3})
	require.NoError(t, err)

	assert.Empty(t, result.Pages)
	assert.GreaterOrEqual(t, result.BrowserFallbacks, 1)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, models.FetchMethodBrowser, result.Errors[0].Method)
	assert.Equal(t, ErrorKindBotDetection, ClassifyError(browser.err))
}

func TestCrawl_NoBrowserFallbackForNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	svc := newTestService(nil)
	browser := &stubBrowser{result: &fetchResult{HTML: pageHTML("Should Not Render")}}
	svc.browser = browser

	result, err := svc.Crawl(context.Background(), "job-1", server.URL, models.CrawlParams{MaxPages: 1})
	require.NoError(t, err)

	// 404 is cheaper to fail fast; the browser would see the same thing
	assert.Equal(t, 0, browser.calls)
	assert.Equal(t, 0, result.BrowserFallbacks)
	assert.Len(t, result.Errors, 1)
}

func TestCrawl_SkipsBoilerplatePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Home", "/thin"))
	})
	mux.HandleFunc("/thin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Thin</title></head><body><p>ok</p></body></html>")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestService(nil)
	result, err := svc.Crawl(context.Background(), "job-1", server.URL+"/", models.CrawlParams{MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)

	// The thin page is skipped, not an error
	assert.Len(t, result.Pages, 1)
	assert.Empty(t, result.Errors)
}

func TestCrawl_InvalidSeedURL(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.Crawl(context.Background(), "job-1", "ftp://example.com", models.CrawlParams{})
	assert.Error(t, err)

	_, err = svc.Crawl(context.Background(), "job-1", "://not-a-url", models.CrawlParams{})
	assert.Error(t, err)
}
