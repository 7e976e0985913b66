package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// browserFetcher is the phase-2 fetch strategy. It is an interface so the
// crawl loop can be exercised in tests without launching Chrome.
type browserFetcher interface {
	fetch(ctx context.Context, pageURL string) (*fetchResult, error)
	stop() error
}

// chromeFetcher renders pages in headless Chrome via chromedp. The
// allocator starts lazily on the first fallback and lives until Stop, so
// repeated fallbacks within one process share a browser.
type chromeFetcher struct {
	config *common.CrawlerConfig
	logger arbor.ILogger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func newChromeFetcher(config *common.CrawlerConfig, logger arbor.ILogger) *chromeFetcher {
	return &chromeFetcher{
		config: config,
		logger: logger,
	}
}

// allocator returns the shared exec allocator, starting it on first use
func (f *chromeFetcher) allocator() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.allocCtx == nil {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
		f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		f.logger.Debug().Msg("Browser allocator started")
	}
	return f.allocCtx
}

// fetch navigates to the page in a fresh browser tab scoped to this call.
// The tab is released on every exit path; only the allocator outlives the
// fetch.
func (f *chromeFetcher) fetch(ctx context.Context, pageURL string) (*fetchResult, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator())
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, f.config.BrowserTimeout)
	defer timeoutCancel()

	// Honor the caller's cancellation alongside the navigation budget
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	blockResources(taskCtx)

	settle := f.config.SettleDelay
	if settle <= 0 {
		settle = 2 * time.Second
	}

	var html, title string
	err := chromedp.Run(taskCtx,
		fetch.Enable(),
		network.Enable(),
		emulation.SetUserAgentOverride(randomUserAgent()),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &PageError{
			Kind:    ErrorKindOther,
			URL:     pageURL,
			Message: "browser navigation failed",
			Err:     fmt.Errorf("chromedp run: %w", err),
		}
	}

	// A challenge that survives full rendering means the browser did not
	// get past the wall either
	if indicator := detectBotDefense(html); indicator != "" {
		return nil, newBotDetectionError(pageURL, indicator)
	}

	return &fetchResult{
		URL:  pageURL,
		HTML: html,
	}, nil
}

// blockResources fails image, media, font, and stylesheet requests so
// navigation only spends time on the document and the scripts that render
// it
func blockResources(taskCtx context.Context) {
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(taskCtx)
			execCtx := cdp.WithExecutor(taskCtx, c.Target)

			switch paused.ResourceType {
			case network.ResourceTypeImage,
				network.ResourceTypeMedia,
				network.ResourceTypeFont,
				network.ResourceTypeStylesheet:
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			default:
				_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			}
		}()
	})
}

// stop tears down the shared allocator. Safe to call without a prior fetch.
func (f *chromeFetcher) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.allocCancel != nil {
		f.allocCancel()
		f.allocCtx = nil
		f.allocCancel = nil
		f.logger.Debug().Msg("Browser allocator stopped")
	}
	return nil
}
