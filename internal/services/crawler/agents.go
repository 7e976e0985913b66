package crawler

import (
	"math/rand"
)

// userAgents is the fixed pool of browser-realistic user agents. One is
// chosen at random per request so a crawl does not present a single
// fingerprint across its whole request stream.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36 Edg/128.0.0.0",
}

// randomUserAgent picks a user agent from the pool
func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// browserHeaders returns the request headers a real browser would send.
// Pages below the seed carry a same-site Referer, since a browser reaching
// a deep page navigated there from somewhere.
func browserHeaders(seedURL string, depth int) map[string]string {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Cache-Control":             "max-age=0",
	}
	if depth > 0 {
		headers["Referer"] = seedURL
		headers["Sec-Fetch-Site"] = "same-origin"
	} else {
		headers["Sec-Fetch-Site"] = "none"
	}
	return headers
}
