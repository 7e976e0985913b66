package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a page-level crawl failure. The kind decides whether
// the browser fallback runs and how a fully failed crawl is summarized for
// the user.
type ErrorKind string

const (
	ErrorKindBotDetection ErrorKind = "bot_detection"
	ErrorKindAccessDenied ErrorKind = "access_denied"
	ErrorKindRateLimit    ErrorKind = "rate_limit"
	ErrorKindTransport    ErrorKind = "transport"
	ErrorKindContentType  ErrorKind = "content_type"
	ErrorKindOther        ErrorKind = "other"
)

// FallbackEligible reports whether the browser fallback should be tried for
// this error class. Only blocking-related failures qualify; anything else
// (404, DNS failure, non-blocking timeout) fails fast because the browser
// would see the same thing, slower.
func (k ErrorKind) FallbackEligible() bool {
	switch k {
	case ErrorKindBotDetection, ErrorKindAccessDenied, ErrorKindRateLimit:
		return true
	}
	return false
}

// PageError is a classified page fetch failure
type PageError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *PageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// ClassifyError extracts the error kind from any error in the chain,
// defaulting to transport for unclassified failures.
func ClassifyError(err error) ErrorKind {
	var pageErr *PageError
	if errors.As(err, &pageErr) {
		return pageErr.Kind
	}
	return ErrorKindTransport
}

// fallbackEligible reports whether any error in the chain warrants the
// browser fallback
func fallbackEligible(err error) bool {
	return ClassifyError(err).FallbackEligible()
}

// botIndicators are substrings that mark a response body as an anti-bot
// challenge rather than real content. Matched case-insensitively.
var botIndicators = []string{
	"cloudflare",
	"captcha",
	"checking your browser",
	"ray id",
	"verify you are human",
	"access denied",
	"unusual traffic",
	"ddos protection",
	"just a moment...",
	"please enable cookies",
	"bot detection",
}

// rateLimitIndicators mark explicit rate-limit or forbidden text in a body
// that arrived with a success status
var rateLimitIndicators = []string{
	"rate limit",
	"too many requests",
	"temporarily blocked",
}

// detectBotDefense scans a body for anti-bot indicators and returns the
// first match, or "" when the body looks like real content.
func detectBotDefense(body string) string {
	lower := strings.ToLower(body)
	for _, indicator := range botIndicators {
		if strings.Contains(lower, indicator) {
			return indicator
		}
	}
	return ""
}

// detectRateLimit scans a body for explicit rate-limit text
func detectRateLimit(body string) string {
	lower := strings.ToLower(body)
	for _, indicator := range rateLimitIndicators {
		if strings.Contains(lower, indicator) {
			return indicator
		}
	}
	return ""
}

func newBotDetectionError(pageURL, indicator string) *PageError {
	return &PageError{
		Kind:    ErrorKindBotDetection,
		URL:     pageURL,
		Message: fmt.Sprintf("bot defense detected (indicator %q)", indicator),
	}
}

// classifyStatusError maps an HTTP error status to its error kind
func classifyStatusError(pageURL string, statusCode int, err error) *PageError {
	switch statusCode {
	case 403:
		return &PageError{
			Kind:       ErrorKindAccessDenied,
			URL:        pageURL,
			StatusCode: statusCode,
			Message:    "access denied (HTTP 403)",
			Err:        err,
		}
	case 429:
		return &PageError{
			Kind:       ErrorKindRateLimit,
			URL:        pageURL,
			StatusCode: statusCode,
			Message:    "rate limited (HTTP 429)",
			Err:        err,
		}
	}
	return &PageError{
		Kind:       ErrorKindOther,
		URL:        pageURL,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d", statusCode),
		Err:        err,
	}
}

func newTransportError(pageURL string, err error) *PageError {
	return &PageError{
		Kind:    ErrorKindTransport,
		URL:     pageURL,
		Message: "request failed",
		Err:     err,
	}
}
