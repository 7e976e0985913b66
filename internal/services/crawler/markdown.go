package crawler

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// chromeSelectors are page elements stripped before markdown conversion:
// navigation, boilerplate, and anything that renders no content.
var chromeSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside",
	"form", "button",
}

// parsePage builds a goquery document from raw page HTML
func parsePage(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}
	return doc, nil
}

// pageTitle extracts the document title, preferring <title>, then the
// first heading
func pageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// pageToMarkdown strips page chrome and converts the content region to
// markdown. The main/article element wins when present; otherwise the whole
// body converts.
func pageToMarkdown(doc *goquery.Document, pageURL string) (string, error) {
	doc.Find(strings.Join(chromeSelectors, ", ")).Remove()

	content := doc.Find("main, article").First()
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}
	if content.Length() == 0 {
		return "", fmt.Errorf("page has no body")
	}

	domain := ""
	if parsed, err := url.Parse(pageURL); err == nil {
		domain = parsed.Scheme + "://" + parsed.Host
	}

	converter := md.NewConverter(domain, true, nil)
	markdown := converter.Convert(content)
	return strings.TrimSpace(markdown), nil
}
