package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/pkg/logger"
)

// ErrFetch marks a failed page retrieval. Callers treat it as "skip this
// page"; a fetch failure never fails a whole crawl or build run.
var ErrFetch = errors.New("fetch failed")

var whitespace = regexp.MustCompile(`\s+`)

// Document is the visible content of one fetched page.
type Document struct {
	URL   string
	Title string
	Text  string
	Links []string
}

type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves url and extracts its visible text and outbound links.
// All failures (network, timeout, non-2xx, non-HTML body) are reported as
// ErrFetch so callers can skip the page and continue.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request for %s: %v", ErrFetch, pageURL, err)
	}
	req.Header.Set("User-Agent", "adgm-assist-crawler/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Warn("Page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("Page fetch returned non-success status",
			zap.String("url", pageURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, pageURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("%w: %s: non-HTML content type %q", ErrFetch, pageURL, contentType)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: parse: %v", ErrFetch, pageURL, err)
	}

	base := resp.Request.URL

	return &Document{
		URL:   pageURL,
		Title: extractTitle(doc),
		Text:  extractText(doc),
		Links: extractLinks(doc, base),
	}, nil
}

func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		links = append(links, resolved.String())
	})
	return links
}
