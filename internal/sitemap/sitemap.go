package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/pkg/logger"
)

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

// Parse extracts the <loc> value of every <url> entry in a sitemaps.org
// XML document, in document order.
func Parse(r io.Reader) ([]string, error) {
	var set urlSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc != "" {
			urls = append(urls, loc)
		}
	}

	return urls, nil
}

// FetchURLs downloads a sitemap and returns its seed URLs.
func FetchURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid sitemap URL: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap download returned status %d", resp.StatusCode)
	}

	urls, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	logger.Info("Sitemap parsed",
		zap.String("url", sitemapURL),
		zap.Int("entries", len(urls)),
	)

	return urls, nil
}
