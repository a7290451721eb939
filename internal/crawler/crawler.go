package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adgm-assist/backend/internal/fetch"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/pkg/logger"
)

type Config struct {
	// MaxDepth bounds how many link hops from the seed are followed.
	// The seed itself is depth 1.
	MaxDepth int

	// MaxPages is a hard cap on fetched pages per run.
	MaxPages int

	// ContentMaxChars truncates each page's extracted text.
	ContentMaxChars int

	// RequestsPerSec throttles fetches. Zero disables throttling.
	RequestsPerSec float64
}

type Crawler struct {
	fetcher *fetch.Fetcher
	cfg     Config
	limiter *rate.Limiter
}

func New(fetcher *fetch.Fetcher, cfg Config) *Crawler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2000
	}
	if cfg.ContentMaxChars <= 0 {
		cfg.ContentMaxChars = 3000
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		limiter: limiter,
	}
}

type queueItem struct {
	url   string
	depth int
}

// Crawl walks same-origin links from seed breadth-first up to the depth
// bound and returns the pages in discovery order, with dense sequential
// IDs assigned at the end. A page that fails to fetch stays in the
// visited set and contributes no links.
func (c *Crawler) Crawl(ctx context.Context, seed string) ([]models.Page, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL %q: %w", seed, err)
	}
	if seedURL.Scheme == "" || seedURL.Host == "" {
		return nil, fmt.Errorf("seed URL %q must be absolute", seed)
	}

	origin := seedURL.Scheme + "://" + seedURL.Host

	visited := make(map[string]bool)
	queue := []queueItem{{url: seed, depth: 1}}
	var pages []models.Page

	logger.Info("Crawl started",
		zap.String("seed", seed),
		zap.Int("max_depth", c.cfg.MaxDepth),
	)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := queue[0]
		queue = queue[1:]

		if visited[item.url] || item.depth > c.cfg.MaxDepth {
			continue
		}
		if !sameOrigin(item.url, origin) {
			continue
		}
		if len(pages) >= c.cfg.MaxPages {
			logger.Warn("Crawl page cap reached", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}
		visited[item.url] = true

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		doc, err := c.fetcher.Fetch(ctx, item.url)
		if err != nil {
			// Already logged by the fetcher; the URL stays visited.
			continue
		}

		content := truncateChars(doc.Text, c.cfg.ContentMaxChars)

		pages = append(pages, models.Page{
			URL:     item.url,
			Title:   doc.Title,
			Content: content,
		})
		metrics.PagesCrawled.Inc()

		if item.depth < c.cfg.MaxDepth {
			for _, link := range doc.Links {
				if !visited[link] && sameOrigin(link, origin) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}
	}

	for i := range pages {
		pages[i].ID = strconv.Itoa(i + 1)
	}

	logger.Info("Crawl finished",
		zap.String("seed", seed),
		zap.Int("pages", len(pages)),
		zap.Int("visited", len(visited)),
	)

	return pages, nil
}

// truncateChars caps text at max characters, never splitting a rune, so
// truncated content stays valid UTF-8.
func truncateChars(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func sameOrigin(rawURL, origin string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme+"://"+u.Host == origin
}
