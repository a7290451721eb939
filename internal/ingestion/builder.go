package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/chunker"
	"github.com/adgm-assist/backend/internal/fetch"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/pkg/logger"
	"github.com/adgm-assist/backend/pkg/retry"
)

// Embedder is the single capability the builder needs from the LLM layer.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is optional; a nil cache disables caching.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, text string, embedding []float32) error
}

type Builder struct {
	fetcher  *fetch.Fetcher
	chunker  *chunker.Chunker
	embedder Embedder
	store    vector.Store
	cache    EmbeddingCache

	// Embedding retry policy: 3 attempts total, fixed 2s pause. A chunk
	// that still fails is dropped and the batch continues; it is not
	// revisited in a later pass.
	retryConfig retry.Config
}

func NewBuilder(fetcher *fetch.Fetcher, ch *chunker.Chunker, embedder Embedder, store vector.Store) *Builder {
	return &Builder{
		fetcher:     fetcher,
		chunker:     ch,
		embedder:    embedder,
		store:       store,
		retryConfig: retry.FixedConfig(3, 2*time.Second, logger.GetLogger()),
	}
}

// WithCache enables the embedding cache.
func (b *Builder) WithCache(cache EmbeddingCache) *Builder {
	b.cache = cache
	return b
}

// WithRetryConfig overrides the embedding retry policy (tests).
func (b *Builder) WithRetryConfig(cfg retry.Config) *Builder {
	b.retryConfig = cfg
	return b
}

// BuildFromPages chunks and embeds already-crawled pages, appending the
// successful records to the store. Dropped chunks are logged; the run
// never aborts on a single chunk.
func (b *Builder) BuildFromPages(ctx context.Context, pages []models.Page) (int, error) {
	added := 0
	for _, page := range pages {
		n, err := b.ingestText(ctx, page.URL, page.Content)
		if err != nil {
			return added, err
		}
		added += n
	}

	logger.Info("Build from pages finished",
		zap.Int("pages", len(pages)),
		zap.Int("records", added),
	)

	return added, nil
}

// BuildFromURLs fetches each URL and ingests its text. A URL that fails
// to fetch is skipped.
func (b *Builder) BuildFromURLs(ctx context.Context, urls []string) (int, error) {
	added := 0
	for _, u := range urls {
		doc, err := b.fetcher.Fetch(ctx, u)
		if err != nil {
			logger.Warn("Skipping URL, no content fetched", zap.String("url", u))
			continue
		}
		if doc.Text == "" {
			logger.Warn("Skipping URL, empty text", zap.String("url", u))
			continue
		}

		n, err := b.ingestText(ctx, u, doc.Text)
		if err != nil {
			return added, err
		}
		added += n
	}

	logger.Info("Build from URLs finished",
		zap.Int("urls", len(urls)),
		zap.Int("records", added),
	)

	return added, nil
}

func (b *Builder) ingestText(ctx context.Context, sourceURL, text string) (int, error) {
	chunks := b.chunker.Split(text)

	added := 0
	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return added, err
		}

		embedding, err := b.embed(ctx, chunk)
		if err != nil {
			logger.Error("Dropping chunk, embedding failed after retries",
				zap.String("url", sourceURL),
				zap.Error(err),
			)
			metrics.ChunksDropped.Inc()
			continue
		}

		err = b.store.Add(ctx, vector.Record{
			SourceURL: sourceURL,
			Text:      chunk,
			Embedding: embedding,
		})
		if err != nil {
			return added, fmt.Errorf("failed to add record to store: %w", err)
		}
		added++
		metrics.EmbeddingsGenerated.Inc()
	}

	logger.Debug("Page ingested",
		zap.String("url", sourceURL),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", added),
	)

	return added, nil
}

func (b *Builder) embed(ctx context.Context, chunk string) ([]float32, error) {
	if b.cache != nil {
		if emb, ok, err := b.cache.GetEmbedding(ctx, chunk); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return emb, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := retry.DoWithResult(ctx, b.retryConfig, func() ([]float32, error) {
		return b.embedder.GenerateEmbedding(ctx, chunk)
	})
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.SetEmbedding(ctx, chunk, embedding); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// SavePages writes one crawl run's output as a JSON array, replacing any
// previous run's file.
func SavePages(path string, pages []models.Page) error {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pages: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pages file: %w", err)
	}

	logger.Info("Crawl output saved", zap.String("path", path), zap.Int("pages", len(pages)))
	return nil
}

// LoadPages reads a crawl output file.
func LoadPages(path string) ([]models.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages file: %w", err)
	}

	var pages []models.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("failed to parse pages file: %w", err)
	}

	return pages, nil
}
