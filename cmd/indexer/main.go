package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/cache/redis"
	"github.com/adgm-assist/backend/internal/chunker"
	"github.com/adgm-assist/backend/internal/crawler"
	"github.com/adgm-assist/backend/internal/fetch"
	"github.com/adgm-assist/backend/internal/ingestion"
	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/search/azure"
	"github.com/adgm-assist/backend/internal/sitemap"
	"github.com/adgm-assist/backend/internal/storage/sqlite"
	"github.com/adgm-assist/backend/internal/vector/memory"
	"github.com/adgm-assist/backend/pkg/config"
	"github.com/adgm-assist/backend/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "indexer",
		Short: "Build and maintain the ADGM content index",
		Long: "indexer crawls the ADGM website, chunks and embeds the crawled text, " +
			"and writes the vector index the API server answers from.",
		SilenceUsage: true,
	}

	root.AddCommand(newCrawlCmd())
	root.AddCommand(newSitemapCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newUploadCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and the logger; every subcommand starts here.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	metrics.Init()

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so a long
// crawl or build can stop cleanly mid-run.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newCrawlCmd() *cobra.Command {
	var seed string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the site and save the pages file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if seed == "" {
				seed = cfg.Crawler.SeedURL
			}

			ctx, cancel := signalContext()
			defer cancel()

			fetcher := fetch.New(time.Duration(cfg.Crawler.FetchTimeoutSec) * time.Second)
			c := crawler.New(fetcher, crawler.Config{
				MaxDepth:        cfg.Crawler.MaxDepth,
				MaxPages:        cfg.Crawler.MaxPages,
				ContentMaxChars: cfg.Crawler.ContentMaxChars,
				RequestsPerSec:  cfg.Crawler.RequestsPerSec,
			})

			logger.Info("Crawl starting", zap.String("seed", seed))

			pages, err := c.Crawl(ctx, seed)
			if err != nil {
				return fmt.Errorf("crawl failed: %w", err)
			}

			if err := ingestion.SavePages(cfg.Crawler.PagesPath, pages); err != nil {
				return err
			}

			db, err := sqlite.NewClient(cfg.SQLite.Path)
			if err != nil {
				return fmt.Errorf("failed to open SQLite: %w", err)
			}
			defer db.Close()

			if err := db.InitSchema(); err != nil {
				return err
			}
			if err := db.ReplaceDocuments(pages); err != nil {
				return fmt.Errorf("failed to mirror pages to SQLite: %w", err)
			}

			logger.Info("Crawl finished",
				zap.Int("pages", len(pages)),
				zap.String("output", cfg.Crawler.PagesPath),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "seed URL (defaults to crawler.seedURL from config)")

	return cmd
}

func newSitemapCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "sitemap <sitemap-url>",
		Short: "Extract page URLs from a sitemap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			urls, err := sitemap.FetchURLs(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to read sitemap: %w", err)
			}

			if out == "" {
				for _, u := range urls {
					fmt.Println(u)
				}
				return nil
			}

			data := strings.Join(urls, "\n") + "\n"
			if err := os.WriteFile(out, []byte(data), 0644); err != nil {
				return fmt.Errorf("failed to write URL list: %w", err)
			}

			logger.Info("Sitemap URLs saved", zap.String("output", out), zap.Int("urls", len(urls)))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "write URLs to this file instead of stdout")

	return cmd
}

func newBuildCmd() *cobra.Command {
	var (
		urlsFile string
		fresh    bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Chunk, embed and build the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			counter, err := chunker.NewTiktokenCounter()
			if err != nil {
				return fmt.Errorf("failed to load tokenizer: %w", err)
			}

			fetcher := fetch.New(time.Duration(cfg.Crawler.FetchTimeoutSec) * time.Second)
			ck := chunker.New(counter, cfg.Chunker.MaxTokens)

			llmClient := llm.NewClient(llm.Config{
				APIKey:          cfg.LLM.APIKey,
				Model:           cfg.LLM.Model,
				EmbeddingModel:  cfg.LLM.EmbeddingModel,
				Temperature:     cfg.LLM.Temperature,
				TopP:            cfg.LLM.TopP,
				MaxOutputTokens: cfg.LLM.MaxOutputTokens,
				TimeoutSec:      cfg.LLM.TimeoutSec,
			})

			store := memory.New(cfg.Store.Path)
			builder := ingestion.NewBuilder(fetcher, ck, llmClient, store)

			if cfg.Redis.Enabled {
				cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
				if err != nil {
					logger.Warn("Redis unavailable, building without embedding cache", zap.Error(err))
				} else {
					defer cache.Close()
					if fresh {
						if err := cache.Invalidate(ctx); err != nil {
							logger.Warn("Failed to invalidate embedding cache", zap.Error(err))
						}
					}
					builder = builder.WithCache(cache)
				}
			}

			var added int
			if urlsFile != "" {
				urls, err := readURLList(urlsFile)
				if err != nil {
					return err
				}
				added, err = builder.BuildFromURLs(ctx, urls)
				if err != nil {
					return fmt.Errorf("build failed: %w", err)
				}
			} else {
				pages, err := ingestion.LoadPages(cfg.Crawler.PagesPath)
				if err != nil {
					return fmt.Errorf("no crawl output to build from: %w", err)
				}
				added, err = builder.BuildFromPages(ctx, pages)
				if err != nil {
					return fmt.Errorf("build failed: %w", err)
				}
			}

			if err := store.Persist(); err != nil {
				return fmt.Errorf("failed to persist vector index: %w", err)
			}

			logger.Info("Index built",
				zap.Int("records", added),
				zap.String("output", cfg.Store.Path),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&urlsFile, "urls", "", "build from a URL list file instead of the crawl output")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "invalidate the embedding cache before building")

	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload crawled pages to Azure Cognitive Search",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Search.Endpoint == "" || cfg.Search.APIKey == "" {
				return fmt.Errorf("search.endpoint and search.apiKey must be configured")
			}

			ctx, cancel := signalContext()
			defer cancel()

			pages, err := ingestion.LoadPages(cfg.Crawler.PagesPath)
			if err != nil {
				return fmt.Errorf("no crawl output to upload: %w", err)
			}

			client := azure.NewClient(
				cfg.Search.Endpoint,
				cfg.Search.APIKey,
				cfg.Search.IndexName,
				time.Duration(cfg.Search.TimeoutSec)*time.Second,
			)

			if err := client.Upload(ctx, pages); err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			logger.Info("Pages uploaded",
				zap.Int("pages", len(pages)),
				zap.String("index", cfg.Search.IndexName),
			)
			return nil
		},
	}
}

func readURLList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("URL list %s is empty", path)
	}

	return urls, nil
}
