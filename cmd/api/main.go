package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/api/handlers"
	"github.com/adgm-assist/backend/internal/chat"
	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/middleware/ratelimit"
	"github.com/adgm-assist/backend/internal/middleware/security"
	"github.com/adgm-assist/backend/internal/retrieval"
	"github.com/adgm-assist/backend/internal/search/azure"
	"github.com/adgm-assist/backend/internal/storage/sqlite"
	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/internal/vector/memory"
	"github.com/adgm-assist/backend/internal/vector/milvus"
	"github.com/adgm-assist/backend/pkg/config"
	appLogger "github.com/adgm-assist/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ADGM Assist API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	store, closeStore, err := openVectorStore(cfg)
	if err != nil {
		appLogger.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer closeStore()

	appLogger.Info("Vector store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.Int("records", store.Len()),
	)

	llmClient := llm.NewClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		Temperature:     cfg.LLM.Temperature,
		TopP:            cfg.LLM.TopP,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		TimeoutSec:      cfg.LLM.TimeoutSec,
	})

	var retriever retrieval.Retriever
	topK := cfg.Store.TopK
	if cfg.Search.Enabled {
		retriever = azure.NewClient(
			cfg.Search.Endpoint,
			cfg.Search.APIKey,
			cfg.Search.IndexName,
			time.Duration(cfg.Search.TimeoutSec)*time.Second,
		)
		topK = cfg.Search.MaxResults
		appLogger.Info("Using Azure Cognitive Search retrieval",
			zap.String("index", cfg.Search.IndexName),
			zap.Int("max_results", topK),
		)
	} else {
		retriever = retrieval.NewVectorRetriever(llmClient, store)
	}

	sessions := chat.NewManager()
	generator := chat.NewGenerator(retriever, llmClient, topK)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.Headers())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(rateLimiter.Middleware())

	chatHandler := handlers.NewChatHandler(sessions, generator, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(sessions, generator)

	api := app.Group("/api/v1")

	api.Post("/sessions", chatHandler.CreateSession)
	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/sessions/:id/history", chatHandler.GetHistory)
	api.Get("/chat/records", chatHandler.GetChatRecords)
	api.Delete("/sessions/:id", chatHandler.EndSession)

	api.Get("/documents", documentHandler.ListDocuments)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.Handler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ready",
			"records": store.Len(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

// openVectorStore picks the configured backend. The file backend must
// load an existing index; starting the API without one is a
// misconfiguration, not something to paper over with an empty store.
func openVectorStore(cfg *config.Config) (vector.Store, func(), error) {
	switch cfg.Store.Backend {
	case "milvus":
		store, err := milvus.NewStore(
			context.Background(),
			cfg.Milvus.Endpoint,
			cfg.Milvus.CollectionName,
			cfg.Milvus.VectorDim,
		)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "file":
		store, err := memory.Load(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load vector index from %s: %w", cfg.Store.Path, err)
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", cfg.Store.Backend)
	}
}
