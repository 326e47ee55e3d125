package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/api/handlers"
	"github.com/dealsense/backend/internal/assembly"
	"github.com/dealsense/backend/internal/cache"
	localcache "github.com/dealsense/backend/internal/cache/local"
	rediscache "github.com/dealsense/backend/internal/cache/redis"
	"github.com/dealsense/backend/internal/chat"
	"github.com/dealsense/backend/internal/compress"
	"github.com/dealsense/backend/internal/ingestion"
	"github.com/dealsense/backend/internal/llm"
	"github.com/dealsense/backend/internal/memory"
	"github.com/dealsense/backend/internal/middleware/ratelimit"
	"github.com/dealsense/backend/internal/middleware/security"
	"github.com/dealsense/backend/internal/middleware/validation"
	"github.com/dealsense/backend/internal/rerank"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/storage/sqlite"
	"github.com/dealsense/backend/internal/vector/milvus"
	"github.com/dealsense/backend/pkg/config"
	appLogger "github.com/dealsense/backend/pkg/logger"
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

	appLogger.Info("Starting DealSense API server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	summaryCache := newSummaryCache(cfg)

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDim,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	understanding := analysis.NewUnderstandingService(
		llmClient,
		"financial and real-estate",
		time.Duration(cfg.Pipeline.UnderstandingSec)*time.Second,
	)

	retriever := retrieval.NewHybridRetriever(
		llmClient,
		retrieval.MilvusIndex{Client: milvusClient},
		retrieval.FTSIndex{Client: sqliteClient},
		sqliteClient,
		retrieval.Config{
			Candidates: cfg.Pipeline.RetrievalCandidates,
			FusedTopK:  cfg.Pipeline.FusedTopK,
			RRFK:       cfg.Pipeline.RRFK,
		},
	)

	compressor := compress.NewCompressor(cfg.Pipeline.CompressionRatio, cfg.Pipeline.CharsPerToken)

	var encoder retrieval.CrossEncoder
	if cfg.Rerank.Enabled {
		encoder = rerank.NewClient(cfg.Rerank.Endpoint, cfg.Rerank.TimeoutSec, cfg.Rerank.BatchSize)
	}
	reranker := retrieval.NewReranker(
		encoder,
		retrieval.NewMetadataBooster(withChunkShape(retrieval.ForReranker(), cfg)),
		compressor.CompressTextToTokenLimit,
		cfg.Rerank.MaxTokens,
		cfg.Pipeline.RerankTopK,
	)

	memoryManager := memory.NewManager(sqliteClient, summaryCache, llmClient, memory.Config{
		HistoryLimit:         cfg.Pipeline.HistoryLimit,
		MinMessages:          cfg.Pipeline.MinMessages,
		TriggerRatio:         cfg.Pipeline.TriggerRatio,
		VerbatimMessageCount: cfg.Pipeline.VerbatimMessageCount,
		CharsPerToken:        cfg.Pipeline.CharsPerToken,
		MaxInputTokens:       cfg.Pipeline.MaxInputTokens,
		SummaryCharCeiling:   cfg.Pipeline.SummaryCharCeiling,
	})

	enforcer := assembly.NewEnforcer(assembly.Budget{
		MaxInputChars:      cfg.Pipeline.MaxInputChars,
		AnswerReserveChars: cfg.Pipeline.AnswerReserveChars,
		ChunkFloor:         cfg.Pipeline.ChunkFloor,
		MessageFloor:       cfg.Pipeline.MessageFloor,
		SummaryCharCeiling: cfg.Pipeline.SummaryCharCeiling,
	}, memoryManager)

	assembler := assembly.NewAssembler(
		sqliteClient,
		understanding,
		retriever,
		retrieval.NewMetadataBooster(withChunkShape(retrieval.ForHybridRetriever(), cfg)),
		reranker,
		compressor,
		memoryManager,
		enforcer,
		assembly.MatchConfig{
			NameThreshold:   cfg.Pipeline.MatchThreshold,
			EntityThreshold: cfg.Pipeline.EntityThreshold,
		},
	)

	citations := assembly.NewCitationResolver(sqliteClient)
	chatService := chat.NewService(sqliteClient, assembler, llmClient, citations, summaryCache)
	processor := ingestion.NewProcessor(sqliteClient, milvusClient, llmClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		PerMinute:    cfg.Server.RatePerMinute,
		ChatTurnCost: cfg.Server.ChatTurnCost,
		Logger:       appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(chatService)
	wsHandler := handlers.NewWebSocketHandler(chatService)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient)
	sessionHandler := handlers.NewSessionHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)

	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Get("/sessions/:id/messages", sessionHandler.GetMessages)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Get("/documents/:id", documentHandler.GetDocument)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
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

// newSummaryCache picks the configured cache backend, falling back to the
// in-process cache when Redis is unreachable.
func newSummaryCache(cfg *config.Config) cache.SummaryCache {
	ttl := time.Duration(cfg.Cache.TTLSec) * time.Second

	if cfg.Cache.Backend == "redis" {
		client, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err == nil {
			return client
		}
		appLogger.Warn("Redis unavailable, using local summary cache", zap.Error(err))
	}

	local, err := localcache.New(cfg.Cache.LocalSize)
	if err != nil {
		appLogger.Fatal("Failed to create local cache", zap.Error(err))
	}
	return local
}

func withChunkShape(params retrieval.BoostParams, cfg *config.Config) retrieval.BoostParams {
	params.EarlyPageCount = cfg.Pipeline.EarlyPageCount
	params.ShortChunkChars = cfg.Pipeline.ShortChunkChars
	params.LongChunkChars = cfg.Pipeline.LongChunkChars
	return params
}
