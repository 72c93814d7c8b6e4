package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumisalon/salon-chat/internal/ai"
	"github.com/lumisalon/salon-chat/internal/catalog"
	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/config"
	"github.com/lumisalon/salon-chat/internal/db"
	"github.com/lumisalon/salon-chat/internal/httpapi"
	"github.com/lumisalon/salon-chat/internal/httpapi/handlers"
	"github.com/lumisalon/salon-chat/internal/store/rabbitmq"
	"github.com/lumisalon/salon-chat/internal/store/redisstore"
	"github.com/lumisalon/salon-chat/internal/vector"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gdb.AutoMigrate(
		&chat.Session{}, &chat.Message{}, &chat.Setting{}, &chat.IndexJob{},
		&catalog.Service{}, &vector.ServiceVector{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	repo := chat.NewRepo(gdb)
	catalogRepo := catalog.NewRepo(gdb)
	vectors := vector.NewStore(gdb)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	index, err := vectors.LoadIndex(ctx)
	cancel()
	if err != nil {
		log.Fatalf("load vector index: %v", err)
	}
	log.Printf("vector index loaded vectors=%d", index.Len())

	// Transcript cache is optional; chat works without redis.
	var cache chat.TranscriptCache
	if cfg.RedisAddr != "" && cfg.TranscriptCacheTTL > 0 {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TranscriptCacheTTL)
		pctx, pcancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rds.Ping(pctx); err != nil {
			log.Printf("redis unavailable, transcript cache disabled err=%v", err)
		} else {
			cache = rds
		}
		pcancel()
	}

	params := ai.Params{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	reg := ai.NewRegistry()
	reg.Register("ollama", ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.DefaultModel, params))
	if cfg.OpenRouterAPIKey != "" {
		reg.Register("openrouter", ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.DefaultModel,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName, params,
		))
	}

	embedder := ai.NewEmbedClient(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedTimeout)

	svc := chat.NewService(repo, catalogRepo, index, embedder, reg, cache, chat.Options{
		ProviderName:    cfg.AIProvider,
		DefaultModel:    cfg.DefaultModel,
		AvailableModels: cfg.AvailableModels,
		TopK:            cfg.RetrievalTopK,
		ContextWindow:   cfg.ContextWindowSize,
		CompleteTimeout: cfg.CompleteTimeout,
	})

	// Reindex publishing is optional; without rabbit the admin endpoint
	// reports the queue as unavailable but chat is unaffected.
	var pub *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		pub, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Printf("rabbit unavailable, reindex disabled err=%v", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	h := handlers.NewHandler(svc, repo, pub, vectors, index)
	r := httpapi.NewRouter(h, cfg.AdminJWTSecret)

	log.Printf("api listening addr=%s provider=%s model=%s", cfg.HTTPAddr, cfg.AIProvider, cfg.DefaultModel)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
