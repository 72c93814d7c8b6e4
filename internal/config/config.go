package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	// DB_DRIVER: "mysql" or "sqlite"
	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TTL for cached transcripts; 0 disables the cache.
	TranscriptCacheTTL time.Duration

	AdminJWTSecret string

	// Retrieval
	RetrievalTopK     int
	EmbedBaseURL      string
	EmbedModel        string
	EmbedAPIKey       string
	EmbedTimeout      time.Duration
	ContextWindowSize int

	// Completion
	AIProvider        string
	DefaultModel      string
	AvailableModels   []string
	CompleteTimeout   time.Duration
	MaxTokens         int
	Temperature       float64
	TopP              float64
	OllamaBaseURL     string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string

	RabbitURL   string
	RabbitQueue string
}

func Load() Config {
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == "mysql" {
			dsn = "app:apppass@tcp(127.0.0.1:3306)/salon_chat?charset=utf8mb4&parseTime=true&loc=Local"
		} else {
			dsn = "salon_chat.db"
		}
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}
	cacheTTL := 30 * time.Minute
	if v := os.Getenv("TRANSCRIPT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cacheTTL = d
		}
	}

	topK := 4
	if v := os.Getenv("RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}

	embedBaseURL := os.Getenv("EMBED_BASE_URL")
	if embedBaseURL == "" {
		embedBaseURL = "http://localhost:11434/v1"
	}
	embedModel := os.Getenv("EMBED_MODEL")
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	embedTimeout := 10 * time.Second
	if v := os.Getenv("EMBED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			embedTimeout = d
		}
	}

	// 0 (the default) sends the full stored transcript with every prompt.
	windowSize := 0
	if v := os.Getenv("CHAT_CONTEXT_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowSize = n
		}
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "ollama"
	}
	defaultModel := os.Getenv("DEFAULT_MODEL")
	if defaultModel == "" {
		defaultModel = "llama3:latest"
	}
	models := []string{defaultModel}
	if v := os.Getenv("AVAILABLE_MODELS"); v != "" {
		models = nil
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
	}

	completeTimeout := 60 * time.Second
	if v := os.Getenv("COMPLETE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			completeTimeout = d
		}
	}
	maxTokens := 512
	if v := os.Getenv("MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}
	temperature := 0.7
	if v := os.Getenv("TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temperature = f
		}
	}
	topP := 0.9
	if v := os.Getenv("TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			topP = f
		}
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}
	openRouterBaseURL := os.Getenv("OPENROUTER_BASE_URL")
	if openRouterBaseURL == "" {
		openRouterBaseURL = "https://openrouter.ai/api/v1"
	}

	rabbitURL := os.Getenv("RABBIT_URL")
	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "reindex_jobs"
	}

	return Config{
		HTTPAddr: httpAddr,

		DBDriver: driver,
		DBDSN:    dsn,

		RedisAddr:          redisAddr,
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		TranscriptCacheTTL: cacheTTL,

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),

		RetrievalTopK:     topK,
		EmbedBaseURL:      embedBaseURL,
		EmbedModel:        embedModel,
		EmbedAPIKey:       os.Getenv("EMBED_API_KEY"),
		EmbedTimeout:      embedTimeout,
		ContextWindowSize: windowSize,

		AIProvider:        aiProvider,
		DefaultModel:      defaultModel,
		AvailableModels:   models,
		CompleteTimeout:   completeTimeout,
		MaxTokens:         maxTokens,
		Temperature:       temperature,
		TopP:              topP,
		OllamaBaseURL:     ollamaBaseURL,
		OpenRouterBaseURL: openRouterBaseURL,
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		RabbitURL:   rabbitURL,
		RabbitQueue: rabbitQueue,
	}
}
