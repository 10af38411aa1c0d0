package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/coalesce/internal/bank"
	"github.com/agenthands/coalesce/internal/config"
	"github.com/agenthands/coalesce/internal/driver"
	"github.com/agenthands/coalesce/internal/llm"
	"github.com/agenthands/coalesce/internal/logger"
	"github.com/agenthands/coalesce/internal/server"
	"github.com/agenthands/coalesce/internal/staging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	d, err := driver.NewMemgraphDriver(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, zlog)
	if err != nil {
		zlog.Fatalw("failed to connect to graph store", "uri", cfg.Graph.URI, "error", err)
	}
	defer d.Close(ctx)
	if err := d.BuildIndices(ctx); err != nil {
		zlog.Warnw("failed to build indices", "error", err)
	}

	oracle, embedder, err := llm.NewClient(ctx, llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
	})
	if err != nil {
		zlog.Fatalw("failed to initialize llm client", "provider", cfg.LLM.Provider, "error", err)
	}
	throttled := llm.NewThrottledClient(oracle, cfg.LLM.RequestsPerSecond, llm.DefaultRetryConfig(), zlog)

	st, err := staging.Open(cfg.Staging.Path)
	if err != nil {
		zlog.Fatalw("failed to open staging store", "path", cfg.Staging.Path, "error", err)
	}
	defer st.Close()

	b := bank.NewGraphBank(d, embedder, zlog)
	srv := server.New(b, throttled, st, cfg, zlog)
	r := srv.SetupRouter()

	zlog.Infow("starting server", "port", cfg.Server.Port, "provider", cfg.LLM.Provider)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		zlog.Fatalw("server exited", "error", err)
	}
}
