// Command refine runs one refinement workflow against a live concept bank
// and prints the accumulated merges and relationships as JSON. Useful for
// trying a scope without standing up the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/coalesce/internal/bank"
	"github.com/agenthands/coalesce/internal/config"
	"github.com/agenthands/coalesce/internal/core"
	"github.com/agenthands/coalesce/internal/driver"
	"github.com/agenthands/coalesce/internal/llm"
	"github.com/agenthands/coalesce/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "config/config.toml", "path to TOML config")
	scope := flag.String("scope", "", "concept bank scope to refine (required)")
	maxIterations := flag.Int("max-iterations", 0, "override workflow max_iterations")
	flag.Parse()

	if *scope == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	cfg, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *maxIterations > 0 {
		cfg.Workflow.MaxIterations = *maxIterations
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

	b := bank.NewGraphBank(d, embedder, zlog)
	refiner, err := core.NewRefiner(b, throttled, cfg.Workflow, zlog)
	if err != nil {
		zlog.Fatalw("invalid workflow configuration", "error", err)
	}
	refiner.OnProgress = func(p core.Progress) {
		zlog.Infow("progress",
			"iteration", p.Iteration,
			"phase", string(p.Phase),
			"merges", p.Merges.TotalAccumulated,
			"relationships", p.Relationships.TotalAccumulated)
	}

	result, err := refiner.Run(ctx, *scope)
	if err != nil {
		zlog.Fatalw("refinement failed", "scope", *scope, "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		zlog.Fatalw("failed to encode result", "error", err)
	}
}
