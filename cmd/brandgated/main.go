package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/veribrand/brandgate/agent"
	"github.com/veribrand/brandgate/pkg/cache"
	"github.com/veribrand/brandgate/pkg/config"
	"github.com/veribrand/brandgate/pkg/kv"
	"github.com/veribrand/brandgate/pkg/llm"
	"github.com/veribrand/brandgate/server"
	"github.com/veribrand/brandgate/storage"
	"github.com/veribrand/brandgate/tools"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Println("Starting brandgated...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	providerCfg := cfg.Providers[cfg.Agent.Provider]
	provider, err := llm.New(cfg.Agent.Provider, llm.Config{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: cfg.Agent.Temperature,
	})
	if err != nil {
		log.Fatalf("provider error: %v", err)
	}
	log.Printf("[OK] Provider: %s (%s extraction)", provider.Name(), provider.Mode())

	var shared cache.SharedStore
	if cfg.Cache.SharedDir != "" {
		store, err := kv.Open(kv.DefaultOptions(cfg.Cache.SharedDir))
		if err != nil {
			log.Fatalf("shared cache error: %v", err)
		}
		defer store.Close()
		shared = store
	}
	toolCache := cache.New(cache.Config{
		DefaultTTL:   cfg.Cache.DefaultTTL,
		ToolTTL:      cfg.Cache.ToolTTL,
		NonCacheable: cfg.Cache.NonCacheable,
		Shared:       shared,
	})

	registry := tools.NewRegistry()
	registry.Register(&tools.RegionColorSchemeTool{})
	registry.Register(&tools.BrandGuidelinesTool{})
	registry.Register(&tools.AnalyzeImageColorsTool{})
	registry.Register(&tools.CheckColorComplianceTool{})
	registry.Register(&tools.ExtractFramePaletteTool{})
	registry.Register(&tools.CompareFramesTool{})
	registry.Register(&tools.CompletionTool{})

	loop := agent.New(provider, registry, toolCache, cfg.Agent)

	var history server.History
	if cfg.Storage.DBPath != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755)
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			log.Fatalf("storage error: %v", err)
		}
		defer store.Close()
		loop.WithStore(store)
		history = store
	} else {
		log.Println("[WARN] persistence disabled (no db_path configured)")
	}

	srv := server.New(cfg.Server, loop, toolCache, history)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Println("brandgated shutting down...")
	srv.Stop()
}
