// File path: cmd/linkforge/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/linkforge/linkforge/internal/anchor"
	"github.com/linkforge/linkforge/internal/api"
	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/data/orchestrator"
	"github.com/linkforge/linkforge/internal/embedding"
	"github.com/linkforge/linkforge/internal/generation"
	"github.com/linkforge/linkforge/internal/llm"
	"github.com/linkforge/linkforge/internal/progress"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("linkforge: .env file not loaded", "error", err)
	} else {
		logger.Info("linkforge: environment loaded from .env")
	}

	addr := flag.String("addr", ":8082", "listen address")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite catalog database")
	cacheSize := flag.Int("embed-cache", defaultCacheSize(), "in-memory embedding cache capacity")
	anchorTimeout := flag.String("anchor-timeout", "", "timeout for a single anchor resolution (e.g. 10s)")
	donorLimit := flag.Int("donor-parallelism", 0, "max concurrent donor validations per scenario phase (0 uses defaults)")
	flag.Parse()

	logger.Info("linkforge: startup initiated", "addr", *addr, "catalog", *catalogPath)

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("linkforge: orchestrator config load failed", "error", err)
		fmt.Println("orchestrator config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*catalogPath); trimmed != "" && strings.TrimSpace(orchCfg.SQLite.Path) == "" {
		orchCfg.SQLite.Path = trimmed
	}

	orch, err := orchestrator.New(ctx, orchCfg)
	if err != nil {
		logger.Error("linkforge: orchestrator init failed", "error", err)
		fmt.Println("orchestrator error:", err)
		os.Exit(1)
	}
	defer orch.Close()

	provider, err := llm.NewProvider()
	if err != nil {
		logger.Error("linkforge: llm provider init failed", "error", err)
		fmt.Println("llm provider error:", err)
		os.Exit(1)
	}
	logger.Info("linkforge: llm provider ready", "provider", provider.Name())

	resolveTimeout := time.Duration(0)
	if trimmed := strings.TrimSpace(*anchorTimeout); trimmed != "" {
		parsed, err := time.ParseDuration(trimmed)
		if err != nil {
			logger.Error("linkforge: invalid anchor timeout", "value", trimmed, "error", err)
			fmt.Println("anchor timeout error:", err)
			os.Exit(1)
		}
		resolveTimeout = parsed
	}

	embeddings := embedding.NewStore(provider, orch.Store(), *cacheSize)
	resolver := anchor.NewLLMResolver(provider, resolveTimeout)
	broker := progress.NewBroker()
	manager := generation.NewManager(orch.Store(), embeddings, resolver, broker, generation.Options{
		Checker:     orch.Checker(),
		VectorIndex: orch.VectorIndex(),
		DonorLimit:  *donorLimit,
	})
	defer manager.Shutdown()

	if recovered, err := manager.RecoverStaleRuns(ctx); err != nil {
		logger.Error("linkforge: stale run recovery failed", "error", err)
		fmt.Println("stale run recovery error:", err)
		os.Exit(1)
	} else if recovered > 0 {
		logger.Info("linkforge: recovered stale runs", "count", recovered)
	}

	server, err := api.NewServer(orch, manager)
	if err != nil {
		logger.Error("linkforge: server init failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("linkforge: listening", "addr", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("linkforge: server stopped", "error", err)
			fmt.Println("server error:", err)
			os.Exit(1)
		}
	case sig := <-signals:
		logger.Info("linkforge: shutdown signal received", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("linkforge: graceful shutdown incomplete", "error", err)
		}
	}
	logger.Info("linkforge: shutdown complete")
}

func defaultCatalogPath() string {
	if env := strings.TrimSpace(os.Getenv("LINKFORGE_CATALOG")); env != "" {
		return env
	}
	return filepath.Join("data", "linkforge.db")
}

func defaultCacheSize() int {
	if env := strings.TrimSpace(os.Getenv("LINKFORGE_EMBED_CACHE")); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 4096
}
