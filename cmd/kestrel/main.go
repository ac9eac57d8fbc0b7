// Kestrel - rule-based mail classification service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/inboxkit/kestrel/internal/api"
	"github.com/inboxkit/kestrel/internal/bus"
	"github.com/inboxkit/kestrel/internal/cache"
	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/repository"
	"github.com/inboxkit/kestrel/internal/stats"
	"github.com/inboxkit/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	// Load configuration
	cfg := domain.LoadFromEnv()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Classification engines, one per account, loaded on demand
	registry := classify.NewRegistry(repo, domain.LogSink())

	// Match statistics
	statsSvc := stats.NewService(repo, cacheImpl)

	// Async worker for accounts that ingest through the bus
	var asyncWorker *worker.Worker
	if accounts := accountList(os.Getenv("KESTREL_ACCOUNTS")); len(accounts) > 0 {
		asyncWorker = worker.NewWorker(busImpl, repo, registry, statsSvc)
		if err := asyncWorker.Start(worker.Config{AccountIDs: accounts}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "account_count", len(accounts))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, registry, statsSvc, Version, cfg.ClassificationTTL)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// accountList parses the comma-separated KESTREL_ACCOUNTS value.
func accountList(env string) []string {
	if env == "" {
		return nil
	}
	var accounts []string
	for _, a := range strings.Split(env, ",") {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - mail classification engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /classify               - Classify a message")
	fmt.Println("    POST /classify/raw           - Classify a raw RFC 822 message")
	fmt.Println("    POST /classify/batch         - Classify a batch of messages")
	fmt.Println("    GET  /classifications/{id}   - Get classification by ID")
	fmt.Println("    GET  /categories             - List categories")
	fmt.Println("    POST /categories             - Create a category")
	fmt.Println("    PUT  /categories/{id}        - Update a category")
	fmt.Println("    DELETE /categories/{id}      - Delete a category")
	fmt.Println("    POST /categories/reorder     - Change matching priority")
	fmt.Println("    POST /categories/reload      - Hot-reload categories")
	fmt.Println("    GET  /categories/{id}/query  - Compile to a search query")
	fmt.Println("    GET  /stats                  - Per-category match counts")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
