// VirtualPyTest server — central coordinator. Accepts operator requests,
// wraps long operations in task records, and proxies execution to device
// hosts.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/api"
	"github.com/angelstreet/virtualpytest-sub008/pkg/cleanup"
	"github.com/angelstreet/virtualpytest-sub008/pkg/config"
	"github.com/angelstreet/virtualpytest-sub008/pkg/database"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/logging"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
	"github.com/angelstreet/virtualpytest-sub008/pkg/queue"
	"github.com/angelstreet/virtualpytest-sub008/pkg/scripts"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	logging.Install()

	cfg, err := config.Initialize(*configDir, "server")
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting VirtualPyTest server",
		"port", cfg.Server.Port,
		"hosts", len(cfg.Server.Hosts),
		"config_dir", *configDir)

	ctx := context.Background()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	st := store.NewPostgresStore(dbClient.Pool())
	cache := navigation.NewCache(st)
	taskManager := tasks.NewManager()

	pool := queue.NewWorkerPool(queue.DefaultWorkerCount, taskManager)
	pool.Start(ctx)

	hosts := make(map[string]*proxy.Client, len(cfg.Server.Hosts))
	for name, baseURL := range cfg.Server.Hosts {
		hosts[name] = proxy.NewClient(baseURL)
		slog.Info("Registered device host", "name", name, "url", baseURL)
	}
	if len(hosts) == 0 {
		slog.Warn("No device hosts configured; execution endpoints will reject requests")
	}

	registry := harness.NewScriptRegistry()
	scripts.RegisterMetadata(registry)

	sweeper := cleanup.NewService(cfg.Execution, taskManager, cache, nil)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	serverAPI := api.NewServerAPI(st, taskManager, pool, cache, registry, hosts, cfg.TeamID, cfg.Server.URL)
	serverAPI.SetDBHealth(dbClient.DB())

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: serverAPI.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop the worker pool first so running tasks finish before the store
	// goes away.
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(30 * time.Second):
		slog.Warn("Worker pool shutdown timeout exceeded")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
