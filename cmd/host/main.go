// VirtualPyTest host — device owner. Exposes the execution endpoints the
// server proxies to and runs scripts against the locally attached devices.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/api"
	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/cleanup"
	"github.com/angelstreet/virtualpytest-sub008/pkg/config"
	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/database"
	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/logging"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/screenshot"
	"github.com/angelstreet/virtualpytest-sub008/pkg/scripts"
	"github.com/angelstreet/virtualpytest-sub008/pkg/session"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// openStore connects to Postgres when DB_* is configured and falls back to
// the in-memory store otherwise, so a host can run without a database.
func openStore(ctx context.Context) (store.Store, func(), error) {
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Warn("No database configured, using in-memory store", "reason", err)
		return store.NewMemoryStore(), func() {}, nil
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}
	slog.Info("Connected to PostgreSQL database")
	return store.NewPostgresStore(dbClient.Pool()), closeFn, nil
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	captureDir := flag.String("capture-dir",
		getEnv("CAPTURE_DIR", "./captures"),
		"Directory screenshots are written to")
	flag.Parse()

	logging.Install()

	cfg, err := config.Initialize(*configDir, "host")
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Host.Devices) == 0 {
		slog.Error("No devices configured for this host", "host", cfg.Host.Name)
		os.Exit(1)
	}
	if cfg.Host.Port == "" {
		cfg.Host.Port = "6109"
	}

	slog.Info("Starting VirtualPyTest host",
		"host", cfg.Host.Name,
		"port", cfg.Host.Port,
		"devices", len(cfg.Host.Devices))

	ctx := context.Background()

	st, closeStore, err := openStore(ctx)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	cache := navigation.NewCache(st)
	locks := devicelock.NewCoordinator()
	registry := blocks.NewRegistry()

	orchestrators := make(map[string]*executor.Orchestrator, len(cfg.Host.Devices))
	for _, device := range cfg.Host.Devices {
		ctrl := controller.NewADBController(device, filepath.Join(*captureDir, device.DeviceID))
		actions := executor.NewActionExecutor(ctrl, st)
		verifications := executor.NewVerificationExecutor(ctrl, st)
		verifications.StrictFilter = cfg.Execution.StrictVerificationFilter
		nav := executor.NewNavigationExecutor(cache, actions, verifications, screenshot.NewManager(ctrl))
		orchestrators[device.DeviceID] = executor.NewOrchestrator(actions, verifications, nav, registry, ctrl)
		slog.Info("Device attached", "device", device.DeviceID, "model", device.Model)
	}

	scriptRegistry := harness.NewScriptRegistry()
	scripts.Register(scriptRegistry, scripts.Deps{
		HostName:      cfg.Host.Name,
		TeamID:        cfg.TeamID,
		Cache:         cache,
		Orchestrators: orchestrators,
	})

	h := harness.New(harness.Config{
		HostName: cfg.Host.Name,
		TeamID:   cfg.TeamID,
		Devices:  cfg.Host.Devices,
	}, st, cache, locks)

	async := blocks.NewAsyncExecutor(registry)
	sweeper := cleanup.NewService(cfg.Execution, nil, cache, locks)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Async block execution records age out on the same retention window as
	// the server's task records.
	asyncSweepCtx, stopAsyncSweep := context.WithCancel(ctx)
	defer stopAsyncSweep()
	go func() {
		ticker := time.NewTicker(cfg.Execution.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-asyncSweepCtx.Done():
				return
			case <-ticker.C:
				if count := async.CleanupOld(cfg.Execution.TaskRetention); count > 0 {
					slog.Info("Retention: removed old block executions", "count", count)
				}
			}
		}
	}()

	hostAPI := api.NewHostAPI(cfg.Host.Name, cfg.TeamID,
		orchestrators, cfg.Host.Devices,
		registry, async,
		session.NewManager(locks),
		scriptRegistry, h)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Host.Port,
		Handler: hostAPI.Router(),
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

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
