// VirtualPyTest runner — per-script execution harness. Operators (and the
// campaign executor, which spawns one runner per child script) invoke it as
//
//	runner <script_name> <userinterface_name> [--host h] [--device d] [script args]
//	runner campaign <plan.yaml>
//	runner list
//
// The process exit code is the script outcome: 0 success, 1 failure,
// 130 interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/campaign"
	"github.com/angelstreet/virtualpytest-sub008/pkg/config"
	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/database"
	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/logging"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/screenshot"
	"github.com/angelstreet/virtualpytest-sub008/pkg/scripts"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
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
	captureDir := flag.String("capture-dir",
		getEnv("CAPTURE_DIR", "./captures"),
		"Directory screenshots are written to")
	flag.Parse()

	logging.Install()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: runner <script_name> <userinterface_name> [args] | runner campaign <plan.yaml> | runner list")
		os.Exit(harness.ExitFailure)
	}

	cfg, err := config.Initialize(*configDir, "runner")
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(harness.ExitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, cleanupFn, err := buildRuntime(ctx, cfg, *captureDir)
	if err != nil {
		slog.Error("Failed to initialize runner", "error", err)
		os.Exit(harness.ExitFailure)
	}
	defer cleanupFn()

	switch args[0] {
	case "list":
		for _, info := range rt.registry.List() {
			fmt.Printf("%-12s %s\n", info.Name, info.Description)
		}
		os.Exit(harness.ExitSuccess)
	case "campaign":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: runner campaign <plan.yaml>")
			os.Exit(harness.ExitFailure)
		}
		os.Exit(runCampaign(ctx, rt, cfg, args[1]))
	default:
		os.Exit(runScript(ctx, rt, args[0], args[1:]))
	}
}

// runtime is the wired execution stack of one runner process.
type runtime struct {
	store    store.Store
	cache    *navigation.Cache
	registry *harness.ScriptRegistry
	harness  *harness.Harness
}

func buildRuntime(ctx context.Context, cfg *config.Config, captureDir string) (*runtime, func(), error) {
	st, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	cache := navigation.NewCache(st)
	locks := devicelock.NewCoordinator()
	blockRegistry := blocks.NewRegistry()

	orchestrators := make(map[string]*executor.Orchestrator, len(cfg.Host.Devices))
	for _, device := range cfg.Host.Devices {
		ctrl := controller.NewADBController(device, filepath.Join(captureDir, device.DeviceID))
		actions := executor.NewActionExecutor(ctrl, st)
		verifications := executor.NewVerificationExecutor(ctrl, st)
		verifications.StrictFilter = cfg.Execution.StrictVerificationFilter
		nav := executor.NewNavigationExecutor(cache, actions, verifications, screenshot.NewManager(ctrl))
		orchestrators[device.DeviceID] = executor.NewOrchestrator(actions, verifications, nav, blockRegistry, ctrl)
	}

	registry := harness.NewScriptRegistry()
	scripts.Register(registry, scripts.Deps{
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

	return &runtime{store: st, cache: cache, registry: registry, harness: h}, closeStore, nil
}

// openStore connects to Postgres when DB_* is configured and falls back to
// the in-memory store otherwise (results are then lost at process exit).
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
	return store.NewPostgresStore(dbClient.Pool()), closeFn, nil
}

func runScript(ctx context.Context, rt *runtime, scriptName string, argv []string) int {
	info, fn, ok := rt.registry.Get(scriptName)
	if !ok {
		slog.Error("Unknown script", "script", scriptName)
		return harness.ExitFailure
	}
	code := rt.harness.Run(ctx, scriptName, info.ArgDecls, argv, fn)
	if report := rt.harness.LastReport(); report != nil {
		slog.Info("Script finished",
			"script", scriptName,
			"exit_code", code,
			"total_steps", report.TotalSteps,
			"passed_steps", report.PassedSteps,
			"failed_steps", report.FailedSteps)
	}
	return code
}

func runCampaign(ctx context.Context, rt *runtime, cfg *config.Config, planPath string) int {
	data, err := os.ReadFile(planPath)
	if err != nil {
		slog.Error("Cannot read campaign plan", "path", planPath, "error", err)
		return harness.ExitFailure
	}
	var plan models.CampaignConfig
	if err := yaml.Unmarshal(data, &plan); err != nil {
		slog.Error("Cannot parse campaign plan", "path", planPath, "error", err)
		return harness.ExitFailure
	}

	// Children re-exec this binary so each script gets its own process.
	self, err := os.Executable()
	if err != nil {
		slog.Error("Cannot resolve runner binary path", "error", err)
		return harness.ExitFailure
	}

	result, err := campaign.NewExecutor(rt.store, &campaign.SubprocessRunner{BinaryPath: self}).
		Execute(ctx, cfg.TeamID, plan)
	if err != nil {
		slog.Error("Campaign execution failed", "error", err)
		return harness.ExitFailure
	}

	slog.Info("Campaign finished",
		"campaign", result.CampaignName,
		"status", result.Status,
		"successful", result.SuccessfulScripts,
		"failed", result.FailedScripts)
	if !result.Success {
		return harness.ExitFailure
	}
	return harness.ExitSuccess
}
