package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

// Script exit codes.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitInterrupt = 130
)

// ErrInterrupted marks a run stopped by Ctrl-C; the harness exits 130.
var ErrInterrupted = errors.New("script interrupted")

// ScriptContext is what a user main receives: the execution record plus the
// selected device, parsed args, and the harness services.
type ScriptContext struct {
	*models.ExecutionContext
	Args   *Args
	Device models.Device
	Store  store.Store
	Cache  *navigation.Cache
}

// ScriptFunc is the user's main function.
type ScriptFunc func(ctx context.Context, sc *ScriptContext) error

// Config is the harness wiring for one runner process.
type Config struct {
	HostName string
	TeamID   string
	Devices  []models.Device

	// ValidateEnv fails fast on missing mandatory configuration. Nil skips.
	ValidateEnv func() error
}

// Harness runs user scripts with the standard scaffolding around them.
type Harness struct {
	cfg    Config
	store  store.Store
	cache  *navigation.Cache
	locks  *devicelock.Coordinator
	report *Report // last generated report, for callers that upload it
	logger *slog.Logger
}

// New creates a harness.
func New(cfg Config, st store.Store, cache *navigation.Cache, locks *devicelock.Coordinator) *Harness {
	return &Harness{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		locks:  locks,
		logger: slog.Default().With("component", "harness"),
	}
}

// LastReport returns the report generated by the most recent Run.
func (h *Harness) LastReport() *Report { return h.report }

// Run executes a user script end to end and returns the process exit code.
// Whatever happens after the device lock is acquired, the harness generates
// a report, releases the lock, and records the script result before
// returning.
func (h *Harness) Run(ctx context.Context, scriptName string, argDecls []string, argv []string, main ScriptFunc) int {
	args, err := ParseArgs(argDecls, argv)
	if err != nil {
		h.logger.Error("Argument parsing failed", "script", scriptName, "error", err)
		return ExitFailure
	}

	if h.cfg.ValidateEnv != nil {
		if err := h.cfg.ValidateEnv(); err != nil {
			h.logger.Error("Environment validation failed", "error", err)
			return ExitFailure
		}
	}

	device, err := h.selectDevice(args.String("device"))
	if err != nil {
		h.logger.Error("Device selection failed", "script", scriptName, "error", err)
		return ExitFailure
	}

	sessionID := uuid.NewString()
	deviceKey := devicelock.DeviceKey(h.cfg.HostName, device.DeviceID)
	if !h.locks.Lock(deviceKey, sessionID) {
		h.logger.Error("Device is locked by another session",
			"device_key", deviceKey, "script", scriptName)
		return ExitFailure
	}

	execCtx := models.NewExecutionContext(h.cfg.HostName, h.cfg.TeamID)
	execCtx.SelectedDevice = &device
	execCtx.UserinterfaceName = args.UserinterfaceName()

	// The script result row exists before the user main runs, so every
	// edge and node execution recorded during the run can reference it.
	h.recordStart(ctx, scriptName, device, execCtx)

	scriptErr := h.runLocked(ctx, scriptName, args, device, execCtx, main)

	// Unconditional teardown: report, unlock, persist.
	completedAt := time.Now()
	execCtx.OverallSuccess = scriptErr == nil
	if scriptErr != nil {
		execCtx.ErrorMessage = scriptErr.Error()
	}
	h.report = GenerateReport(execCtx, scriptName, completedAt)
	h.locks.Unlock(deviceKey, sessionID)
	h.recordResult(ctx, scriptName, device, execCtx, completedAt)

	switch {
	case scriptErr == nil:
		return ExitSuccess
	case errors.Is(scriptErr, ErrInterrupted) || errors.Is(scriptErr, context.Canceled):
		return ExitInterrupt
	default:
		return ExitFailure
	}
}

func (h *Harness) runLocked(ctx context.Context, scriptName string, args *Args, device models.Device, execCtx *models.ExecutionContext, main ScriptFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	uiName := args.UserinterfaceName()
	if uiName == "" {
		return fmt.Errorf("missing positional userinterface_name argument")
	}

	entry, err := h.cache.GetGraph(ctx, uiName, h.cfg.TeamID)
	if err != nil {
		return fmt.Errorf("failed to load navigation tree for %q: %w", uiName, err)
	}
	execCtx.TreeID = entry.Graph.TreeID

	h.logger.Info("Script starting",
		"script", scriptName,
		"userinterface", uiName,
		"device", device.DeviceID,
		"tree_id", execCtx.TreeID)

	if err := main(ctx, &ScriptContext{
		ExecutionContext: execCtx,
		Args:             args,
		Device:           device,
		Store:            h.store,
		Cache:            h.cache,
	}); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// selectDevice returns the explicitly requested device or the first
// available one.
func (h *Harness) selectDevice(deviceID string) (models.Device, error) {
	if len(h.cfg.Devices) == 0 {
		return models.Device{}, fmt.Errorf("no devices configured on host %q", h.cfg.HostName)
	}
	if deviceID == "" {
		return h.cfg.Devices[0], nil
	}
	for _, d := range h.cfg.Devices {
		if d.DeviceID == deviceID {
			return d, nil
		}
	}
	return models.Device{}, fmt.Errorf("device %q not found on host %q", deviceID, h.cfg.HostName)
}

// recordStart writes the initial script result and publishes its id on the
// execution context. The teardown write updates the same row.
func (h *Harness) recordStart(ctx context.Context, scriptName string, device models.Device, execCtx *models.ExecutionContext) {
	id, err := h.store.RecordScriptResult(ctx, &models.ScriptResult{
		TeamID:            h.cfg.TeamID,
		ScriptName:        scriptName,
		UserinterfaceName: execCtx.UserinterfaceName,
		HostName:          h.cfg.HostName,
		DeviceName:        device.Name,
		StartedAt:         execCtx.StartTime,
	})
	if err != nil {
		h.logger.Error("Failed to record script start", "script", scriptName, "error", err)
		return
	}
	execCtx.ScriptResultID = id
}

func (h *Harness) recordResult(ctx context.Context, scriptName string, device models.Device, execCtx *models.ExecutionContext, completedAt time.Time) {
	result := &models.ScriptResult{
		ScriptResultID:    execCtx.ScriptResultID,
		TeamID:            h.cfg.TeamID,
		ScriptName:        scriptName,
		UserinterfaceName: execCtx.UserinterfaceName,
		HostName:          h.cfg.HostName,
		DeviceName:        device.Name,
		Success:           execCtx.OverallSuccess,
		ErrorMessage:      execCtx.ErrorMessage,
		StartedAt:         execCtx.StartTime,
		CompletedAt:       &completedAt,
		Metadata: map[string]any{
			"total_steps":  h.report.TotalSteps,
			"passed_steps": h.report.PassedSteps,
			"failed_steps": h.report.FailedSteps,
		},
	}
	id, err := h.store.RecordScriptResult(ctx, result)
	if err != nil {
		h.logger.Error("Failed to record script result", "script", scriptName, "error", err)
		return
	}
	execCtx.ScriptResultID = id
}
