// Package campaign runs ordered sequences of child scripts as a single
// recorded campaign execution. Each script runs in its own process via the
// runner binary; results are linked back to the campaign record.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

// resultLinkWindow is how far around a script's start we search for its
// persisted result when linking it to the campaign.
const resultLinkWindow = 30 * time.Second

// DefaultScriptTimeout bounds one child script when the campaign does not
// override it.
const DefaultScriptTimeout = 300 * time.Second

// ScriptRunner launches one child script and blocks until it exits.
// A non-nil error means the script failed (non-zero exit, spawn failure, or
// timeout). The production implementation execs the runner binary.
type ScriptRunner interface {
	Run(ctx context.Context, cfg models.ScriptConfiguration, campaign models.CampaignConfig) error
}

// Executor drives campaigns sequentially.
type Executor struct {
	store  store.Store
	runner ScriptRunner
	logger *slog.Logger

	scriptTimeout time.Duration
}

// NewExecutor creates a campaign executor.
func NewExecutor(st store.Store, runner ScriptRunner) *Executor {
	return &Executor{
		store:         st,
		runner:        runner,
		logger:        slog.Default().With("component", "campaign"),
		scriptTimeout: DefaultScriptTimeout,
	}
}

// Execute runs the campaign plan and returns the final persisted record.
// The campaign succeeds iff every configured script succeeded. A child whose
// result cannot be found in the store within the link window counts as
// failed.
func (e *Executor) Execute(ctx context.Context, teamID string, cfg models.CampaignConfig) (*models.CampaignExecution, error) {
	if cfg.Parallel {
		return nil, store.NewValidationError("parallel", "parallel campaign execution is not supported")
	}
	if len(cfg.ScriptConfigurations) == 0 {
		return nil, store.NewValidationError("script_configurations", "campaign has no scripts")
	}

	start := time.Now()
	exec := &models.CampaignExecution{
		TeamID:               teamID,
		CampaignName:         cfg.CampaignName,
		UserinterfaceName:    cfg.UserinterfaceName,
		HostName:             cfg.HostName,
		DeviceName:           cfg.DeviceName,
		Status:               models.CampaignStatusRunning,
		ScriptConfigurations: cfg.ScriptConfigurations,
		ExecutedBy:           cfg.ExecutedBy,
		StartedAt:            start,
	}
	campaignID, err := e.store.CreateCampaignExecution(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign execution: %w", err)
	}
	exec.CampaignExecutionID = campaignID

	e.logger.Info("Campaign started",
		"campaign_execution_id", campaignID,
		"campaign", cfg.CampaignName,
		"scripts", len(cfg.ScriptConfigurations))

	timeout := e.scriptTimeout
	if cfg.TimeoutMinutes > 0 {
		timeout = time.Duration(cfg.TimeoutMinutes) * time.Minute
	}

	aborted := false
	for _, script := range cfg.ScriptConfigurations {
		ok := e.runOne(ctx, teamID, campaignID, script, cfg, timeout)
		if ok {
			exec.SuccessfulScripts++
			continue
		}
		exec.FailedScripts++
		if !cfg.ContinueOnFailure {
			aborted = true
			break
		}
	}

	now := time.Now()
	exec.CompletedAt = &now
	exec.DurationMs = now.Sub(start).Milliseconds()
	exec.Success = exec.FailedScripts == 0 && !aborted &&
		exec.SuccessfulScripts == len(cfg.ScriptConfigurations)
	switch {
	case exec.Success:
		exec.Status = models.CampaignStatusCompleted
	case aborted:
		exec.Status = models.CampaignStatusAborted
		exec.ErrorMessage = "campaign stopped on first failure"
	default:
		exec.Status = models.CampaignStatusFailed
	}

	if err := e.store.UpdateCampaignExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update campaign execution: %w", err)
	}

	e.logger.Info("Campaign finished",
		"campaign_execution_id", campaignID,
		"status", exec.Status,
		"successful", exec.SuccessfulScripts,
		"failed", exec.FailedScripts,
		"duration_ms", exec.DurationMs)

	return e.store.GetCampaignExecution(ctx, campaignID, teamID)
}

// runOne launches a child script, waits for it, then links its persisted
// result to the campaign. Returns whether the script counts as successful.
func (e *Executor) runOne(ctx context.Context, teamID, campaignID string, script models.ScriptConfiguration, cfg models.CampaignConfig, timeout time.Duration) bool {
	scriptStart := time.Now()
	scriptCtx, cancel := context.WithTimeout(ctx, timeout)
	runErr := e.runner.Run(scriptCtx, script, cfg)
	cancel()

	if runErr != nil {
		e.logger.Warn("Campaign script failed",
			"campaign_execution_id", campaignID,
			"script", script.ScriptName,
			"error", runErr)
	}

	linked, result := e.linkResult(ctx, teamID, campaignID, script.ScriptName, scriptStart)
	if !linked {
		e.logger.Warn("No script result found to link; counting script as failed",
			"campaign_execution_id", campaignID,
			"script", script.ScriptName,
			"window", resultLinkWindow)
		return false
	}
	return runErr == nil && result.Success
}

// linkResult finds the child's script result within the link window and
// appends it to the campaign. The append is idempotent on the store side.
func (e *Executor) linkResult(ctx context.Context, teamID, campaignID, scriptName string, scriptStart time.Time) (bool, *models.ScriptResult) {
	since := scriptStart.Add(-resultLinkWindow)
	result, err := e.store.FindRecentScriptResult(ctx, teamID, scriptName, since)
	if err != nil {
		return false, nil
	}
	if err := e.store.AppendCampaignScriptResult(ctx, campaignID, result.ScriptResultID); err != nil {
		e.logger.Error("Failed to link script result",
			"campaign_execution_id", campaignID,
			"script_result_id", result.ScriptResultID,
			"error", err)
		return false, nil
	}
	return true, result
}
