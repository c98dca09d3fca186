package executor

import (
	"context"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/logging"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Orchestrator is the single dispatcher the HTTP surfaces and the script
// harness call into. Every entry point wraps the underlying executor with
// per-execution log capture, so the result envelope always carries the logs
// of that execution alone. The orchestrator knows nothing about edges,
// nodes, or transitions; only executors do.
type Orchestrator struct {
	actions       *ActionExecutor
	verifications *VerificationExecutor
	nav           *NavigationExecutor
	blocks        *blocks.Registry
	ctrl          controller.Controller
}

// NewOrchestrator wires the four entry points.
func NewOrchestrator(actions *ActionExecutor, verifications *VerificationExecutor, nav *NavigationExecutor, registry *blocks.Registry, ctrl controller.Controller) *Orchestrator {
	return &Orchestrator{
		actions:       actions,
		verifications: verifications,
		nav:           nav,
		blocks:        registry,
		ctrl:          ctrl,
	}
}

// Controller returns the device controller this orchestrator drives. The
// host surface needs it to hand a Runtime to async block executions.
func (o *Orchestrator) Controller() controller.Controller { return o.ctrl }

// ExecuteActions runs an action batch with log capture.
func (o *Orchestrator) ExecuteActions(ctx context.Context, actions, retryActions, failureActions []models.Action, scope Scope) *models.ActionBatchResult {
	var result *models.ActionBatchResult
	logs, _ := logging.Capture(ctx, func(ctx context.Context) error {
		result = o.actions.ExecuteActions(ctx, actions, retryActions, failureActions, scope)
		return nil
	})
	result.Logs = logs
	return result
}

// ExecuteVerifications runs a verification batch with log capture.
func (o *Orchestrator) ExecuteVerifications(ctx context.Context, verifications []models.Verification, passCondition string, scope Scope) *models.VerificationBatchResult {
	var result *models.VerificationBatchResult
	logs, _ := logging.Capture(ctx, func(ctx context.Context) error {
		result = o.verifications.ExecuteVerifications(ctx, verifications, passCondition, scope)
		return nil
	})
	result.Logs = logs
	return result
}

// ExecuteNavigation runs a navigation with log capture.
func (o *Orchestrator) ExecuteNavigation(ctx context.Context, req NavigationRequest) *models.NavigationResult {
	var result *models.NavigationResult
	logs, _ := logging.Capture(ctx, func(ctx context.Context) error {
		result = o.nav.ExecuteNavigation(ctx, req)
		return nil
	})
	result.Logs = logs
	return result
}

// ExecuteBlock runs a standard block with log capture.
func (o *Orchestrator) ExecuteBlock(ctx context.Context, command string, params map[string]any, execCtx *models.ExecutionContext) models.BlockResult {
	var result models.BlockResult
	logs, _ := logging.Capture(ctx, func(ctx context.Context) error {
		rt := blocks.Runtime{Controller: o.ctrl, ExecCtx: execCtx}
		result = o.blocks.Execute(ctx, rt, command, params)
		return nil
	})
	result.Logs = logs
	return result
}
