// Package executor implements the device-facing executors (actions,
// verifications, blocks, navigation) and the orchestrator that fronts them
// with per-execution log capture.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

// Scope carries the persistence context an execution records under. EdgeID
// and NodeID are set by the navigation executor as it walks the path.
type Scope struct {
	TeamID         string
	TreeID         string
	EdgeID         string
	NodeID         string
	HostName       string
	DeviceModel    string
	ScriptResultID string
	ScriptContext  string
}

// Action execution phases.
const (
	PhaseMain    = "main"
	PhaseRetry   = "retry"
	PhaseFailure = "failure"
)

// ActionExecutor runs action lists against a device controller and records
// every outcome to the store before surfacing it.
type ActionExecutor struct {
	ctrl  controller.Controller
	store store.Store
}

// NewActionExecutor creates an action executor.
func NewActionExecutor(ctrl controller.Controller, st store.Store) *ActionExecutor {
	return &ActionExecutor{ctrl: ctrl, store: st}
}

// ExecuteActions runs the main list sequentially, then the retry list in
// full if any main action failed, then the failure list as diagnostic if the
// result is still unsuccessful. Overall success is passed >= len(valid main)
// after retry. An empty input list is a success with total 0. The executor
// never aborts mid-list.
func (e *ActionExecutor) ExecuteActions(ctx context.Context, actions, retryActions, failureActions []models.Action, scope Scope) *models.ActionBatchResult {
	result := &models.ActionBatchResult{}

	validMain, invalid := filterActions(actions)
	result.Results = append(result.Results, invalid...)
	result.TotalCount = len(validMain)
	if len(validMain) == 0 {
		result.Success = true
		return result
	}

	mainResults, mainPassed := e.runList(ctx, validMain, PhaseMain, scope)
	result.Results = append(result.Results, mainResults...)
	result.PassedCount = mainPassed

	if mainPassed < len(validMain) {
		validRetry, invalidRetry := filterActions(retryActions)
		result.Results = append(result.Results, invalidRetry...)
		if len(validRetry) > 0 {
			slog.InfoContext(ctx, "Main actions failed, running retry list",
				"edge_id", scope.EdgeID,
				"main_passed", mainPassed,
				"main_total", len(validMain),
				"retry_actions", len(validRetry))
			retryResults, retryPassed := e.runList(ctx, validRetry, PhaseRetry, scope)
			result.Results = append(result.Results, retryResults...)
			result.PassedCount += retryPassed
		}
	}

	result.Success = result.PassedCount >= result.TotalCount

	if !result.Success {
		validFailure, _ := filterActions(failureActions)
		if len(validFailure) > 0 {
			// Diagnostic only: outcome does not flip overall success.
			failureResults, _ := e.runList(ctx, validFailure, PhaseFailure, scope)
			result.Results = append(result.Results, failureResults...)
		}
	}

	return result
}

func (e *ActionExecutor) runList(ctx context.Context, actions []models.Action, phase string, scope Scope) ([]models.ActionResult, int) {
	results := make([]models.ActionResult, 0, len(actions))
	passed := 0
	for _, a := range actions {
		r := e.executeOne(ctx, a, phase, scope)
		if r.Success {
			passed++
		}
		results = append(results, r)
	}
	return results, passed
}

func (e *ActionExecutor) executeOne(ctx context.Context, a models.Action, phase string, scope Scope) models.ActionResult {
	start := time.Now()

	params := a.Params
	if a.RequiresInput {
		params = make(map[string]any, len(a.Params)+1)
		for k, v := range a.Params {
			params[k] = v
		}
		params["input_value"] = a.InputValue
	}

	r := models.ActionResult{
		ActionID: a.ID,
		Command:  a.Command,
		Phase:    phase,
	}

	res, err := e.ctrl.ExecuteCommand(ctx, a.Command, params)
	r.ExecutionTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		r.Success = false
		r.Error = err.Error()
		r.ErrorKind = models.ErrorKindExecutionException
	} else {
		r.Success = res.Success
		r.Message = res.Message
		r.Error = res.Error
	}

	e.recordEdgeExecution(ctx, r, scope)
	return r
}

// recordEdgeExecution writes the outcome synchronously so the persistent
// record never lies about an execution having happened. A failed write is
// logged, not propagated: the action outcome stands.
func (e *ActionExecutor) recordEdgeExecution(ctx context.Context, r models.ActionResult, scope Scope) {
	rec := store.EdgeExecutionRecord{
		TeamID:          scope.TeamID,
		TreeID:          scope.TreeID,
		EdgeID:          scope.EdgeID,
		HostName:        scope.HostName,
		DeviceModel:     scope.DeviceModel,
		Success:         r.Success,
		ExecutionTimeMs: r.ExecutionTimeMs,
		Message:         r.Message,
		ErrorDetails:    r.Error,
		ScriptResultID:  scope.ScriptResultID,
		ScriptContext:   scope.ScriptContext,
		Metadata:        map[string]any{"command": r.Command, "phase": r.Phase},
		ExecutedAt:      time.Now(),
	}
	if err := e.store.RecordEdgeExecution(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "Failed to record edge execution",
			"edge_id", scope.EdgeID, "command", r.Command, "error", err)
	}
}

// filterActions applies the validity filter: actions without a command are
// dropped as command_missing; actions with requiresInput but no inputValue
// are dropped as input_required. Dropped actions appear in the returned
// invalid list as failed results and never count toward the batch total.
func filterActions(actions []models.Action) (valid []models.Action, invalid []models.ActionResult) {
	for _, a := range actions {
		switch {
		case a.Command == "":
			invalid = append(invalid, models.ActionResult{
				ActionID:  a.ID,
				Success:   false,
				Error:     "action has no command",
				ErrorKind: models.ErrorKindCommandMissing,
			})
		case a.RequiresInput && a.InputValue == "":
			invalid = append(invalid, models.ActionResult{
				ActionID:  a.ID,
				Command:   a.Command,
				Success:   false,
				Error:     "action requires input but no inputValue provided",
				ErrorKind: models.ErrorKindInputRequired,
			})
		default:
			valid = append(valid, a)
		}
	}
	return valid, invalid
}
