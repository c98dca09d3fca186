package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/screenshot"
)

// NavigationRequest describes one navigation to a target node.
type NavigationRequest struct {
	TreeID            string
	UserinterfaceName string
	TeamID            string

	// Target by id or label; id wins when both are set.
	TargetNodeID    string
	TargetNodeLabel string

	// CurrentNodeID is the starting position. Authoritative when
	// FrontendSentPosition is true; otherwise used as a best-effort hint.
	CurrentNodeID        string
	FrontendSentPosition bool

	// NavigationPath skips pathfinding when the caller already computed it.
	NavigationPath []models.Transition

	ImageSourceURL string
	Scope          Scope
	ExecCtx        *models.ExecutionContext
}

// NavigationExecutor walks a transition path on a device, recording per-edge
// executions and verifying arrival at the target.
type NavigationExecutor struct {
	cache         *navigation.Cache
	pathfinder    *navigation.Pathfinder
	actions       *ActionExecutor
	verifications *VerificationExecutor
	shots         *screenshot.Manager

	// sleep is overridable in tests so finalWaitTime does not slow them.
	sleep func(ctx context.Context, d time.Duration)
}

// NewNavigationExecutor wires a navigation executor over the cache and the
// action/verification executors. shots may be nil.
func NewNavigationExecutor(cache *navigation.Cache, actions *ActionExecutor, verifications *VerificationExecutor, shots *screenshot.Manager) *NavigationExecutor {
	return &NavigationExecutor{
		cache:         cache,
		pathfinder:    navigation.NewPathfinder(cache),
		actions:       actions,
		verifications: verifications,
		shots:         shots,
		sleep:         sleepCtx,
	}
}

// ExecuteNavigation runs the full navigation procedure: populate the cache,
// find (or accept) a path, execute each transition in order with retry and
// failure handling, settle, then run the target node's verifications with
// pass condition "all". Failures return partial statistics plus the best
// estimate of where the device ended up.
func (e *NavigationExecutor) ExecuteNavigation(ctx context.Context, req NavigationRequest) *models.NavigationResult {
	start := time.Now()
	result := &models.NavigationResult{}

	treeRef := req.TreeID
	if treeRef == "" {
		treeRef = req.UserinterfaceName
	}
	entry, err := e.cache.GetGraph(ctx, treeRef, req.TeamID)
	if err != nil {
		result.Error = fmt.Sprintf("failed to load navigation tree: %v", err)
		return result
	}

	targetRef := req.TargetNodeID
	if targetRef == "" {
		targetRef = req.TargetNodeLabel
	}
	target, ok := entry.Graph.ResolveNode(targetRef)
	if !ok {
		result.Error = fmt.Sprintf("target node %q not found", targetRef)
		return result
	}

	path := req.NavigationPath
	if path == nil {
		path, err = e.pathfinder.FindShortestPath(ctx, treeRef, req.TeamID, targetRef, req.CurrentNodeID)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if path == nil {
			result.Error = fmt.Sprintf("no path found to node %q", targetRef)
			result.FinalPositionNodeID = req.CurrentNodeID
			return result
		}
	}

	result.TotalTransitions = len(path)
	for _, t := range path {
		result.TotalActions += len(t.Actions)
		result.NavigationPath = append(result.NavigationPath, t.Description)
	}

	scope := req.Scope
	scope.TeamID = req.TeamID
	scope.TreeID = entry.Graph.TreeID

	finalPosition := req.CurrentNodeID
	for _, t := range path {
		e.shots.Capture(ctx, req.ExecCtx, screenshot.HookPreStep, t.EdgeID)

		transScope := scope
		transScope.EdgeID = t.EdgeID
		batch := e.actions.ExecuteActions(ctx, t.Actions, t.RetryActions, t.FailureActions, transScope)
		result.ActionsExecuted += batch.TotalCount

		if req.ExecCtx != nil {
			req.ExecCtx.RecordStep(models.StepRecord{
				Success:         batch.Success,
				Message:         t.Description,
				FromNode:        t.FromNodeID,
				ToNode:          t.ToNodeID,
				Actions:         t.Actions,
				RetryActions:    t.RetryActions,
				FailureActions:  t.FailureActions,
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			})
		}

		if !batch.Success {
			e.shots.Capture(ctx, req.ExecCtx, screenshot.HookAnalysis, t.EdgeID)
			slog.WarnContext(ctx, "Transition failed",
				"edge_id", t.EdgeID,
				"from", t.FromNodeID,
				"to", t.ToNodeID,
				"final_position", finalPosition)
			result.FinalPositionNodeID = finalPosition
			result.Error = fmt.Sprintf("transition %s failed (%s)", t.EdgeID, t.Description)
			result.ExecutionTimeMs = time.Since(start).Milliseconds()
			return result
		}

		result.TransitionsExecuted++
		finalPosition = t.ToNodeID
		e.shots.Capture(ctx, req.ExecCtx, screenshot.HookPostStep, t.EdgeID)

		if t.FinalWaitTime > 0 {
			e.sleep(ctx, time.Duration(t.FinalWaitTime)*time.Millisecond)
		}
	}

	// All transitions succeeded (or the path was empty because we were
	// already at the target); the device is at the target node.
	result.FinalPositionNodeID = target.NodeID

	if node, ok := entry.Nodes[target.NodeID]; ok && len(node.Verifications) > 0 {
		verScope := scope
		verScope.NodeID = target.NodeID
		batch := e.verifications.ExecuteVerifications(ctx, node.Verifications, models.PassConditionAll, verScope)
		result.VerificationResults = batch.Results
		if !batch.Success {
			// Arrived visually but did not verify.
			result.Error = fmt.Sprintf("target verification failed at node %s: %s", target.NodeID, batch.Message)
			result.ExecutionTimeMs = time.Since(start).Milliseconds()
			return result
		}
	}

	result.Success = true
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
