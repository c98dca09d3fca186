// Package scripts holds the builtin user scripts shipped with the runner:
// navigation to a target node and a full-tree validation sweep. Both run
// inside the harness like any operator-written script.
package scripts

import (
	"context"
	"fmt"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
)

// Deps is what the builtin scripts need beyond the harness context: the
// per-device orchestrators built by the binary at startup.
type Deps struct {
	HostName      string
	TeamID        string
	Cache         *navigation.Cache
	Orchestrators map[string]*executor.Orchestrator
}

// Register adds the builtin scripts to the registry with executable mains.
func Register(reg *harness.ScriptRegistry, deps Deps) {
	reg.Register(harness.ScriptInfo{
		Name:        "goto_node",
		Description: "Navigate the device to a target node of the userinterface",
		ArgDecls:    []string{"--node:str:home"},
	}, deps.gotoNode)

	reg.Register(harness.ScriptInfo{
		Name:        "validation",
		Description: "Traverse every edge of the userinterface and report per-transition results",
		ArgDecls:    []string{"--max_iteration:int:0"},
	}, deps.validation)
}

// RegisterMetadata adds the builtin script catalog without executable mains.
// The server uses this for list/analyze; execution happens on hosts.
func RegisterMetadata(reg *harness.ScriptRegistry) {
	reg.Register(harness.ScriptInfo{
		Name:        "goto_node",
		Description: "Navigate the device to a target node of the userinterface",
		ArgDecls:    []string{"--node:str:home"},
	}, nil)
	reg.Register(harness.ScriptInfo{
		Name:        "validation",
		Description: "Traverse every edge of the userinterface and report per-transition results",
		ArgDecls:    []string{"--max_iteration:int:0"},
	}, nil)
}

func (d Deps) orchestratorFor(deviceID string) (*executor.Orchestrator, error) {
	orch, ok := d.Orchestrators[deviceID]
	if !ok {
		return nil, fmt.Errorf("no orchestrator for device %q", deviceID)
	}
	return orch, nil
}

// gotoNode navigates to --node and fails when the target is not reached.
func (d Deps) gotoNode(ctx context.Context, sc *harness.ScriptContext) error {
	orch, err := d.orchestratorFor(sc.Device.DeviceID)
	if err != nil {
		return err
	}
	target := sc.Args.String("node")

	start := time.Now()
	result := orch.ExecuteNavigation(ctx, executor.NavigationRequest{
		TreeID:            sc.TreeID,
		UserinterfaceName: sc.UserinterfaceName,
		TeamID:            d.TeamID,
		TargetNodeID:      target,
		Scope: executor.Scope{
			TeamID:         d.TeamID,
			TreeID:         sc.TreeID,
			HostName:       d.HostName,
			DeviceModel:    sc.Device.Model,
			ScriptResultID: sc.ScriptResultID,
			ScriptContext:  "goto_node",
		},
		ExecCtx: sc.ExecutionContext,
	})

	sc.RecordStep(models.StepRecord{
		Success:         result.Success,
		Message:         fmt.Sprintf("navigate to %s", target),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ToNode:          result.FinalPositionNodeID,
	})
	if !result.Success {
		return fmt.Errorf("navigation to %q failed: %s", target, result.Error)
	}
	return nil
}

// validation walks the full validation sequence, executing every edge's
// actions. All transitions run regardless of failures; the script fails when
// any transition failed. --max_iteration > 0 caps the number of transitions.
func (d Deps) validation(ctx context.Context, sc *harness.ScriptContext) error {
	orch, err := d.orchestratorFor(sc.Device.DeviceID)
	if err != nil {
		return err
	}

	pathfinder := navigation.NewPathfinder(d.Cache)
	sequence, err := pathfinder.ValidationSequence(ctx, sc.TreeID, d.TeamID)
	if err != nil {
		return fmt.Errorf("cannot build validation sequence: %w", err)
	}
	if max := sc.Args.Int("max_iteration"); max > 0 && max < len(sequence) {
		sequence = sequence[:max]
	}

	failed := 0
	for _, t := range sequence {
		if ctx.Err() != nil {
			return harness.ErrInterrupted
		}

		start := time.Now()
		batch := orch.ExecuteActions(ctx, t.Actions, t.RetryActions, t.FailureActions, executor.Scope{
			TeamID:         d.TeamID,
			TreeID:         sc.TreeID,
			EdgeID:         t.EdgeID,
			HostName:       d.HostName,
			DeviceModel:    sc.Device.Model,
			ScriptResultID: sc.ScriptResultID,
			ScriptContext:  "validation",
		})

		step := models.StepRecord{
			Success:         batch.Success,
			Message:         t.Description,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			FromNode:        t.FromLabel,
			ToNode:          t.ToLabel,
			Actions:         t.Actions,
		}
		if !batch.Success {
			failed++
			step.Message = fmt.Sprintf("%s (%d/%d actions passed)", t.Description, batch.PassedCount, batch.TotalCount)
		}
		sc.RecordStep(step)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d transitions failed", failed, len(sequence))
	}
	return nil
}
