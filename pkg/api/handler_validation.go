package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
	"github.com/angelstreet/virtualpytest-sub008/pkg/queue"
)

// EdgeSelector names one edge of a validation request by its endpoints.
type EdgeSelector struct {
	FromNode string `json:"from_node"`
	ToNode   string `json:"to_node"`
	FromName string `json:"from_name,omitempty"`
	ToName   string `json:"to_name,omitempty"`
}

// ValidationRunRequest is the body of POST /server/validation/run/<tree_id>.
// An empty EdgesToValidate means the full validation sequence.
type ValidationRunRequest struct {
	Host            string         `json:"host"`
	DeviceID        string         `json:"device_id"`
	EdgesToValidate []EdgeSelector `json:"edges_to_validate,omitempty"`
}

// RunValidation starts a background validation sweep over the tree's
// transitions and returns the task id for polling.
func (s *ServerAPI) RunValidation(c *gin.Context) {
	treeID := c.Param("tree_id")
	teamID := s.teamFrom(c)

	var req ValidationRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	host, err := s.hostFor(req.Host)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The sequence is computed up front so a bad tree fails the request,
	// not the task.
	sequence, err := s.pathfinder.ValidationSequence(c.Request.Context(), treeID, teamID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot build validation sequence: %v", err)})
		return
	}
	sequence = filterSequence(sequence, req.EdgesToValidate)
	if len(sequence) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no transitions to validate"})
		return
	}

	taskID := s.tasks.CreateTask("validation", map[string]any{
		"tree_id":   treeID,
		"host":      req.Host,
		"device_id": req.DeviceID,
	})

	job := queue.Job{
		TaskID:  taskID,
		Command: "validation",
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			return s.runValidationSweep(ctx, host, treeID, teamID, req.DeviceID, sequence, progress)
		},
	}
	if err := s.pool.Submit(job); err != nil {
		s.tasks.CompleteTask(taskID, nil, err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": "started"})
}

// runValidationSweep drives every transition of the sequence on the host,
// reporting progress after each step. The sweep continues past failing
// transitions so the result covers every edge.
func (s *ServerAPI) runValidationSweep(ctx context.Context, host *proxy.Client, treeID, teamID, deviceID string, sequence []models.Transition, progress func(map[string]any)) (any, error) {
	type stepOutcome struct {
		EdgeID      string `json:"edge_id"`
		FromNode    string `json:"from_node"`
		ToNode      string `json:"to_node"`
		Description string `json:"description"`
		Success     bool   `json:"success"`
		Error       string `json:"error,omitempty"`
	}

	steps := make([]stepOutcome, 0, len(sequence))
	passed := 0
	for i, t := range sequence {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("validation cancelled after %d/%d transitions: %w", i, len(sequence), ctx.Err())
		}

		outcome := stepOutcome{
			EdgeID:      t.EdgeID,
			FromNode:    t.FromNodeID,
			ToNode:      t.ToNodeID,
			Description: t.Description,
		}
		batch, err := host.ExecuteActionBatch(ctx, teamID, proxy.BatchActionsRequest{
			Actions:      t.Actions,
			RetryActions: t.RetryActions,
			DeviceID:     deviceID,
			EdgeID:       t.EdgeID,
			TreeID:       treeID,
		})
		switch {
		case err != nil:
			outcome.Error = err.Error()
		case batch.Success:
			outcome.Success = true
			passed++
		default:
			outcome.Error = fmt.Sprintf("%d/%d actions passed", batch.PassedCount, batch.TotalCount)
		}
		steps = append(steps, outcome)

		progress(map[string]any{
			"currentStep": i + 1,
			"totalSteps":  len(sequence),
			"steps":       steps,
		})
	}

	return map[string]any{
		"tree_id":     treeID,
		"total":       len(sequence),
		"passed":      passed,
		"failed":      len(sequence) - passed,
		"success":     passed == len(sequence),
		"transitions": steps,
	}, nil
}

// filterSequence keeps transitions matching the requested edges. Selectors
// match on node ids first and fall back to labels.
func filterSequence(sequence []models.Transition, selectors []EdgeSelector) []models.Transition {
	if len(selectors) == 0 {
		return sequence
	}
	matches := func(t models.Transition) bool {
		for _, sel := range selectors {
			if sel.FromNode == t.FromNodeID && sel.ToNode == t.ToNodeID {
				return true
			}
			if sel.FromName != "" && sel.FromName == t.FromLabel && sel.ToName == t.ToLabel {
				return true
			}
		}
		return false
	}
	var out []models.Transition
	for _, t := range sequence {
		if matches(t) {
			out = append(out, t)
		}
	}
	return out
}
