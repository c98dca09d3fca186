package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
)

// ExecuteActions serves POST /host/action/executeBatch and
// POST /execute/actions. The body is the proxy's batch shape.
func (h *HostAPI) ExecuteActions(c *gin.Context) {
	var req proxy.BatchActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	orch, device, err := h.orchestratorFor(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope := executor.Scope{
		TeamID:      h.teamFrom(c),
		TreeID:      req.TreeID,
		EdgeID:      req.EdgeID,
		HostName:    h.hostName,
		DeviceModel: device.Model,
	}
	result := orch.ExecuteActions(c.Request.Context(), req.Actions, req.RetryActions, req.FailureActions, scope)
	c.JSON(http.StatusOK, result)
}

// ExecuteNavigation serves POST /execute/navigation.
func (h *HostAPI) ExecuteNavigation(c *gin.Context) {
	var req proxy.NavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.TreeID == "" && req.UserinterfaceName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tree_id or userinterface_name is required"})
		return
	}
	if req.TargetNodeID == "" && req.TargetNodeLabel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_node_id or target_node_label is required"})
		return
	}

	orch, device, err := h.orchestratorFor(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	teamID := req.TeamID
	if teamID == "" {
		teamID = h.teamFrom(c)
	}

	execCtx := models.NewExecutionContext(h.hostName, teamID)
	execCtx.SelectedDevice = &device
	execCtx.UserinterfaceName = req.UserinterfaceName

	result := orch.ExecuteNavigation(c.Request.Context(), executor.NavigationRequest{
		TreeID:               req.TreeID,
		UserinterfaceName:    req.UserinterfaceName,
		TeamID:               teamID,
		TargetNodeID:         req.TargetNodeID,
		TargetNodeLabel:      req.TargetNodeLabel,
		CurrentNodeID:        req.CurrentNodeID,
		FrontendSentPosition: req.CurrentNodeID != "",
		NavigationPath:       req.NavigationPath,
		Scope: executor.Scope{
			HostName:    h.hostName,
			DeviceModel: device.Model,
		},
		ExecCtx: execCtx,
	})
	c.JSON(http.StatusOK, result)
}

// ExecuteVerifications serves POST /execute/verifications.
func (h *HostAPI) ExecuteVerifications(c *gin.Context) {
	var req proxy.VerificationBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	orch, device, err := h.orchestratorFor(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	teamID := req.TeamID
	if teamID == "" {
		teamID = h.teamFrom(c)
	}
	scope := executor.Scope{
		TeamID:      teamID,
		TreeID:      req.TreeID,
		NodeID:      req.NodeID,
		HostName:    h.hostName,
		DeviceModel: device.Model,
	}
	result := orch.ExecuteVerifications(c.Request.Context(), req.Verifications, req.PassCondition, scope)
	c.JSON(http.StatusOK, result)
}

// ExecuteBlock serves POST /execute/blocks (always synchronous; the builder
// endpoint handles the async path).
func (h *HostAPI) ExecuteBlock(c *gin.Context) {
	var req proxy.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	orch, device, err := h.orchestratorFor(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	execCtx := models.NewExecutionContext(h.hostName, h.teamFrom(c))
	execCtx.SelectedDevice = &device
	result := orch.ExecuteBlock(c.Request.Context(), req.Command, req.Params, execCtx)
	c.JSON(http.StatusOK, result)
}
