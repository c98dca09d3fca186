package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
)

// BuilderExecute serves POST /host/builder/execute. Synchronous by default;
// async=true launches the block in the background and returns the execution
// id immediately for polling.
func (h *HostAPI) BuilderExecute(c *gin.Context) {
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

	if req.Async {
		execCtx := models.NewExecutionContext(h.hostName, h.teamFrom(c))
		execCtx.SelectedDevice = &device
		rt := blocks.Runtime{Controller: orch.Controller(), ExecCtx: execCtx}
		// The request context dies with this handler; the block must
		// outlive it.
		id := h.async.Start(context.Background(), rt, req.Command, req.Params)
		c.JSON(http.StatusAccepted, gin.H{"execution_id": id, "status": blocks.ExecutionRunning})
		return
	}

	execCtx := models.NewExecutionContext(h.hostName, h.teamFrom(c))
	execCtx.SelectedDevice = &device
	result := orch.ExecuteBlock(c.Request.Context(), req.Command, req.Params, execCtx)
	c.JSON(http.StatusOK, result)
}

// BuilderStatus serves GET /host/builder/execution/<id>/status.
func (h *HostAPI) BuilderStatus(c *gin.Context) {
	rec, ok := h.async.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
