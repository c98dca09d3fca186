package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
)

// ExecuteHostScript serves POST /host/script/execute. The script runs in
// the background through the harness; when a callback URL is given, the
// completion is POSTed to the server's taskComplete endpoint.
func (h *HostAPI) ExecuteHostScript(c *gin.Context) {
	var req proxy.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	info, main, ok := h.scripts.Get(req.ScriptName)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown script %q", req.ScriptName)})
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	argv := req.Parameters
	if req.DeviceID != "" {
		argv = append(append([]string{}, argv...), "--device", req.DeviceID)
	}

	go h.runScript(info, main, argv, taskID, req.CallbackURL)

	c.JSON(http.StatusAccepted, proxy.ScriptAccepted{TaskID: taskID, Status: "started"})
}

// runScript executes one script to completion and reports the outcome.
// The harness already handles locking, report generation, and persistence;
// this only adds the server callback.
func (h *HostAPI) runScript(info harness.ScriptInfo, main harness.ScriptFunc, argv []string, taskID, callbackURL string) {
	exitCode := h.harness.Run(context.Background(), info.Name, info.ArgDecls, argv, main)

	result := map[string]any{
		"script_name": info.Name,
		"exit_code":   exitCode,
	}
	if report := h.harness.LastReport(); report != nil {
		result["report"] = report
	}

	var errMsg string
	if exitCode != harness.ExitSuccess {
		errMsg = fmt.Sprintf("script %s exited with code %d", info.Name, exitCode)
	}

	if callbackURL == "" {
		h.logger.Info("Script finished without callback",
			"script", info.Name, "task_id", taskID, "exit_code", exitCode)
		return
	}
	err := proxy.NotifyTaskComplete(context.Background(), nil, callbackURL, proxy.TaskCompleteRequest{
		TaskID: taskID,
		Result: result,
		Error:  errMsg,
	})
	if err != nil {
		h.logger.Error("Failed to deliver task completion callback",
			"script", info.Name, "task_id", taskID, "error", err)
	}
}
