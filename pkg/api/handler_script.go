package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
)

// ScriptExecuteRequest is the body of POST /server/script/execute.
type ScriptExecuteRequest struct {
	ScriptName string   `json:"script_name"`
	Host       string   `json:"host"`
	DeviceID   string   `json:"device_id,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
}

// ExecuteScript starts a script on a host asynchronously. The host calls
// back POST /server/script/taskComplete when the script finishes; clients
// poll the task id meanwhile.
func (s *ServerAPI) ExecuteScript(c *gin.Context) {
	var req ScriptExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.ScriptName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_name is required"})
		return
	}
	if _, err := s.scripts.Analyze(req.ScriptName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	host, err := s.hostFor(req.Host)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := s.tasks.CreateTask("script_execute", map[string]any{
		"script_name": req.ScriptName,
		"host":        req.Host,
		"device_id":   req.DeviceID,
	})

	_, err = host.ExecuteScriptAsync(c.Request.Context(), proxy.ScriptRequest{
		ScriptName:  req.ScriptName,
		DeviceID:    req.DeviceID,
		TeamID:      s.teamFrom(c),
		Parameters:  req.Parameters,
		TaskID:      taskID,
		CallbackURL: s.serverURL,
	})
	if err != nil {
		s.tasks.CompleteTask(taskID, nil, err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "task_id": taskID})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": "started"})
}

// TaskComplete is the host→server completion callback.
func (s *ServerAPI) TaskComplete(c *gin.Context) {
	var req proxy.TaskCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if _, ok := s.tasks.GetTask(req.TaskID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	s.tasks.CompleteTask(req.TaskID, req.Result, req.Error)
	s.logger.Info("Script task completed via callback",
		"task_id", req.TaskID, "failed", req.Error != "")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListScripts returns the known script catalog.
func (s *ServerAPI) ListScripts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scripts": s.scripts.List()})
}

// AnalyzeScript returns a script's declared arguments.
func (s *ServerAPI) AnalyzeScript(c *gin.Context) {
	name := c.Query("script_name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_name query parameter is required"})
		return
	}
	analysis, err := s.scripts.Analyze(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analysis)
}
