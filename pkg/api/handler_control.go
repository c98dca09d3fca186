package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
)

// TakeControlRequest is the body of POST /host/takeControl.
type TakeControlRequest struct {
	DeviceID   string `json:"device_id"`
	Owner      string `json:"owner,omitempty"`
	ScriptName string `json:"script_name,omitempty"`
}

// ReleaseControlRequest is the body of POST /host/releaseControl.
type ReleaseControlRequest struct {
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id"`
}

// TakeControl opens an exclusive control session on a device.
func (h *HostAPI) TakeControl(c *gin.Context) {
	var req TakeControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if _, ok := h.devices[req.DeviceID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown device %q", req.DeviceID)})
		return
	}

	s, err := h.sessions.TakeControl(h.hostName, req.DeviceID, req.Owner, req.ScriptName)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// ReleaseControl closes a control session. Presenting the wrong session id
// is a no-op, so this always answers 200 for known devices.
func (h *HostAPI) ReleaseControl(c *gin.Context) {
	var req ReleaseControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	deviceKey := devicelock.DeviceKey(h.hostName, req.DeviceID)
	h.sessions.ReleaseControl(deviceKey, req.SessionID)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device_key": deviceKey})
}

// ListSessions returns all open control sessions on this host.
func (h *HostAPI) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}
