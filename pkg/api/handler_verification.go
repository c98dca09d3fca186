package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// typedVerificationRequest is the body of the per-kind verification
// endpoints /host/verification/<type>/execute.
type typedVerificationRequest struct {
	Verification models.Verification `json:"verification"`
	DeviceID     string              `json:"device_id"`
	NodeID       string              `json:"node_id,omitempty"`
	TreeID       string              `json:"tree_id,omitempty"`
}

// ExecuteTypedVerification runs a single verification of the kind named in
// the path. The path type is authoritative over the body's declared type.
func (h *HostAPI) ExecuteTypedVerification(c *gin.Context) {
	var req typedVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	orch, device, err := h.orchestratorFor(req.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := req.Verification
	v.VerificationType = c.Param("type")

	scope := executor.Scope{
		TeamID:      h.teamFrom(c),
		TreeID:      req.TreeID,
		NodeID:      req.NodeID,
		HostName:    h.hostName,
		DeviceModel: device.Model,
	}
	batch := orch.ExecuteVerifications(c.Request.Context(), []models.Verification{v}, models.PassConditionAll, scope)
	if len(batch.Results) == 0 {
		// The single item was filtered out: unknown type or missing params.
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("verification of type %q rejected: unknown type or missing required params", v.VerificationType),
		})
		return
	}
	c.JSON(http.StatusOK, batch.Results[0])
}
