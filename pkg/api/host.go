package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/session"
	"github.com/angelstreet/virtualpytest-sub008/pkg/version"
)

// HostAPI is the device-host surface. One orchestrator exists per attached
// device, built at startup around that device's controller; requests select
// it by device id.
type HostAPI struct {
	hostName string
	teamID   string

	orchestrators map[string]*executor.Orchestrator
	devices       map[string]models.Device
	registry      *blocks.Registry
	async         *blocks.AsyncExecutor
	sessions      *session.Manager
	scripts       *harness.ScriptRegistry
	harness       *harness.Harness
	logger        *slog.Logger
}

// NewHostAPI wires the host surface. orchestrators and devices are keyed by
// device id and must cover the same set.
func NewHostAPI(hostName, teamID string, orchestrators map[string]*executor.Orchestrator, devices []models.Device, registry *blocks.Registry, async *blocks.AsyncExecutor, sessions *session.Manager, scripts *harness.ScriptRegistry, h *harness.Harness) *HostAPI {
	deviceMap := make(map[string]models.Device, len(devices))
	for _, d := range devices {
		deviceMap[d.DeviceID] = d
	}
	return &HostAPI{
		hostName:      hostName,
		teamID:        teamID,
		orchestrators: orchestrators,
		devices:       deviceMap,
		registry:      registry,
		async:         async,
		sessions:      sessions,
		scripts:       scripts,
		harness:       h,
		logger:        slog.Default().With("component", "host_api"),
	}
}

// Router builds the gin engine with all host routes registered.
func (h *HostAPI) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)

	exec := r.Group("/execute")
	{
		exec.POST("/navigation", h.ExecuteNavigation)
		exec.POST("/actions", h.ExecuteActions)
		exec.POST("/verifications", h.ExecuteVerifications)
		exec.POST("/blocks", h.ExecuteBlock)
	}

	host := r.Group("/host")
	{
		host.POST("/action/executeBatch", h.ExecuteActions)
		host.POST("/verification/:type/execute", h.ExecuteTypedVerification)

		host.POST("/builder/execute", h.BuilderExecute)
		host.GET("/builder/execution/:id/status", h.BuilderStatus)

		host.POST("/script/execute", h.ExecuteHostScript)

		host.POST("/takeControl", h.TakeControl)
		host.POST("/releaseControl", h.ReleaseControl)
		host.GET("/sessions", h.ListSessions)
	}
	return r
}

// Health reports liveness, version, and attached devices.
func (h *HostAPI) Health(c *gin.Context) {
	devices := make([]models.Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   version.Full(),
		"host_name": h.hostName,
		"devices":   devices,
	})
}

// orchestratorFor resolves the per-device orchestrator. An empty device id
// selects the only device when exactly one is attached.
func (h *HostAPI) orchestratorFor(deviceID string) (*executor.Orchestrator, models.Device, error) {
	if deviceID == "" && len(h.orchestrators) == 1 {
		for id := range h.orchestrators {
			deviceID = id
		}
	}
	orch, ok := h.orchestrators[deviceID]
	if !ok {
		return nil, models.Device{}, fmt.Errorf("unknown device %q", deviceID)
	}
	return orch, h.devices[deviceID], nil
}

// teamFrom returns the request's team id, falling back to the host default.
func (h *HostAPI) teamFrom(c *gin.Context) string {
	if team := c.Query("team_id"); team != "" {
		return team
	}
	return h.teamID
}
