// Package api exposes the HTTP surfaces of the server (central coordinator)
// and the host (device owner). Routes are thin translators from HTTP to
// core calls; all execution logic lives in the executor, navigation,
// campaign, and harness packages.
package api

import (
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angelstreet/virtualpytest-sub008/pkg/database"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
	"github.com/angelstreet/virtualpytest-sub008/pkg/queue"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/version"
)

// ServerAPI is the central coordinator surface: it accepts operator
// requests, wraps long operations in task records, and proxies execution to
// device hosts.
type ServerAPI struct {
	store      store.Store
	tasks      *tasks.Manager
	pool       *queue.WorkerPool
	cache      *navigation.Cache
	pathfinder *navigation.Pathfinder
	scripts    *harness.ScriptRegistry
	hosts      map[string]*proxy.Client
	teamID     string
	serverURL  string
	db         *stdsql.DB
	logger     *slog.Logger
}

// NewServerAPI wires the server surface. hosts maps host name to its proxy
// client; serverURL is the callback base URL hosts post completions to.
func NewServerAPI(st store.Store, tm *tasks.Manager, pool *queue.WorkerPool, cache *navigation.Cache, scripts *harness.ScriptRegistry, hosts map[string]*proxy.Client, teamID, serverURL string) *ServerAPI {
	return &ServerAPI{
		store:      st,
		tasks:      tm,
		pool:       pool,
		cache:      cache,
		pathfinder: navigation.NewPathfinder(cache),
		scripts:    scripts,
		hosts:      hosts,
		teamID:     teamID,
		serverURL:  serverURL,
		logger:     slog.Default().With("component", "server_api"),
	}
}

// Router builds the gin engine with all server routes registered.
func (s *ServerAPI) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.Health)

	srv := r.Group("/server")
	{
		srv.POST("/validation/run/:tree_id", s.RunValidation)
		srv.GET("/validation/status/:task_id", s.TaskStatus)

		srv.POST("/script/execute", s.ExecuteScript)
		srv.POST("/script/taskComplete", s.TaskComplete)
		srv.GET("/script/list", s.ListScripts)
		srv.GET("/script/analyze", s.AnalyzeScript)
		srv.GET("/script/status/:task_id", s.TaskStatus)

		srv.GET("/pathfinding/preview/:tree_id", s.PreviewPath)
	}
	return r
}

// SetDBHealth attaches a database handle so /health includes connection pool
// statistics. Optional; in-memory deployments skip it.
func (s *ServerAPI) SetDBHealth(db *stdsql.DB) { s.db = db }

// Health reports liveness, version, and database status when available.
func (s *ServerAPI) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"version": version.Full(),
	}
	if s.db != nil {
		dbHealth, err := database.Health(c.Request.Context(), s.db)
		body["database"] = dbHealth
		if err != nil {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// TaskStatus returns the current task record for polling clients.
func (s *ServerAPI) TaskStatus(c *gin.Context) {
	rec, ok := s.tasks.GetTask(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// hostFor resolves the proxy client for a named host.
func (s *ServerAPI) hostFor(name string) (*proxy.Client, error) {
	client, ok := s.hosts[name]
	if !ok {
		return nil, fmt.Errorf("unknown host %q", name)
	}
	return client, nil
}

// teamFrom returns the request's team id, falling back to the deployment
// default.
func (s *ServerAPI) teamFrom(c *gin.Context) string {
	if team := c.Query("team_id"); team != "" {
		return team
	}
	return s.teamID
}
