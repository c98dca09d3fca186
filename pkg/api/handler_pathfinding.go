package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PreviewPath computes the shortest path to a target without executing
// anything. Target and start accept node ids or labels.
func (s *ServerAPI) PreviewPath(c *gin.Context) {
	treeID := c.Param("tree_id")
	teamID := s.teamFrom(c)
	target := c.Query("target")
	start := c.Query("current_node_id")

	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target query parameter is required"})
		return
	}

	path, err := s.pathfinder.FindShortestPath(c.Request.Context(), treeID, teamID, target, start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if path == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "No navigation path found",
			"tree_id": treeID,
			"target":  target,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tree_id":           treeID,
		"target":            target,
		"transitions":       path,
		"transition_count":  len(path),
		"already_at_target": len(path) == 0,
	})
}
