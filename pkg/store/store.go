// Package store defines the persistence operations the execution core
// depends on, together with a Postgres implementation and an in-memory
// implementation for tests.
package store

import (
	"context"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// EdgeExecutionRecord is the per-action persisted outcome of an edge
// traversal. Written synchronously by the action executor before the result
// is surfaced upward.
type EdgeExecutionRecord struct {
	TeamID          string         `json:"team_id"`
	TreeID          string         `json:"tree_id"`
	EdgeID          string         `json:"edge_id"`
	HostName        string         `json:"host_name"`
	DeviceModel     string         `json:"device_model,omitempty"`
	Success         bool           `json:"success"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Message         string         `json:"message,omitempty"`
	ErrorDetails    string         `json:"error_details,omitempty"`
	ScriptResultID  string         `json:"script_result_id,omitempty"`
	ScriptContext   string         `json:"script_context,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ExecutedAt      time.Time      `json:"executed_at"`
}

// NodeExecutionRecord is the per-verification persisted outcome at a node.
type NodeExecutionRecord struct {
	TeamID           string    `json:"team_id"`
	TreeID           string    `json:"tree_id"`
	NodeID           string    `json:"node_id"`
	HostName         string    `json:"host_name"`
	DeviceModel      string    `json:"device_model,omitempty"`
	VerificationType string    `json:"verification_type,omitempty"`
	Success          bool      `json:"success"`
	ExecutionTimeMs  int64     `json:"execution_time_ms"`
	Message          string    `json:"message,omitempty"`
	ErrorDetails     string    `json:"error_details,omitempty"`
	ScriptResultID   string    `json:"script_result_id,omitempty"`
	ScriptContext    string    `json:"script_context,omitempty"`
	ExecutedAt       time.Time `json:"executed_at"`
}

// Store is the persistence contract. Every operation is team-scoped; no
// implementation performs cross-team reads. Store writes are independently
// consistent — the core does not wrap them in transactions.
type Store interface {
	// GetTree loads a navigation tree by id, name, or userinterface name
	// (tried in that order; name matching falls back to case-insensitive).
	GetTree(ctx context.Context, treeRef, teamID string) (*models.NavigationTree, error)

	// SaveTree persists a tree. Callers are responsible for invalidating
	// the navigation cache afterwards.
	SaveTree(ctx context.Context, tree *models.NavigationTree) error

	// GetActionsByIDs bulk-loads actions. Missing ids are absent from the
	// returned map, not an error (resolution is best-effort by design).
	GetActionsByIDs(ctx context.Context, teamID string, ids []string) (map[string]models.Action, error)

	// GetVerificationsByIDs bulk-loads verifications; missing ids are
	// absent from the returned map.
	GetVerificationsByIDs(ctx context.Context, teamID string, ids []string) (map[string]models.Verification, error)

	RecordEdgeExecution(ctx context.Context, rec EdgeExecutionRecord) error
	RecordNodeExecution(ctx context.Context, rec NodeExecutionRecord) error

	// RecordScriptResult persists a script result and returns its id
	// (generated when absent).
	RecordScriptResult(ctx context.Context, result *models.ScriptResult) (string, error)

	// FindRecentScriptResult returns the newest result matching team +
	// script name started at or after since, or ErrNotFound.
	FindRecentScriptResult(ctx context.Context, teamID, scriptName string, since time.Time) (*models.ScriptResult, error)

	// CreateCampaignExecution persists a campaign-start entry and returns
	// the campaign execution id.
	CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) (string, error)

	// AppendCampaignScriptResult links a child script result to a campaign.
	// Idempotent: appending an already-linked id is a no-op.
	AppendCampaignScriptResult(ctx context.Context, campaignExecutionID, scriptResultID string) error

	// UpdateCampaignExecution writes the aggregate campaign outcome.
	UpdateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error

	// GetCampaignExecution loads a campaign execution by id.
	GetCampaignExecution(ctx context.Context, campaignExecutionID, teamID string) (*models.CampaignExecution, error)
}
