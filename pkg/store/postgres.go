package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool. Schema is managed
// by the embedded migrations in pkg/database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// treeMetadata is the persisted shape of the nodes/edges payload.
type treeMetadata struct {
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// GetTree loads a tree by id first, then by exact name, then by
// case-insensitive name, then by userinterface name (all team-scoped).
func (s *PostgresStore) GetTree(ctx context.Context, treeRef, teamID string) (*models.NavigationTree, error) {
	const base = `SELECT tree_id, team_id, name, userinterface_name, metadata FROM navigation_trees WHERE team_id = $1 AND `
	for _, where := range []string{"tree_id = $2", "name = $2", "LOWER(name) = LOWER($2)", "userinterface_name = $2"} {
		tree, err := s.scanTree(ctx, base+where, teamID, treeRef)
		if err == nil {
			return tree, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) scanTree(ctx context.Context, query string, args ...any) (*models.NavigationTree, error) {
	var (
		tree models.NavigationTree
		raw  []byte
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&tree.TreeID, &tree.TeamID, &tree.Name, &tree.UserinterfaceName, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query navigation tree: %w", err)
	}
	var meta treeMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode tree metadata: %w", err)
	}
	tree.Nodes = meta.Nodes
	tree.Edges = meta.Edges
	return &tree, nil
}

// SaveTree upserts a tree row. Cache invalidation is the caller's concern.
func (s *PostgresStore) SaveTree(ctx context.Context, tree *models.NavigationTree) error {
	if tree.TreeID == "" {
		return NewValidationError("tree_id", "required")
	}
	if tree.TeamID == "" {
		return NewValidationError("team_id", "required")
	}
	raw, err := json.Marshal(treeMetadata{Nodes: tree.Nodes, Edges: tree.Edges})
	if err != nil {
		return fmt.Errorf("failed to encode tree metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO navigation_trees (tree_id, team_id, name, userinterface_name, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tree_id) DO UPDATE
		SET name = EXCLUDED.name,
		    userinterface_name = EXCLUDED.userinterface_name,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()`,
		tree.TreeID, tree.TeamID, tree.Name, tree.UserinterfaceName, raw)
	if err != nil {
		return fmt.Errorf("failed to save navigation tree: %w", err)
	}
	return nil
}

// GetActionsByIDs bulk-loads actions; missing ids are absent from the map.
func (s *PostgresStore) GetActionsByIDs(ctx context.Context, teamID string, ids []string) (map[string]models.Action, error) {
	out := make(map[string]models.Action, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT action_id, device_model, action_type, command, params
		FROM actions WHERE team_id = $1 AND action_id = ANY($2)`,
		teamID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a   models.Action
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.DeviceModel, &a.ActionType, &a.Command, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Params); err != nil {
				return nil, fmt.Errorf("failed to decode action params: %w", err)
			}
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// GetVerificationsByIDs bulk-loads verifications; missing ids are absent.
func (s *PostgresStore) GetVerificationsByIDs(ctx context.Context, teamID string, ids []string) (map[string]models.Verification, error) {
	out := make(map[string]models.Verification, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT verification_id, verification_type, command, params
		FROM verifications WHERE team_id = $1 AND verification_id = ANY($2)`,
		teamID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v   models.Verification
			raw []byte
		)
		if err := rows.Scan(&v.ID, &v.VerificationType, &v.Command, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v.Params); err != nil {
				return nil, fmt.Errorf("failed to decode verification params: %w", err)
			}
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

// RecordEdgeExecution appends an edge execution row.
func (s *PostgresStore) RecordEdgeExecution(ctx context.Context, rec EdgeExecutionRecord) error {
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now()
	}
	var meta []byte
	if rec.Metadata != nil {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("failed to encode edge execution metadata: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO edge_executions
		  (team_id, tree_id, edge_id, host_name, device_model, success,
		   execution_time_ms, message, error_details, script_result_id,
		   script_context, metadata, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$13)`,
		rec.TeamID, rec.TreeID, rec.EdgeID, rec.HostName, rec.DeviceModel,
		rec.Success, rec.ExecutionTimeMs, rec.Message, rec.ErrorDetails,
		rec.ScriptResultID, rec.ScriptContext, meta, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to record edge execution: %w", err)
	}
	return nil
}

// RecordNodeExecution appends a node execution row.
func (s *PostgresStore) RecordNodeExecution(ctx context.Context, rec NodeExecutionRecord) error {
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO node_executions
		  (team_id, tree_id, node_id, host_name, device_model,
		   verification_type, success, execution_time_ms, message,
		   error_details, script_result_id, script_context, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),$12,$13)`,
		rec.TeamID, rec.TreeID, rec.NodeID, rec.HostName, rec.DeviceModel,
		rec.VerificationType, rec.Success, rec.ExecutionTimeMs, rec.Message,
		rec.ErrorDetails, rec.ScriptResultID, rec.ScriptContext, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to record node execution: %w", err)
	}
	return nil
}

// RecordScriptResult persists a script result, generating an id when absent.
func (s *PostgresStore) RecordScriptResult(ctx context.Context, result *models.ScriptResult) (string, error) {
	if result.ScriptName == "" {
		return "", NewValidationError("script_name", "required")
	}
	if result.ScriptResultID == "" {
		result.ScriptResultID = uuid.New().String()
	}
	var meta []byte
	if result.Metadata != nil {
		var err error
		if meta, err = json.Marshal(result.Metadata); err != nil {
			return "", fmt.Errorf("failed to encode script result metadata: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO script_results
		  (script_result_id, team_id, script_name, script_type,
		   userinterface_name, host_name, device_name, success,
		   error_message, report_url, logs_url, started_at, completed_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (script_result_id) DO UPDATE
		SET success = EXCLUDED.success,
		    error_message = EXCLUDED.error_message,
		    report_url = EXCLUDED.report_url,
		    logs_url = EXCLUDED.logs_url,
		    completed_at = EXCLUDED.completed_at,
		    metadata = EXCLUDED.metadata`,
		result.ScriptResultID, result.TeamID, result.ScriptName, result.ScriptType,
		result.UserinterfaceName, result.HostName, result.DeviceName, result.Success,
		result.ErrorMessage, result.ReportURL, result.LogsURL,
		result.StartedAt, result.CompletedAt, meta)
	if err != nil {
		return "", fmt.Errorf("failed to record script result: %w", err)
	}
	return result.ScriptResultID, nil
}

// FindRecentScriptResult returns the newest matching result started at or
// after since, or ErrNotFound.
func (s *PostgresStore) FindRecentScriptResult(ctx context.Context, teamID, scriptName string, since time.Time) (*models.ScriptResult, error) {
	var r models.ScriptResult
	err := s.pool.QueryRow(ctx, `
		SELECT script_result_id, team_id, script_name, script_type,
		       userinterface_name, host_name, device_name, success,
		       COALESCE(error_message, ''), COALESCE(report_url, ''), started_at, completed_at
		FROM script_results
		WHERE team_id = $1 AND script_name = $2 AND started_at >= $3
		ORDER BY started_at DESC
		LIMIT 1`,
		teamID, scriptName, since).Scan(
		&r.ScriptResultID, &r.TeamID, &r.ScriptName, &r.ScriptType,
		&r.UserinterfaceName, &r.HostName, &r.DeviceName, &r.Success,
		&r.ErrorMessage, &r.ReportURL, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent script result: %w", err)
	}
	return &r, nil
}

// CreateCampaignExecution persists a campaign-start entry.
func (s *PostgresStore) CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) (string, error) {
	if exec.CampaignName == "" {
		return "", NewValidationError("campaign_name", "required")
	}
	if exec.CampaignExecutionID == "" {
		exec.CampaignExecutionID = uuid.New().String()
	}
	cfg, err := json.Marshal(exec.ScriptConfigurations)
	if err != nil {
		return "", fmt.Errorf("failed to encode script configurations: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO campaign_executions
		  (campaign_execution_id, team_id, campaign_name, userinterface_name,
		   host_name, device_name, status, script_configurations,
		   script_result_ids, executed_by, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'{}',$9,$10)`,
		exec.CampaignExecutionID, exec.TeamID, exec.CampaignName,
		exec.UserinterfaceName, exec.HostName, exec.DeviceName,
		exec.Status, cfg, exec.ExecutedBy, exec.StartedAt)
	if err != nil {
		return "", fmt.Errorf("failed to create campaign execution: %w", err)
	}
	return exec.CampaignExecutionID, nil
}

// AppendCampaignScriptResult links a child script result idempotently via
// a conditional array append.
func (s *PostgresStore) AppendCampaignScriptResult(ctx context.Context, campaignExecutionID, scriptResultID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaign_executions
		SET script_result_ids = array_append(script_result_ids, $2)
		WHERE campaign_execution_id = $1
		  AND NOT ($2 = ANY(script_result_ids))`,
		campaignExecutionID, scriptResultID)
	if err != nil {
		return fmt.Errorf("failed to append campaign script result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already linked (fine) or the campaign does not exist.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM campaign_executions WHERE campaign_execution_id = $1)`,
			campaignExecutionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check campaign existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// UpdateCampaignExecution writes the aggregate campaign outcome.
func (s *PostgresStore) UpdateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaign_executions
		SET status = $2,
		    success = $3,
		    successful_scripts = $4,
		    failed_scripts = $5,
		    completed_at = $6,
		    duration_ms = $7,
		    report_url = $8,
		    error_message = $9
		WHERE campaign_execution_id = $1`,
		exec.CampaignExecutionID, exec.Status, exec.Success,
		exec.SuccessfulScripts, exec.FailedScripts, exec.CompletedAt,
		exec.DurationMs, exec.ReportURL, exec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to update campaign execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCampaignExecution loads a campaign execution by id.
func (s *PostgresStore) GetCampaignExecution(ctx context.Context, campaignExecutionID, teamID string) (*models.CampaignExecution, error) {
	var (
		c   models.CampaignExecution
		cfg []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT campaign_execution_id, team_id, campaign_name, userinterface_name,
		       host_name, device_name, status, script_configurations,
		       script_result_ids, successful_scripts, failed_scripts, success,
		       COALESCE(report_url, ''), COALESCE(executed_by, ''),
		       started_at, completed_at, COALESCE(duration_ms, 0),
		       COALESCE(error_message, '')
		FROM campaign_executions
		WHERE campaign_execution_id = $1 AND team_id = $2`,
		campaignExecutionID, teamID).Scan(
		&c.CampaignExecutionID, &c.TeamID, &c.CampaignName, &c.UserinterfaceName,
		&c.HostName, &c.DeviceName, &c.Status, &cfg,
		&c.ScriptResultIDs, &c.SuccessfulScripts, &c.FailedScripts, &c.Success,
		&c.ReportURL, &c.ExecutedBy, &c.StartedAt, &c.CompletedAt,
		&c.DurationMs, &c.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign execution: %w", err)
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &c.ScriptConfigurations); err != nil {
			return nil, fmt.Errorf("failed to decode script configurations: %w", err)
		}
	}
	return &c, nil
}
