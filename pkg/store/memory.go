package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// MemoryStore is an in-memory Store used by unit tests and host-only
// deployments without a database. All operations take a single mutex;
// returned records are copies.
type MemoryStore struct {
	mu sync.Mutex

	trees         map[string]*models.NavigationTree // key: teamID + "/" + treeID
	actions       map[string]models.Action          // key: teamID + "/" + actionID
	verifications map[string]models.Verification    // key: teamID + "/" + verificationID

	EdgeExecutions []EdgeExecutionRecord
	NodeExecutions []NodeExecutionRecord

	scriptResults map[string]*models.ScriptResult
	campaigns     map[string]*models.CampaignExecution
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees:         make(map[string]*models.NavigationTree),
		actions:       make(map[string]models.Action),
		verifications: make(map[string]models.Verification),
		scriptResults: make(map[string]*models.ScriptResult),
		campaigns:     make(map[string]*models.CampaignExecution),
	}
}

func scopedKey(teamID, id string) string { return teamID + "/" + id }

// PutAction seeds an action record (test helper).
func (m *MemoryStore) PutAction(teamID string, a models.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[scopedKey(teamID, a.ID)] = a
}

// PutVerification seeds a verification record (test helper).
func (m *MemoryStore) PutVerification(teamID string, v models.Verification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[scopedKey(teamID, v.ID)] = v
}

// GetTree loads a tree by id first, then by exact name, then by
// case-insensitive name, then by userinterface name.
func (m *MemoryStore) GetTree(_ context.Context, treeRef, teamID string) (*models.NavigationTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trees[scopedKey(teamID, treeRef)]; ok {
		cp := cloneTree(t)
		return cp, nil
	}
	for _, t := range m.trees {
		if t.TeamID == teamID && t.Name == treeRef {
			return cloneTree(t), nil
		}
	}
	for _, t := range m.trees {
		if t.TeamID == teamID && strings.EqualFold(t.Name, treeRef) {
			return cloneTree(t), nil
		}
	}
	for _, t := range m.trees {
		if t.TeamID == teamID && t.UserinterfaceName == treeRef {
			return cloneTree(t), nil
		}
	}
	return nil, ErrNotFound
}

// SaveTree persists a tree keyed by team + tree id.
func (m *MemoryStore) SaveTree(_ context.Context, tree *models.NavigationTree) error {
	if tree.TreeID == "" {
		return NewValidationError("tree_id", "required")
	}
	if tree.TeamID == "" {
		return NewValidationError("team_id", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trees[scopedKey(tree.TeamID, tree.TreeID)] = cloneTree(tree)
	return nil
}

// GetActionsByIDs bulk-loads actions; missing ids are simply absent.
func (m *MemoryStore) GetActionsByIDs(_ context.Context, teamID string, ids []string) (map[string]models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Action, len(ids))
	for _, id := range ids {
		if a, ok := m.actions[scopedKey(teamID, id)]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// GetVerificationsByIDs bulk-loads verifications; missing ids are absent.
func (m *MemoryStore) GetVerificationsByIDs(_ context.Context, teamID string, ids []string) (map[string]models.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Verification, len(ids))
	for _, id := range ids {
		if v, ok := m.verifications[scopedKey(teamID, id)]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// RecordEdgeExecution appends an edge execution row.
func (m *MemoryStore) RecordEdgeExecution(_ context.Context, rec EdgeExecutionRecord) error {
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EdgeExecutions = append(m.EdgeExecutions, rec)
	return nil
}

// RecordNodeExecution appends a node execution row.
func (m *MemoryStore) RecordNodeExecution(_ context.Context, rec NodeExecutionRecord) error {
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NodeExecutions = append(m.NodeExecutions, rec)
	return nil
}

// RecordScriptResult persists a script result, generating an id when absent.
func (m *MemoryStore) RecordScriptResult(_ context.Context, result *models.ScriptResult) (string, error) {
	if result.ScriptName == "" {
		return "", NewValidationError("script_name", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if result.ScriptResultID == "" {
		result.ScriptResultID = uuid.New().String()
	}
	cp := *result
	m.scriptResults[result.ScriptResultID] = &cp
	return result.ScriptResultID, nil
}

// AllScriptResults returns copies of every recorded script result, ordered
// by start time (test helper).
func (m *MemoryStore) AllScriptResults() []models.ScriptResult {
	m.mu.Lock()
	out := make([]models.ScriptResult, 0, len(m.scriptResults))
	for _, r := range m.scriptResults {
		out = append(out, *r)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// FindRecentScriptResult returns the newest matching result started at or
// after since.
func (m *MemoryStore) FindRecentScriptResult(_ context.Context, teamID, scriptName string, since time.Time) (*models.ScriptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.ScriptResult
	for _, r := range m.scriptResults {
		if r.TeamID != teamID || r.ScriptName != scriptName {
			continue
		}
		if r.StartedAt.Before(since) {
			continue
		}
		if best == nil || r.StartedAt.After(best.StartedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// CreateCampaignExecution persists a campaign-start entry.
func (m *MemoryStore) CreateCampaignExecution(_ context.Context, exec *models.CampaignExecution) (string, error) {
	if exec.CampaignName == "" {
		return "", NewValidationError("campaign_name", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.CampaignExecutionID == "" {
		exec.CampaignExecutionID = uuid.New().String()
	}
	cp := *exec
	cp.ScriptResultIDs = append([]string(nil), exec.ScriptResultIDs...)
	m.campaigns[exec.CampaignExecutionID] = &cp
	return exec.CampaignExecutionID, nil
}

// AppendCampaignScriptResult links a child result; duplicate ids are no-ops.
func (m *MemoryStore) AppendCampaignScriptResult(_ context.Context, campaignExecutionID, scriptResultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignExecutionID]
	if !ok {
		return ErrNotFound
	}
	for _, id := range c.ScriptResultIDs {
		if id == scriptResultID {
			return nil
		}
	}
	c.ScriptResultIDs = append(c.ScriptResultIDs, scriptResultID)
	return nil
}

// UpdateCampaignExecution writes the aggregate outcome fields.
func (m *MemoryStore) UpdateCampaignExecution(_ context.Context, exec *models.CampaignExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[exec.CampaignExecutionID]
	if !ok {
		return ErrNotFound
	}
	c.Status = exec.Status
	c.Success = exec.Success
	c.SuccessfulScripts = exec.SuccessfulScripts
	c.FailedScripts = exec.FailedScripts
	c.CompletedAt = exec.CompletedAt
	c.DurationMs = exec.DurationMs
	c.ReportURL = exec.ReportURL
	c.ErrorMessage = exec.ErrorMessage
	return nil
}

// GetCampaignExecution loads a campaign execution by id.
func (m *MemoryStore) GetCampaignExecution(_ context.Context, campaignExecutionID, teamID string) (*models.CampaignExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignExecutionID]
	if !ok || c.TeamID != teamID {
		return nil, ErrNotFound
	}
	cp := *c
	cp.ScriptResultIDs = append([]string(nil), c.ScriptResultIDs...)
	return &cp, nil
}

func cloneTree(t *models.NavigationTree) *models.NavigationTree {
	cp := *t
	cp.Nodes = append([]models.Node(nil), t.Nodes...)
	cp.Edges = append([]models.Edge(nil), t.Edges...)
	return &cp
}
