package models

import "time"

// Campaign execution statuses.
const (
	CampaignStatusRunning   = "running"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
	CampaignStatusAborted   = "aborted"
)

// ScriptConfiguration describes one child script of a campaign.
type ScriptConfiguration struct {
	ScriptName string            `json:"script_name" yaml:"script_name"`
	ScriptType string            `json:"script_type,omitempty" yaml:"script_type,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// CampaignConfig is the plan a campaign executor runs, loadable from a YAML
// plan file. Only sequential execution is supported; Parallel is carried for
// config compatibility and rejected at validation time.
type CampaignConfig struct {
	CampaignID           string                `json:"campaign_id" yaml:"campaign_id"`
	CampaignName         string                `json:"campaign_name" yaml:"campaign_name"`
	UserinterfaceName    string                `json:"userinterface_name" yaml:"userinterface_name"`
	HostName             string                `json:"host" yaml:"host"`
	DeviceName           string                `json:"device" yaml:"device"`
	ContinueOnFailure    bool                  `json:"continue_on_failure" yaml:"continue_on_failure"`
	TimeoutMinutes       int                   `json:"timeout_minutes,omitempty" yaml:"timeout_minutes,omitempty"`
	Parallel             bool                  `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	ScriptConfigurations []ScriptConfiguration `json:"script_configurations" yaml:"script_configurations"`
	ExecutedBy           string                `json:"executed_by,omitempty" yaml:"executed_by,omitempty"`
}

// CampaignExecution is the persisted parent record linking child script
// results. ScriptResultIDs is append-only.
type CampaignExecution struct {
	CampaignExecutionID  string                `json:"campaign_execution_id"`
	TeamID               string                `json:"team_id"`
	CampaignName         string                `json:"campaign_name"`
	UserinterfaceName    string                `json:"userinterface_name"`
	HostName             string                `json:"host_name"`
	DeviceName           string                `json:"device_name"`
	Status               string                `json:"status"`
	ScriptConfigurations []ScriptConfiguration `json:"script_configurations,omitempty"`
	ScriptResultIDs      []string              `json:"script_result_ids"`
	SuccessfulScripts    int                   `json:"successful_scripts"`
	FailedScripts        int                   `json:"failed_scripts"`
	Success              bool                  `json:"success"`
	ReportURL            string                `json:"report_url,omitempty"`
	ExecutedBy           string                `json:"executed_by,omitempty"`
	StartedAt            time.Time             `json:"started_at"`
	CompletedAt          *time.Time            `json:"completed_at,omitempty"`
	DurationMs           int64                 `json:"duration_ms,omitempty"`
	ErrorMessage         string                `json:"error_message,omitempty"`
}

// ScriptResult is the persisted record of one script execution.
type ScriptResult struct {
	ScriptResultID    string         `json:"script_result_id"`
	TeamID            string         `json:"team_id"`
	ScriptName        string         `json:"script_name"`
	ScriptType        string         `json:"script_type,omitempty"`
	UserinterfaceName string         `json:"userinterface_name,omitempty"`
	HostName          string         `json:"host_name"`
	DeviceName        string         `json:"device_name,omitempty"`
	Success           bool           `json:"success"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ReportURL         string         `json:"report_url,omitempty"`
	LogsURL           string         `json:"logs_url,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
