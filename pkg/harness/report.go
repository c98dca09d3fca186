package harness

import (
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// StepSummary is one executed step in a report.
type StepSummary struct {
	StepNumber      int    `json:"step_number"`
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	FromNode        string `json:"from_node,omitempty"`
	ToNode          string `json:"to_node,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	ScreenshotPath  string `json:"screenshot_path,omitempty"`
}

// Report is the structured summary generated at the end of every script
// run. It is a record, not a rendering; report upload is out of scope here.
type Report struct {
	ScriptName      string        `json:"script_name"`
	Success         bool          `json:"success"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	TotalSteps      int           `json:"total_steps"`
	PassedSteps     int           `json:"passed_steps"`
	FailedSteps     int           `json:"failed_steps"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	Steps           []StepSummary `json:"steps,omitempty"`
	ScreenshotPaths []string      `json:"screenshot_paths,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// GenerateReport summarizes the execution context's recorded steps.
func GenerateReport(execCtx *models.ExecutionContext, scriptName string, completedAt time.Time) *Report {
	r := &Report{
		ScriptName:      scriptName,
		Success:         execCtx.OverallSuccess,
		ErrorMessage:    execCtx.ErrorMessage,
		TotalSteps:      len(execCtx.StepResults),
		ScreenshotPaths: execCtx.ScreenshotPaths,
		StartedAt:       execCtx.StartTime,
		CompletedAt:     completedAt,
		ExecutionTimeMs: completedAt.Sub(execCtx.StartTime).Milliseconds(),
	}

	for _, step := range execCtx.StepResults {
		if step.Success {
			r.PassedSteps++
		} else {
			r.FailedSteps++
		}
		r.Steps = append(r.Steps, StepSummary{
			StepNumber:      step.StepNumber,
			Success:         step.Success,
			Message:         step.Message,
			FromNode:        step.FromNode,
			ToNode:          step.ToNode,
			ExecutionTimeMs: step.ExecutionTimeMs,
			ScreenshotPath:  step.ScreenshotPath,
		})
	}
	return r
}
