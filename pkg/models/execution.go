package models

import "time"

// Device identifies a host-attached device a controller can drive.
type Device struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	Name     string `json:"device_name" yaml:"device_name"`
	Model    string `json:"device_model" yaml:"device_model"`
}

// ActionResult is the per-action outcome appended by the action executor.
// The executor never aborts mid-list, so a batch always carries one entry
// per attempted action.
type ActionResult struct {
	ActionID        string `json:"action_id,omitempty"`
	Command         string `json:"command"`
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Phase           string `json:"phase,omitempty"` // main, retry, failure
}

// Action executor error kinds.
const (
	ErrorKindCommandMissing     = "command_missing"
	ErrorKindInputRequired      = "input_required"
	ErrorKindHostError          = "host_error"
	ErrorKindExecutionException = "execution_exception"
)

// ActionBatchResult is the action executor contract result.
type ActionBatchResult struct {
	Success     bool           `json:"success"`
	Results     []ActionResult `json:"results"`
	PassedCount int            `json:"passed_count"`
	TotalCount  int            `json:"total_count"`
	Logs        string         `json:"logs,omitempty"`
}

// Verification result types.
const (
	ResultTypePass = "PASS"
	ResultTypeFail = "FAIL"
)

// VerificationResult is the canonical flattened shape produced for every
// executed verification, regardless of type.
type VerificationResult struct {
	VerificationID    string         `json:"verification_id,omitempty"`
	VerificationType  string         `json:"verification_type"`
	Command           string         `json:"command,omitempty"`
	Success           bool           `json:"success"`
	Message           string         `json:"message,omitempty"`
	Error             string         `json:"error,omitempty"`
	Threshold         float64        `json:"threshold,omitempty"`
	Confidence        float64        `json:"confidence,omitempty"`
	ResultType        string         `json:"resultType"`
	SourceImageURL    string         `json:"sourceImageUrl,omitempty"`
	ReferenceImageURL string         `json:"referenceImageUrl,omitempty"`
	ResultOverlayURL  string         `json:"resultOverlayUrl,omitempty"`
	ExtractedText     string         `json:"extractedText,omitempty"`
	DetectedLanguage  string         `json:"detectedLanguage,omitempty"`
	ExecutionTimeMs   int64          `json:"execution_time_ms"`
	Extras            map[string]any `json:"extras,omitempty"`
}

// Verification pass conditions.
const (
	PassConditionAll = "all"
	PassConditionAny = "any"
)

// VerificationBatchResult is the verification executor contract result.
type VerificationBatchResult struct {
	Success     bool                 `json:"success"`
	Results     []VerificationResult `json:"results"`
	PassedCount int                  `json:"passed_count"`
	FailedCount int                  `json:"failed_count"`
	TotalCount  int                  `json:"total_count"`
	Message     string               `json:"message,omitempty"`
	Logs        string               `json:"logs,omitempty"`
}

// BlockResult is the standard-block executor result. AvailableBlocks is
// populated only for unknown commands.
type BlockResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message,omitempty"`
	Error           string         `json:"error,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	AvailableBlocks []string       `json:"available_blocks,omitempty"`
	Logs            string         `json:"logs,omitempty"`
}

// StepRecord is appended to ExecutionContext.StepResults in execution order.
type StepRecord struct {
	StepNumber          int                  `json:"step_number"`
	Success             bool                 `json:"success"`
	ScreenshotPath      string               `json:"screenshot_path,omitempty"`
	Message             string               `json:"message,omitempty"`
	ExecutionTimeMs     int64                `json:"execution_time_ms"`
	FromNode            string               `json:"from_node,omitempty"`
	ToNode              string               `json:"to_node,omitempty"`
	Actions             []Action             `json:"actions,omitempty"`
	RetryActions        []Action             `json:"retryActions,omitempty"`
	FailureActions      []Action             `json:"failureActions,omitempty"`
	Verifications       []Verification       `json:"verifications,omitempty"`
	VerificationResults []VerificationResult `json:"verification_results,omitempty"`
}

// ExecutionContext is the per-invocation record shared across the
// orchestrator and its executors. One context exists per script or request;
// it is not shared between concurrent executions.
type ExecutionContext struct {
	HostName          string         `json:"host"`
	SelectedDevice    *Device        `json:"selected_device,omitempty"`
	TeamID            string         `json:"team_id"`
	TreeID            string         `json:"tree_id,omitempty"`
	UserinterfaceName string         `json:"userinterface_name,omitempty"`
	ScriptResultID    string         `json:"script_result_id,omitempty"`
	StepResults       []StepRecord   `json:"step_results"`
	ScreenshotPaths   []string       `json:"screenshot_paths"`
	CustomData        map[string]any `json:"custom_data,omitempty"`
	OverallSuccess    bool           `json:"overall_success"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	StartTime         time.Time      `json:"start_time"`
}

// NewExecutionContext creates a context stamped with the current time.
func NewExecutionContext(hostName, teamID string) *ExecutionContext {
	return &ExecutionContext{
		HostName:   hostName,
		TeamID:     teamID,
		CustomData: make(map[string]any),
		StartTime:  time.Now(),
	}
}

// RecordStep appends a step record, assigning the next step number.
func (c *ExecutionContext) RecordStep(step StepRecord) {
	step.StepNumber = len(c.StepResults) + 1
	c.StepResults = append(c.StepResults, step)
}

// RecordScreenshot appends a captured screenshot path.
func (c *ExecutionContext) RecordScreenshot(path string) {
	if path == "" {
		return
	}
	c.ScreenshotPaths = append(c.ScreenshotPaths, path)
}

// NavigationResult is the navigation executor contract result.
type NavigationResult struct {
	Success             bool                 `json:"success"`
	TransitionsExecuted int                  `json:"transitions_executed"`
	TotalTransitions    int                  `json:"total_transitions"`
	ActionsExecuted     int                  `json:"actions_executed"`
	TotalActions        int                  `json:"total_actions"`
	ExecutionTimeMs     int64                `json:"execution_time_ms"`
	FinalPositionNodeID string               `json:"final_position_node_id,omitempty"`
	VerificationResults []VerificationResult `json:"verification_results,omitempty"`
	NavigationPath      []string             `json:"navigation_path,omitempty"`
	Error               string               `json:"error,omitempty"`
	Logs                string               `json:"logs,omitempty"`
}
