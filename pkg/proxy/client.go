// Package proxy is the typed HTTP client the server uses to drive a device
// host: batch actions, navigation, verifications, standard blocks, and async
// script execution with completion callback.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Per-call transport budget for action and verification traffic.
const defaultTimeout = 60 * time.Second

// Client talks to one device host.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a client for the host at baseURL (scheme://host:port,
// no trailing slash).
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		logger:     slog.Default(),
	}
}

// OverrideHTTPClientForTest swaps the transport, used by tests to point at
// an httptest server or inject failures.
func (c *Client) OverrideHTTPClientForTest(httpClient *http.Client) {
	c.httpClient = httpClient
}

// BatchActionsRequest is the body of POST /host/action/executeBatch.
type BatchActionsRequest struct {
	Actions        []models.Action `json:"actions"`
	RetryActions   []models.Action `json:"retry_actions,omitempty"`
	FailureActions []models.Action `json:"failure_actions,omitempty"`
	DeviceID       string          `json:"device_id"`
	EdgeID         string          `json:"edge_id,omitempty"`
	TreeID         string          `json:"tree_id,omitempty"`
}

// ExecuteActionBatch runs a main/retry/failure action batch on the host.
func (c *Client) ExecuteActionBatch(ctx context.Context, teamID string, req BatchActionsRequest) (*models.ActionBatchResult, error) {
	var out models.ActionBatchResult
	path := "/host/action/executeBatch?team_id=" + teamID
	if err := c.postJSON(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NavigationRequest is the body of POST /execute/navigation.
type NavigationRequest struct {
	DeviceID          string              `json:"device_id"`
	TreeID            string              `json:"tree_id"`
	UserinterfaceName string              `json:"userinterface_name,omitempty"`
	TeamID            string              `json:"team_id"`
	TargetNodeID      string              `json:"target_node_id,omitempty"`
	TargetNodeLabel   string              `json:"target_node_label,omitempty"`
	CurrentNodeID     string              `json:"current_node_id,omitempty"`
	NavigationPath    []models.Transition `json:"navigation_path,omitempty"`
}

// ExecuteNavigation runs a full navigation to a target node on the host.
func (c *Client) ExecuteNavigation(ctx context.Context, req NavigationRequest) (*models.NavigationResult, error) {
	var out models.NavigationResult
	if err := c.postJSON(ctx, "/execute/navigation", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerificationBatchRequest is the body of POST /execute/verifications.
type VerificationBatchRequest struct {
	Verifications []models.Verification `json:"verifications"`
	DeviceID      string                `json:"device_id"`
	TeamID        string                `json:"team_id"`
	NodeID        string                `json:"node_id,omitempty"`
	TreeID        string                `json:"tree_id,omitempty"`
	PassCondition string                `json:"pass_condition,omitempty"`
}

// ExecuteVerificationBatch runs a verification batch on the host.
func (c *Client) ExecuteVerificationBatch(ctx context.Context, req VerificationBatchRequest) (*models.VerificationBatchResult, error) {
	var out models.VerificationBatchResult
	if err := c.postJSON(ctx, "/execute/verifications", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteVerification hits the typed per-kind endpoint
// /host/verification/<type>/execute for a single verification.
func (c *Client) ExecuteVerification(ctx context.Context, deviceID string, v models.Verification) (*models.VerificationResult, error) {
	body := struct {
		Verification models.Verification `json:"verification"`
		DeviceID     string              `json:"device_id"`
	}{Verification: v, DeviceID: deviceID}

	var out models.VerificationResult
	path := fmt.Sprintf("/host/verification/%s/execute", v.VerificationType)
	if err := c.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockRequest is the body of POST /host/builder/execute.
type BlockRequest struct {
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
	DeviceID string         `json:"device_id"`
	Async    bool           `json:"async,omitempty"`
}

// ExecuteBlock runs a standard block on the host.
func (c *Client) ExecuteBlock(ctx context.Context, req BlockRequest) (*models.BlockResult, error) {
	var out models.BlockResult
	if err := c.postJSON(ctx, "/host/builder/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockExecutionStatus polls an async block execution started with
// Async=true.
func (c *Client) BlockExecutionStatus(ctx context.Context, executionID string) (*models.BlockResult, error) {
	var out models.BlockResult
	if err := c.getJSON(ctx, "/host/builder/execution/"+executionID+"/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScriptRequest is the body of POST /host/script/execute.
type ScriptRequest struct {
	ScriptName  string   `json:"script_name"`
	DeviceID    string   `json:"device_id,omitempty"`
	TeamID      string   `json:"team_id"`
	Parameters  []string `json:"parameters,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// ScriptAccepted is the host's acknowledgement of an async script start.
type ScriptAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ExecuteScriptAsync starts a script on the host. The host runs it in the
// background and, when CallbackURL is set, POSTs a TaskCompleteRequest there
// on completion.
func (c *Client) ExecuteScriptAsync(ctx context.Context, req ScriptRequest) (*ScriptAccepted, error) {
	var out ScriptAccepted
	if err := c.postJSON(ctx, "/host/script/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskCompleteRequest is the host→server completion callback body.
type TaskCompleteRequest struct {
	TaskID string `json:"task_id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NotifyTaskComplete posts the completion callback to the server. Used from
// the host side; serverURL is the coordinator base URL.
func NotifyTaskComplete(ctx context.Context, httpClient *http.Client, serverURL string, req TaskCompleteRequest) error {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	c := &Client{httpClient: httpClient, baseURL: serverURL, logger: slog.Default()}
	return c.postJSON(ctx, "/server/script/taskComplete", req, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call host %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Host returned non-2xx", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("host returned HTTP %d for %s: %s", resp.StatusCode, path, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode host response for %s: %w", path, err)
	}
	return nil
}
