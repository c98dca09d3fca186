// Package models defines the domain records shared across the navigation
// cache, executors, task manager, and store.
package models

// Node type constants. A tree may define additional screen types; only
// "entry" has pathfinding semantics (preferred start node).
const (
	NodeTypeEntry  = "entry"
	NodeTypeHome   = "home"
	NodeTypeScreen = "screen"
)

// DefaultActionWaitTime is injected into action params during graph
// resolution when the action does not declare its own wait_time (ms).
const DefaultActionWaitTime = 500

// DefaultFinalWaitTime is the post-transition settle time (ms) used when an
// edge does not declare finalWaitTime.
const DefaultFinalWaitTime = 2000

// Action is a single device-facing command. Actions are immutable; the same
// record may be referenced from many edges.
type Action struct {
	ID            string         `json:"id"`
	DeviceModel   string         `json:"device_model,omitempty"`
	ActionType    string         `json:"action_type"`
	Command       string         `json:"command"`
	Params        map[string]any `json:"params"`
	RequiresInput bool           `json:"requiresInput,omitempty"`
	InputValue    string         `json:"inputValue,omitempty"`
}

// WaitTime returns the action's wait_time param in milliseconds, or 0 when
// unset or not numeric.
func (a Action) WaitTime() int {
	if a.Params == nil {
		return 0
	}
	switch v := a.Params["wait_time"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Verification is a post-condition check performed via a verification
// controller.
type Verification struct {
	ID               string         `json:"id"`
	VerificationType string         `json:"verification_type"`
	Command          string         `json:"command"`
	Params           map[string]any `json:"params"`
}

// Node is a screen or application state in the navigation tree.
// Verifications holds the resolved objects once the tree has passed through
// the navigation cache.
type Node struct {
	NodeID          string         `json:"node_id"`
	Label           string         `json:"label"`
	NodeType        string         `json:"node_type"`
	VerificationIDs []string       `json:"verification_ids,omitempty"`
	Verifications   []Verification `json:"verifications,omitempty"`
}

// Edge is a directed transition in the navigation tree. The *IDs lists are
// the persisted form; Actions/RetryActions/FailureActions are materialized
// by the cache at graph-build time.
type Edge struct {
	EdgeID           string   `json:"edge_id"`
	FromNode         string   `json:"from_node"`
	ToNode           string   `json:"to_node"`
	ActionIDs        []string `json:"action_ids,omitempty"`
	RetryActionIDs   []string `json:"retry_action_ids,omitempty"`
	FailureActionIDs []string `json:"failure_action_ids,omitempty"`
	Actions          []Action `json:"actions,omitempty"`
	RetryActions     []Action `json:"retry_actions,omitempty"`
	FailureActions   []Action `json:"failure_actions,omitempty"`
	FinalWaitTime    int      `json:"finalWaitTime,omitempty"`
}

// NavigationTree is the persisted graph describing a user interface.
type NavigationTree struct {
	TreeID            string `json:"tree_id"`
	TeamID            string `json:"team_id"`
	Name              string `json:"name"`
	UserinterfaceName string `json:"userinterface_name"`
	Nodes             []Node `json:"nodes"`
	Edges             []Edge `json:"edges"`
}

// Transition is a resolved navigation edge, ready for execution: actions are
// objects, not ids. Produced by the pathfinder in path order.
type Transition struct {
	TransitionNumber int      `json:"transition_number"`
	EdgeID           string   `json:"edge_id"`
	FromNodeID       string   `json:"from_node_id"`
	ToNodeID         string   `json:"to_node_id"`
	FromLabel        string   `json:"from_node_label"`
	ToLabel          string   `json:"to_node_label"`
	Actions          []Action `json:"actions"`
	RetryActions     []Action `json:"retryActions,omitempty"`
	FailureActions   []Action `json:"failureActions,omitempty"`
	FinalWaitTime    int      `json:"finalWaitTime"`
	Description      string   `json:"description"`
}
