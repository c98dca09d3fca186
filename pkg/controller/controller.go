// Package controller defines the narrow capability contract device
// controllers implement, plus the parsed action/verification type
// registries. Controller internals (image recognition, ADB plumbing, remote
// codes) are plug-ins behind this interface and opaque to the core.
package controller

import (
	"context"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Result is the uniform outcome of a controller invocation.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Controller is the per-device capability interface. A host owns one
// controller per attached device; all invocations for a device serialize
// through the host's request queue.
type Controller interface {
	// ExecuteCommand runs a single device-facing command. Params already
	// carry wait_time from graph resolution.
	ExecuteCommand(ctx context.Context, command string, params map[string]any) (Result, error)

	// ExecuteVerification runs a post-condition check of the
	// verification's declared type.
	ExecuteVerification(ctx context.Context, v models.Verification) (Result, error)

	// CaptureScreenshot captures a named screenshot and returns its path.
	CaptureScreenshot(ctx context.Context, name string) (string, error)
}

// Provider resolves the controller for a device. The host wires a concrete
// registry; tests wire fakes.
type Provider interface {
	ControllerFor(deviceID string) (Controller, bool)
}
