// Package screenshot provides the named capture hook drivers call around
// steps. Captures go through the device controller; failures are logged and
// swallowed so a broken capture pipeline never fails a test step.
package screenshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Hook names used by the navigation executor and script harness.
const (
	HookPreStep  = "pre_step"
	HookPostStep = "post_step"
	HookAnalysis = "analysis"
)

// Manager captures named screenshots for one device.
type Manager struct {
	ctrl   controller.Controller
	logger *slog.Logger
}

// NewManager creates a capture manager; ctrl may be nil, in which case every
// capture is a no-op.
func NewManager(ctrl controller.Controller) *Manager {
	return &Manager{
		ctrl:   ctrl,
		logger: slog.Default().With("component", "screenshot"),
	}
}

// Capture takes a screenshot named "<hook>_<label>" and records the path on
// the execution context. Returns the path, empty on failure or no-op.
func (m *Manager) Capture(ctx context.Context, execCtx *models.ExecutionContext, hook, label string) string {
	if m == nil || m.ctrl == nil {
		return ""
	}

	name := hook
	if label != "" {
		name = fmt.Sprintf("%s_%s", hook, label)
	}

	path, err := m.ctrl.CaptureScreenshot(ctx, name)
	if err != nil {
		m.logger.Warn("Screenshot capture failed", "name", name, "error", err)
		return ""
	}
	if execCtx != nil {
		execCtx.RecordScreenshot(path)
	}
	return path
}
