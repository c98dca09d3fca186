package campaign

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"

	"github.com/angelstreet/virtualpytest-sub008/pkg/logging"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// SubprocessRunner launches child scripts through the runner binary, the
// same entry point operators use directly. Output streams through the
// campaign's log capture when one is bound to the context.
type SubprocessRunner struct {
	// BinaryPath is the runner executable.
	BinaryPath string
}

// Run execs the runner for one script and waits for it. Context expiry
// kills the child; a non-zero exit is returned as an error.
func (r *SubprocessRunner) Run(ctx context.Context, script models.ScriptConfiguration, campaign models.CampaignConfig) error {
	args := []string{script.ScriptName, campaign.UserinterfaceName}
	if campaign.HostName != "" {
		args = append(args, "--host", campaign.HostName)
	}
	if campaign.DeviceName != "" {
		args = append(args, "--device", campaign.DeviceName)
	}

	names := make([]string, 0, len(script.Parameters))
	for name := range script.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, fmt.Sprintf("--%s", name), script.Parameters[name])
	}

	cmd := exec.CommandContext(ctx, r.BinaryPath, args...)
	out := logging.Writer(ctx)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("script %s timed out: %w", script.ScriptName, ctx.Err())
	}
	return fmt.Errorf("script %s exited with error: %w", script.ScriptName, err)
}
