// Package blocks implements the standard block registry and executor.
// Blocks are small reusable operations a test builder composes; the host
// ships a builtin set and accepts custom registrations at startup.
package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// ParamDescriptor describes one typed block parameter.
type ParamDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // str, int, float, bool, list
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Info is a block's discovery metadata.
type Info struct {
	Command     string            `json:"command"`
	Description string            `json:"description"`
	Params      []ParamDescriptor `json:"params,omitempty"`
}

// Runtime carries what a block may touch while executing. Controller is nil
// for blocks that never drive the device.
type Runtime struct {
	Controller controller.Controller
	ExecCtx    *models.ExecutionContext
}

// Block is one executable block. Execute returns structured output or an
// error; the registry wraps both into the uniform BlockResult.
type Block interface {
	Info() Info
	Execute(ctx context.Context, rt Runtime, params map[string]any) (map[string]any, error)
}

// Registry holds the discovered block set. Registration happens at startup;
// Execute is safe for concurrent use afterwards.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]Block
	logger *slog.Logger
}

// NewRegistry creates a registry preloaded with the builtin block set.
func NewRegistry() *Registry {
	r := &Registry{
		blocks: make(map[string]Block),
		logger: slog.Default().With("component", "blocks"),
	}
	for _, b := range builtinBlocks() {
		r.blocks[b.Info().Command] = b
	}
	return r
}

// Register adds a custom block. A custom block may shadow a builtin of the
// same command; the last registration wins.
func (r *Registry) Register(b Block) {
	cmd := b.Info().Command
	r.mu.Lock()
	if _, exists := r.blocks[cmd]; exists {
		r.logger.Warn("Block registration shadows existing block", "command", cmd)
	}
	r.blocks[cmd] = b
	r.mu.Unlock()
}

// Commands returns the sorted list of registered block commands.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]string, 0, len(r.blocks))
	for cmd := range r.blocks {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// InfoFor returns metadata for one command.
func (r *Registry) InfoFor(command string) (Info, bool) {
	r.mu.RLock()
	b, ok := r.blocks[command]
	r.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return b.Info(), true
}

// Execute runs a block by command name. Unknown commands return a failed
// result listing the available blocks instead of an error.
func (r *Registry) Execute(ctx context.Context, rt Runtime, command string, params map[string]any) models.BlockResult {
	r.mu.RLock()
	b, ok := r.blocks[command]
	r.mu.RUnlock()

	if !ok {
		return models.BlockResult{
			Success:         false,
			Error:           fmt.Sprintf("unknown block command %q", command),
			AvailableBlocks: r.Commands(),
		}
	}

	if err := checkRequiredParams(b.Info(), params); err != nil {
		return models.BlockResult{Success: false, Error: err.Error()}
	}

	start := time.Now()
	output, err := b.Execute(ctx, rt, withDefaults(b.Info(), params))
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		r.logger.Warn("Block execution failed", "command", command, "error", err)
		return models.BlockResult{
			Success:         false,
			Error:           err.Error(),
			Output:          output,
			ExecutionTimeMs: elapsed,
		}
	}
	return models.BlockResult{
		Success:         true,
		Message:         fmt.Sprintf("%s completed", command),
		Output:          output,
		ExecutionTimeMs: elapsed,
	}
}

func checkRequiredParams(info Info, params map[string]any) error {
	for _, p := range info.Params {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			return fmt.Errorf("block %s: missing required param %q", info.Command, p.Name)
		}
	}
	return nil
}

// withDefaults fills declared defaults for absent params without mutating
// the caller's map.
func withDefaults(info Info, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range info.Params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}
