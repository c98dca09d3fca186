package harness

import (
	"fmt"
	"sort"
	"sync"
)

// ScriptInfo is the discoverable metadata of one script: its name, the
// declared typed arguments ("--name:type:default"), and a short description.
type ScriptInfo struct {
	Name        string   `json:"script_name"`
	Description string   `json:"description,omitempty"`
	ArgDecls    []string `json:"arg_decls,omitempty"`
}

// ScriptAnalysis is ScriptInfo with the declarations parsed out, returned by
// the script-analyze endpoint.
type ScriptAnalysis struct {
	ScriptInfo
	Args []ArgSpec `json:"args"`
}

type registeredScript struct {
	info ScriptInfo
	main ScriptFunc
}

// ScriptRegistry holds the scripts a process knows about. The runner and
// host register names with main functions; the server registers metadata
// only (main is nil) so it can list and analyze without executing.
type ScriptRegistry struct {
	mu      sync.RWMutex
	scripts map[string]registeredScript
}

// NewScriptRegistry creates an empty registry.
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{scripts: make(map[string]registeredScript)}
}

// Register adds a script. main may be nil for metadata-only registrations.
// Re-registering a name replaces it.
func (r *ScriptRegistry) Register(info ScriptInfo, main ScriptFunc) {
	r.mu.Lock()
	r.scripts[info.Name] = registeredScript{info: info, main: main}
	r.mu.Unlock()
}

// List returns all script infos sorted by name.
func (r *ScriptRegistry) List() []ScriptInfo {
	r.mu.RLock()
	infos := make([]ScriptInfo, 0, len(r.scripts))
	for _, s := range r.scripts {
		infos = append(infos, s.info)
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Get returns the main function and declarations for a runnable script.
func (r *ScriptRegistry) Get(name string) (ScriptInfo, ScriptFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[name]
	if !ok || s.main == nil {
		return ScriptInfo{}, nil, false
	}
	return s.info, s.main, true
}

// Analyze parses a script's argument declarations.
func (r *ScriptRegistry) Analyze(name string) (ScriptAnalysis, error) {
	r.mu.RLock()
	s, ok := r.scripts[name]
	r.mu.RUnlock()
	if !ok {
		return ScriptAnalysis{}, fmt.Errorf("unknown script %q", name)
	}

	analysis := ScriptAnalysis{ScriptInfo: s.info}
	seen := make(map[string]bool)
	for _, decl := range append(append([]string{}, s.info.ArgDecls...), frameworkArgs...) {
		spec, err := ParseArgSpec(decl)
		if err != nil {
			return ScriptAnalysis{}, fmt.Errorf("script %s declares invalid argument %q: %w", name, decl, err)
		}
		if seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		analysis.Args = append(analysis.Args, spec)
	}
	return analysis, nil
}
