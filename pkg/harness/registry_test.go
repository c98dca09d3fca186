package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptRegistry_ListSortedByName(t *testing.T) {
	r := NewScriptRegistry()
	r.Register(ScriptInfo{Name: "validation"}, nil)
	r.Register(ScriptInfo{Name: "goto_live"}, nil)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "goto_live", list[0].Name)
	assert.Equal(t, "validation", list[1].Name)
}

func TestScriptRegistry_GetRequiresMain(t *testing.T) {
	r := NewScriptRegistry()
	r.Register(ScriptInfo{Name: "metadata_only"}, nil)
	r.Register(ScriptInfo{Name: "runnable"}, func(ctx context.Context, sc *ScriptContext) error {
		return nil
	})

	_, _, ok := r.Get("metadata_only")
	assert.False(t, ok, "metadata-only registrations are not runnable")

	_, main, ok := r.Get("runnable")
	assert.True(t, ok)
	assert.NotNil(t, main)
}

func TestScriptRegistry_AnalyzeAddsFrameworkArgs(t *testing.T) {
	r := NewScriptRegistry()
	r.Register(ScriptInfo{
		Name:     "goto_live",
		ArgDecls: []string{"--dns:str:google.com", "--host:str:myhost"},
	}, nil)

	analysis, err := r.Analyze("goto_live")
	require.NoError(t, err)

	byName := make(map[string]ArgSpec)
	for _, spec := range analysis.Args {
		byName[spec.Name] = spec
	}
	assert.Equal(t, "google.com", byName["dns"].Default)
	// Script's own --host declaration wins over the framework one.
	assert.Equal(t, "myhost", byName["host"].Default)
	assert.Contains(t, byName, "device")
	assert.Len(t, analysis.Args, 3)
}

func TestScriptRegistry_AnalyzeUnknownScript(t *testing.T) {
	r := NewScriptRegistry()
	_, err := r.Analyze("missing")
	assert.Error(t, err)
}
