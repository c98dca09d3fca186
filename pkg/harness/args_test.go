package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgSpec(t *testing.T) {
	spec, err := ParseArgSpec("--dns:str:google.com")
	require.NoError(t, err)
	assert.Equal(t, ArgSpec{Name: "dns", Type: "str", Default: "google.com"}, spec)

	spec, err = ParseArgSpec("--count:int:5")
	require.NoError(t, err)
	assert.Equal(t, "int", spec.Type)

	_, err = ParseArgSpec("dns:str:x")
	assert.Error(t, err)
	_, err = ParseArgSpec("--dns:str")
	assert.Error(t, err)
	_, err = ParseArgSpec("--dns:uuid:x")
	assert.Error(t, err)
}

func TestParseArgs_DefaultsAndOverrides(t *testing.T) {
	args, err := ParseArgs(
		[]string{"--dns:str:google.com", "--count:int:3", "--verbose:bool:false"},
		[]string{"horizon_android_tv", "--count", "7", "--verbose"})
	require.NoError(t, err)

	assert.Equal(t, "horizon_android_tv", args.UserinterfaceName())
	assert.Equal(t, "google.com", args.String("dns"))
	assert.Equal(t, 7, args.Int("count"))
	assert.True(t, args.Bool("verbose"))
}

func TestParseArgs_EqualsForm(t *testing.T) {
	args, err := ParseArgs([]string{"--dns:str:google.com"},
		[]string{"ui", "--dns=8.8.8.8"})
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", args.String("dns"))
}

func TestParseArgs_FrameworkArgsAlwaysAvailable(t *testing.T) {
	args, err := ParseArgs(nil, []string{"ui", "--host", "host1", "--device", "device2"})
	require.NoError(t, err)
	assert.Equal(t, "host1", args.String("host"))
	assert.Equal(t, "device2", args.String("device"))
}

func TestParseArgs_ScriptDeclarationWinsOverFramework(t *testing.T) {
	args, err := ParseArgs([]string{"--host:str:fallback-host"}, []string{"ui"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-host", args.String("host"))
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	_, err := ParseArgs(nil, []string{"ui", "--warp", "9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--warp")
}

func TestParseArgs_TypeMismatch(t *testing.T) {
	_, err := ParseArgs([]string{"--count:int:0"}, []string{"ui", "--count", "many"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "int")
}
