package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

type adbRecorder struct {
	calls  [][]string
	output string
	err    error
}

func (r *adbRecorder) run(_ context.Context, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	return r.output, r.err
}

func newTestADB(rec *adbRecorder) *ADBController {
	c := NewADBController(models.Device{DeviceID: "emulator-5554", Name: "Living Room", Model: "android_tv"}, "/tmp/captures")
	c.runCommand = rec.run
	return c
}

func TestADB_PressKeyMapsNamedKeys(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "press_key_LIVE", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"shell", "input", "keyevent", "300"}, rec.calls[0])
}

func TestADB_PressKeyParamAndRawCodes(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "press_key", map[string]any{"key": "ok"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"shell", "input", "keyevent", "23"}, rec.calls[0])

	// Unmapped keys pass through as raw keyevent codes.
	res, err = c.ExecuteCommand(context.Background(), "press_key", map[string]any{"key": "85"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"shell", "input", "keyevent", "85"}, rec.calls[1])

	res, err = c.ExecuteCommand(context.Background(), "press_key", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestADB_InputTextEscapesSpaces(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "input_text", map[string]any{"text": "hello world"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"shell", "input", "text", "hello%sworld"}, rec.calls[0])
}

func TestADB_AppLifecycleCommands(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "launch_app", map[string]any{"package": "com.example.tv"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "monkey", rec.calls[0][1])

	res, err = c.ExecuteCommand(context.Background(), "close_app", map[string]any{"package": "com.example.tv"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"shell", "am", "force-stop", "com.example.tv"}, rec.calls[1])
}

func TestADB_TapRequiresCoordinates(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "tap", map[string]any{"x": float64(120), "y": float64(480)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"shell", "input", "tap", "120", "480"}, rec.calls[0])

	res, err = c.ExecuteCommand(context.Background(), "tap", map[string]any{"x": "120"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestADB_UnsupportedCommandFailsWithoutError(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "swipe", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported command")
	assert.Empty(t, rec.calls)
}

func TestADB_CommandFailureSurfacesAsResult(t *testing.T) {
	rec := &adbRecorder{err: errors.New("device offline")}
	c := newTestADB(rec)

	res, err := c.ExecuteCommand(context.Background(), "press_key_HOME", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "device offline")
}

func TestADB_VerificationSearchesWindowDump(t *testing.T) {
	rec := &adbRecorder{output: "mCurrentFocus=Window{com.example.tv/LivePlayerActivity}"}
	c := newTestADB(rec)

	res, err := c.ExecuteVerification(context.Background(), models.Verification{
		VerificationType: "adb",
		Command:          "check_activity",
		Params:           map[string]any{"search_term": "LivePlayerActivity"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, rec.calls, 1)
	assert.True(t, strings.HasPrefix(strings.Join(rec.calls[0], " "), "shell dumpsys window"))

	res, err = c.ExecuteVerification(context.Background(), models.Verification{
		VerificationType: "adb",
		Params:           map[string]any{"search_term": "SettingsActivity"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestADB_CaptureScreenshotWritesPNG(t *testing.T) {
	rec := &adbRecorder{output: "\x89PNG fake image bytes"}
	c := NewADBController(models.Device{DeviceID: "emulator-5554"}, t.TempDir())
	c.runCommand = rec.run

	path, err := c.CaptureScreenshot(context.Background(), "live_pre")
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"exec-out", "screencap", "-p"}, rec.calls[0])

	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "live_pre_"))
	assert.True(t, strings.HasSuffix(base, ".png"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rec.output, string(data))
}

func TestADB_CaptureScreenshotPropagatesFailure(t *testing.T) {
	rec := &adbRecorder{err: errors.New("device offline")}
	c := NewADBController(models.Device{DeviceID: "emulator-5554"}, t.TempDir())
	c.runCommand = rec.run

	_, err := c.CaptureScreenshot(context.Background(), "live_pre")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device offline")
}

func TestADB_VerificationRejectsOtherTypes(t *testing.T) {
	rec := &adbRecorder{}
	c := newTestADB(rec)

	res, err := c.ExecuteVerification(context.Background(), models.Verification{VerificationType: "image"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not supported")
	assert.Empty(t, rec.calls)
}
