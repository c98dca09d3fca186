package controller

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Android keyevent codes for the remote commands the navigation graphs use.
var keyCodes = map[string]string{
	"UP":      "19",
	"DOWN":    "20",
	"LEFT":    "21",
	"RIGHT":   "22",
	"OK":      "23",
	"BACK":    "4",
	"HOME":    "3",
	"MENU":    "82",
	"LIVE":    "300",
	"GUIDE":   "172",
	"POWER":   "26",
	"VOLUP":   "24",
	"VOLDOWN": "25",
}

// ADBController drives an Android TV device through the adb CLI. The device
// id doubles as the adb serial.
type ADBController struct {
	serial     string
	captureDir string
	logger     *slog.Logger

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, args ...string) (string, error)
}

// NewADBController creates a controller for one device. Screenshots land in
// captureDir, created on first use.
func NewADBController(device models.Device, captureDir string) *ADBController {
	c := &ADBController{
		serial:     device.DeviceID,
		captureDir: captureDir,
		logger:     slog.Default().With("component", "adb_controller", "device", device.DeviceID),
	}
	c.runCommand = c.runADB
	return c
}

// runADB returns stdout only; screencap output is raw PNG bytes, so stderr
// is kept out of it and surfaces in the error instead.
func (c *ADBController) runADB(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-s", c.serial}, args...)
	cmd := exec.CommandContext(ctx, "adb", full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// ExecuteCommand dispatches one device command.
func (c *ADBController) ExecuteCommand(ctx context.Context, command string, params map[string]any) (Result, error) {
	switch {
	case strings.HasPrefix(command, "press_key_"):
		return c.pressKey(ctx, strings.TrimPrefix(command, "press_key_"))
	case command == "press_key":
		return c.pressKey(ctx, stringParam(params, "key"))
	case command == "input_text":
		return c.inputText(ctx, stringParam(params, "text"))
	case command == "launch_app":
		return c.launchApp(ctx, stringParam(params, "package"))
	case command == "close_app":
		return c.closeApp(ctx, stringParam(params, "package"))
	case command == "tap":
		return c.tap(ctx, params)
	default:
		return Result{Success: false, Error: fmt.Sprintf("unsupported command %q", command)}, nil
	}
}

func (c *ADBController) pressKey(ctx context.Context, key string) (Result, error) {
	code, ok := keyCodes[strings.ToUpper(key)]
	if !ok {
		// Pass raw numeric codes through unchanged.
		code = key
	}
	if code == "" {
		return Result{Success: false, Error: "press_key requires a key parameter"}, nil
	}
	if _, err := c.runCommand(ctx, "shell", "input", "keyevent", code); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Message: "pressed " + key}, nil
}

func (c *ADBController) inputText(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{Success: false, Error: "input_text requires a text parameter"}, nil
	}
	// adb input text treats spaces as argument separators.
	escaped := strings.ReplaceAll(text, " ", "%s")
	if _, err := c.runCommand(ctx, "shell", "input", "text", escaped); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Message: "typed text"}, nil
}

func (c *ADBController) launchApp(ctx context.Context, pkg string) (Result, error) {
	if pkg == "" {
		return Result{Success: false, Error: "launch_app requires a package parameter"}, nil
	}
	if _, err := c.runCommand(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1"); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Message: "launched " + pkg}, nil
}

func (c *ADBController) closeApp(ctx context.Context, pkg string) (Result, error) {
	if pkg == "" {
		return Result{Success: false, Error: "close_app requires a package parameter"}, nil
	}
	if _, err := c.runCommand(ctx, "shell", "am", "force-stop", pkg); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Message: "stopped " + pkg}, nil
}

func (c *ADBController) tap(ctx context.Context, params map[string]any) (Result, error) {
	x := stringParam(params, "x")
	y := stringParam(params, "y")
	if x == "" || y == "" {
		return Result{Success: false, Error: "tap requires x and y parameters"}, nil
	}
	if _, err := c.runCommand(ctx, "shell", "input", "tap", x, y); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Message: fmt.Sprintf("tapped %s,%s", x, y)}, nil
}

// ExecuteVerification supports adb-type checks: the search term is grepped
// from the current activity dump. Image and text verifications need the
// capture pipeline and report unsupported here.
func (c *ADBController) ExecuteVerification(ctx context.Context, v models.Verification) (Result, error) {
	vt, err := ParseVerificationType(v.VerificationType)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if vt != VerificationTypeADB {
		return Result{Success: false, Error: fmt.Sprintf("verification type %q not supported by adb controller", v.VerificationType)}, nil
	}

	term := stringParam(v.Params, "search_term")
	out, err := c.runCommand(ctx, "shell", "dumpsys", "window", "windows")
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if strings.Contains(out, term) {
		return Result{Success: true, Message: fmt.Sprintf("found %q in window dump", term)}, nil
	}
	return Result{Success: false, Error: fmt.Sprintf("%q not found in window dump", term)}, nil
}

// CaptureScreenshot saves a PNG under the capture dir and returns its path.
func (c *ADBController) CaptureScreenshot(ctx context.Context, name string) (string, error) {
	out, err := c.runCommand(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return "", fmt.Errorf("screencap: %w", err)
	}
	if err := os.MkdirAll(c.captureDir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	path := filepath.Join(c.captureDir, fmt.Sprintf("%s_%d.png", name, time.Now().UnixMilli()))
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

func stringParam(params map[string]any, name string) string {
	v, ok := params[name]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%v", int64(s))
	default:
		return fmt.Sprintf("%v", s)
	}
}
