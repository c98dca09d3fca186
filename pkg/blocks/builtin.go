package blocks

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func builtinBlocks() []Block {
	return []Block{
		sleepBlock{},
		evaluateConditionBlock{},
		getMenuInfoBlock{},
		pressKeySequenceBlock{},
	}
}

type sleepBlock struct{}

func (sleepBlock) Info() Info {
	return Info{
		Command:     "sleep",
		Description: "Pause execution for a number of seconds",
		Params: []ParamDescriptor{
			{Name: "duration_seconds", Type: "float", Required: false, Default: 1.0},
		},
	}
}

func (sleepBlock) Execute(ctx context.Context, _ Runtime, params map[string]any) (map[string]any, error) {
	seconds, err := toFloat(params["duration_seconds"])
	if err != nil {
		return nil, fmt.Errorf("duration_seconds: %w", err)
	}
	if seconds < 0 {
		return nil, fmt.Errorf("duration_seconds must be non-negative, got %v", seconds)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"slept_seconds": seconds}, nil
}

type evaluateConditionBlock struct{}

func (evaluateConditionBlock) Info() Info {
	return Info{
		Command:     "evaluate_condition",
		Description: "Compare two values and report whether the condition holds",
		Params: []ParamDescriptor{
			{Name: "left", Type: "str", Required: true},
			{Name: "operator", Type: "str", Required: false, Default: "=="},
			{Name: "right", Type: "str", Required: true},
		},
	}
}

func (evaluateConditionBlock) Execute(_ context.Context, _ Runtime, params map[string]any) (map[string]any, error) {
	left := fmt.Sprintf("%v", params["left"])
	right := fmt.Sprintf("%v", params["right"])
	op, _ := params["operator"].(string)

	var met bool
	switch op {
	case "==":
		met = left == right
	case "!=":
		met = left != right
	case "contains":
		met = strings.Contains(left, right)
	case "<", ">":
		lf, lerr := toFloat(params["left"])
		rf, rerr := toFloat(params["right"])
		if lerr != nil || rerr != nil {
			return nil, fmt.Errorf("operator %q requires numeric operands", op)
		}
		if op == "<" {
			met = lf < rf
		} else {
			met = lf > rf
		}
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}

	return map[string]any{"condition_met": met, "operator": op}, nil
}

type getMenuInfoBlock struct{}

func (getMenuInfoBlock) Info() Info {
	return Info{
		Command:     "get_menu_info",
		Description: "Capture the current screen and report execution position",
	}
}

func (getMenuInfoBlock) Execute(ctx context.Context, rt Runtime, _ map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if rt.ExecCtx != nil {
		out["tree_id"] = rt.ExecCtx.TreeID
		out["userinterface_name"] = rt.ExecCtx.UserinterfaceName
	}
	if rt.Controller == nil {
		return out, fmt.Errorf("no controller available for device capture")
	}

	path, err := rt.Controller.CaptureScreenshot(ctx, "menu_info")
	if err != nil {
		return out, fmt.Errorf("capture screenshot: %w", err)
	}
	out["screenshot_path"] = path
	if rt.ExecCtx != nil {
		rt.ExecCtx.RecordScreenshot(path)
	}
	return out, nil
}

type pressKeySequenceBlock struct{}

func (pressKeySequenceBlock) Info() Info {
	return Info{
		Command:     "press_key_sequence",
		Description: "Press a sequence of remote keys with a fixed interval",
		Params: []ParamDescriptor{
			{Name: "keys", Type: "list", Required: true},
			{Name: "interval_ms", Type: "int", Required: false, Default: 500},
		},
	}
}

func (pressKeySequenceBlock) Execute(ctx context.Context, rt Runtime, params map[string]any) (map[string]any, error) {
	if rt.Controller == nil {
		return nil, fmt.Errorf("no controller available for key presses")
	}

	keys, err := toStringSlice(params["keys"])
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	interval, err := toFloat(params["interval_ms"])
	if err != nil {
		return nil, fmt.Errorf("interval_ms: %w", err)
	}

	pressed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return map[string]any{"keys_pressed": pressed}, ctx.Err()
		}
		result, err := rt.Controller.ExecuteCommand(ctx, "press_key", map[string]any{
			"key":       key,
			"wait_time": interval,
		})
		if err != nil {
			return map[string]any{"keys_pressed": pressed}, fmt.Errorf("press %q: %w", key, err)
		}
		if !result.Success {
			return map[string]any{"keys_pressed": pressed}, fmt.Errorf("press %q failed: %s", key, result.Error)
		}
		pressed++
	}
	return map[string]any{"keys_pressed": pressed}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toStringSlice(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}
