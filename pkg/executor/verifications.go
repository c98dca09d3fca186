package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

// VerificationExecutor runs verification batches against a device controller
// and records every outcome as a node execution.
type VerificationExecutor struct {
	ctrl  controller.Controller
	store store.Store

	// StrictFilter rejects the whole batch when any verification is
	// invalid, instead of silently dropping it. Off by default.
	StrictFilter bool
}

// NewVerificationExecutor creates a verification executor.
func NewVerificationExecutor(ctrl controller.Controller, st store.Store) *VerificationExecutor {
	return &VerificationExecutor{ctrl: ctrl, store: st}
}

// ExecuteVerifications runs the batch in declared order. passCondition is
// "all" (default) or "any". Invalid items (unknown type or missing required
// params) are dropped, or fail the batch in strict mode.
func (e *VerificationExecutor) ExecuteVerifications(ctx context.Context, verifications []models.Verification, passCondition string, scope Scope) *models.VerificationBatchResult {
	if passCondition == "" {
		passCondition = models.PassConditionAll
	}

	valid, dropped := e.filterVerifications(ctx, verifications)
	if e.StrictFilter && len(dropped) > 0 {
		return &models.VerificationBatchResult{
			Success: false,
			Message: fmt.Sprintf("%d invalid verification(s) rejected: %s", len(dropped), dropped[0]),
		}
	}

	result := &models.VerificationBatchResult{TotalCount: len(valid)}
	if len(valid) == 0 {
		result.Success = true
		result.Message = "No verifications to execute"
		return result
	}

	for _, v := range valid {
		r := e.executeOne(ctx, v, scope)
		if r.Success {
			result.PassedCount++
		} else {
			result.FailedCount++
		}
		result.Results = append(result.Results, r)
	}

	switch passCondition {
	case models.PassConditionAny:
		result.Success = result.PassedCount > 0
	default:
		result.Success = result.FailedCount == 0
	}
	result.Message = fmt.Sprintf("%d/%d verifications passed", result.PassedCount, result.TotalCount)
	return result
}

func (e *VerificationExecutor) executeOne(ctx context.Context, v models.Verification, scope Scope) models.VerificationResult {
	start := time.Now()
	res, err := e.ctrl.ExecuteVerification(ctx, v)
	elapsed := time.Since(start).Milliseconds()

	var r models.VerificationResult
	if err != nil {
		r = models.VerificationResult{
			VerificationID:   v.ID,
			VerificationType: v.VerificationType,
			Command:          v.Command,
			Success:          false,
			Error:            err.Error(),
			ResultType:       models.ResultTypeFail,
			ExecutionTimeMs:  elapsed,
		}
	} else {
		r = flattenResult(v, res, elapsed)
	}

	e.recordNodeExecution(ctx, r, scope)
	return r
}

func (e *VerificationExecutor) recordNodeExecution(ctx context.Context, r models.VerificationResult, scope Scope) {
	rec := store.NodeExecutionRecord{
		TeamID:           scope.TeamID,
		TreeID:           scope.TreeID,
		NodeID:           scope.NodeID,
		HostName:         scope.HostName,
		DeviceModel:      scope.DeviceModel,
		VerificationType: r.VerificationType,
		Success:          r.Success,
		ExecutionTimeMs:  r.ExecutionTimeMs,
		Message:          r.Message,
		ErrorDetails:     r.Error,
		ScriptResultID:   scope.ScriptResultID,
		ScriptContext:    scope.ScriptContext,
		ExecutedAt:       time.Now(),
	}
	if err := e.store.RecordNodeExecution(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "Failed to record node execution",
			"node_id", scope.NodeID, "verification_type", r.VerificationType, "error", err)
	}
}

// filterVerifications applies the per-type minimal-parameters contract.
// Returns the valid list plus human-readable reasons for every drop. Drop
// diagnostics log with the execution context so they land in the envelope's
// captured logs.
func (e *VerificationExecutor) filterVerifications(ctx context.Context, verifications []models.Verification) ([]models.Verification, []string) {
	var valid []models.Verification
	var dropped []string
	for _, v := range verifications {
		vt, err := controller.ParseVerificationType(v.VerificationType)
		if err != nil {
			reason := fmt.Sprintf("verification %s: %v", v.ID, err)
			dropped = append(dropped, reason)
			slog.WarnContext(ctx, "Dropping invalid verification", "verification_id", v.ID, "reason", err)
			continue
		}
		if missing := vt.MissingParams(v.Params); len(missing) > 0 {
			reason := fmt.Sprintf("verification %s: missing params %v", v.ID, missing)
			dropped = append(dropped, reason)
			slog.WarnContext(ctx, "Dropping verification with missing params",
				"verification_id", v.ID, "type", v.VerificationType, "missing", missing)
			continue
		}
		valid = append(valid, v)
	}
	return valid, dropped
}

// flattenResult maps a controller result into the canonical flattened shape.
// Well-known keys are lifted onto typed fields; the rest stay in Extras.
func flattenResult(v models.Verification, res controller.Result, elapsed int64) models.VerificationResult {
	r := models.VerificationResult{
		VerificationID:   v.ID,
		VerificationType: v.VerificationType,
		Command:          v.Command,
		Success:          res.Success,
		Message:          res.Message,
		Error:            res.Error,
		ResultType:       models.ResultTypeFail,
		ExecutionTimeMs:  elapsed,
	}
	if res.Success {
		r.ResultType = models.ResultTypePass
	}

	extras := make(map[string]any)
	for k, val := range res.Extra {
		switch k {
		case "threshold":
			r.Threshold = asFloat(val)
		case "confidence":
			r.Confidence = asFloat(val)
		case "sourceImageUrl":
			r.SourceImageURL = asString(val)
		case "referenceImageUrl":
			r.ReferenceImageURL = asString(val)
		case "resultOverlayUrl":
			r.ResultOverlayURL = asString(val)
		case "extractedText":
			r.ExtractedText = asString(val)
		case "detectedLanguage":
			r.DetectedLanguage = asString(val)
		default:
			extras[k] = val
		}
	}
	if len(extras) > 0 {
		r.Extras = extras
	}
	return r
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
