package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

func imageVerification(id, imagePath string) models.Verification {
	return models.Verification{
		ID:               id,
		VerificationType: "image",
		Command:          "waitForImageToAppear",
		Params:           map[string]any{"image_path": imagePath},
	}
}

func verScope() Scope {
	s := testScope()
	s.NodeID = "node-live"
	return s
}

func TestExecuteVerifications_EmptyList(t *testing.T) {
	e := NewVerificationExecutor(newFakeController(), store.NewMemoryStore())

	result := e.ExecuteVerifications(context.Background(), nil, "", verScope())
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, "No verifications to execute", result.Message)
}

func TestExecuteVerifications_FlattensControllerResult(t *testing.T) {
	st := store.NewMemoryStore()
	e := NewVerificationExecutor(newFakeController(), st)

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{imageVerification("v1", "ref/live.png")}, "", verScope())

	require.True(t, result.Success)
	require.Len(t, result.Results, 1)
	r := result.Results[0]
	assert.Equal(t, models.ResultTypePass, r.ResultType)
	assert.Equal(t, 0.8, r.Threshold)
	assert.Equal(t, 0.93, r.Confidence)
	assert.Equal(t, "/captures/source.png", r.SourceImageURL)
	assert.Equal(t, "tesseract", r.Extras["ocr_engine"])

	require.Len(t, st.NodeExecutions, 1)
	assert.Equal(t, "node-live", st.NodeExecutions[0].NodeID)
	assert.Equal(t, "image", st.NodeExecutions[0].VerificationType)
	assert.True(t, st.NodeExecutions[0].Success)
}

func TestExecuteVerifications_FilterDropsInvalidSilently(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	e := NewVerificationExecutor(ctrl, st)

	unknownType := models.Verification{ID: "v1", VerificationType: "telepathy"}
	missingParam := models.Verification{ID: "v2", VerificationType: "text", Params: map[string]any{}}
	good := imageVerification("v3", "ref/live.png")

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{unknownType, missingParam, good}, "", verScope())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalCount)
	assert.Len(t, st.NodeExecutions, 1)
}

func TestExecuteVerifications_StrictFilterRejectsBatch(t *testing.T) {
	ctrl := newFakeController()
	e := NewVerificationExecutor(ctrl, store.NewMemoryStore())
	e.StrictFilter = true

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{
			{ID: "v1", VerificationType: "telepathy"},
			imageVerification("v2", "ref/live.png"),
		}, "", verScope())

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "invalid verification")
	assert.Empty(t, ctrl.calls)
}

func TestExecuteVerifications_PassConditionAll(t *testing.T) {
	ctrl := newFakeController()
	ctrl.alwaysFail["waitForTextToAppear"] = true
	e := NewVerificationExecutor(ctrl, store.NewMemoryStore())

	failing := models.Verification{
		ID:               "v2",
		VerificationType: "text",
		Command:          "waitForTextToAppear",
		Params:           map[string]any{"text": "Settings"},
	}

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{imageVerification("v1", "ref/live.png"), failing},
		models.PassConditionAll, verScope())

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.PassedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, "1/2 verifications passed", result.Message)
}

func TestExecuteVerifications_PassConditionAny(t *testing.T) {
	ctrl := newFakeController()
	ctrl.alwaysFail["waitForTextToAppear"] = true
	e := NewVerificationExecutor(ctrl, store.NewMemoryStore())

	failing := models.Verification{
		ID:               "v2",
		VerificationType: "text",
		Command:          "waitForTextToAppear",
		Params:           map[string]any{"text": "Settings"},
	}

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{failing, imageVerification("v1", "ref/live.png")},
		models.PassConditionAny, verScope())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.PassedCount)
}

func TestExecuteVerifications_TransportErrorRecordsFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.crashOn["waitForImageToAppear"] = true
	st := store.NewMemoryStore()
	e := NewVerificationExecutor(ctrl, st)

	result := e.ExecuteVerifications(context.Background(),
		[]models.Verification{imageVerification("v1", "ref/live.png")}, "", verScope())

	assert.False(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, models.ResultTypeFail, result.Results[0].ResultType)
	assert.Contains(t, result.Results[0].Error, "connection reset")

	// The failure is still recorded before being surfaced.
	require.Len(t, st.NodeExecutions, 1)
	assert.False(t, st.NodeExecutions[0].Success)
}
