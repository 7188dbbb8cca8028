package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AdvanceIsMonotonic(t *testing.T) {
	s := NewSession(newSessionID(), time.Now())
	assert.Equal(t, StatusCreated, s.Status)

	s.Advance(StatusFilesUploaded)
	assert.Equal(t, StatusFilesUploaded, s.Status)

	s.Advance(StatusAnalysisCompleted)
	assert.Equal(t, StatusAnalysisCompleted, s.Status)

	s.Advance(StatusFilesUploaded)
	assert.Equal(t, StatusAnalysisCompleted, s.Status)

	s.Advance(StatusCreated)
	assert.Equal(t, StatusAnalysisCompleted, s.Status)
}

func TestSession_InitialDocumentEncoding(t *testing.T) {
	s := NewSession("0b6c7a5e-3f3c-4f0b-9c43-000000000000", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "created", doc["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["created_at"])
	assert.Equal(t, map[string]interface{}{}, doc["files"])
	assert.Equal(t, map[string]interface{}{
		"llm_analysis":     nil,
		"shapley_values":   nil,
		"feature_analysis": nil,
	}, doc["ai_analysis"])
	assert.NotContains(t, doc, "updated_at")
	assert.NotContains(t, doc, "seg_file_path")
}

func TestSession_GetSummary(t *testing.T) {
	s := NewSession(newSessionID(), time.Now())
	s.Files["T1"] = FileRecord{}
	s.Files["T2"] = FileRecord{}

	summary := s.GetSummary()
	assert.Equal(t, s.SessionID, summary.SessionID)
	assert.Equal(t, 2, summary.FileCount)
	assert.Equal(t, StatusCreated, summary.Status)
}

func TestSession_HasAnalysis(t *testing.T) {
	s := NewSession(newSessionID(), time.Now())
	assert.False(t, s.HasAnalysis())

	s.AIAnalysis.LLMAnalysis = &LLMAnalysis{Diagnosis: "x"}
	assert.True(t, s.HasAnalysis())
}
