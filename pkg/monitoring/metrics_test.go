package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, mc *MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsCollector_Records(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Enabled: true}, zerolog.Nop())
	assert.True(t, mc.IsEnabled())

	mc.SessionCreated()
	mc.SessionCreated()
	mc.FileUploaded("T1", 100)
	mc.FileUploaded("FLAIR", 50)
	mc.UploadRejected("no_valid_files")
	mc.AnalysisCompleted()
	mc.RecordRequest(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	out := scrape(t, mc)
	assert.Contains(t, out, "btumor_intake_sessions_created_total 2")
	assert.Contains(t, out, `btumor_intake_files_uploaded_total{sequence_type="T1"} 1`)
	assert.Contains(t, out, `btumor_intake_files_uploaded_total{sequence_type="FLAIR"} 1`)
	assert.Contains(t, out, "btumor_intake_uploaded_bytes_total 150")
	assert.Contains(t, out, `btumor_intake_uploads_rejected_total{reason="no_valid_files"} 1`)
	assert.Contains(t, out, "btumor_intake_analyses_completed_total 1")
	assert.Contains(t, out, `btumor_intake_http_request_duration_seconds_count{method="GET",route="/health",status="200"} 1`)
}

func TestMetricsCollector_CustomNamespace(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Enabled: true, Namespace: "mri", Subsystem: "api"}, zerolog.Nop())
	mc.SessionCreated()

	assert.Contains(t, scrape(t, mc), "mri_api_sessions_created_total 1")
}

func TestMetricsCollector_Disabled(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Enabled: false}, zerolog.Nop())
	assert.False(t, mc.IsEnabled())

	assert.NotPanics(t, func() {
		mc.SessionCreated()
		mc.FileUploaded("T1", 1)
		mc.UploadRejected("too_large")
		mc.AnalysisCompleted()
		mc.RecordRequest(http.MethodPost, "/session/create", http.StatusOK, time.Millisecond)
	})
	assert.NotContains(t, scrape(t, mc), "btumor_intake")
}
