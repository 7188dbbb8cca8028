package transport

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/Azure/btumor-intake/pkg/analysis"
	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/Azure/btumor-intake/pkg/intake"
	"github.com/go-chi/chi/v5"
)

func statusFor(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// sendServiceError maps a service error onto the JSON envelope
func (t *HTTPTransport) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(errors.CategoryOf(err))
	if status >= http.StatusInternalServerError {
		t.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	body := map[string]interface{}{
		"success": false,
		"error":   errors.MessageOf(err),
	}
	if errors.ContextOf(err)["seg_file_exists"] == "false" {
		body["seg_file_exists"] = false
	}
	t.sendJSON(w, status, body)
}

func (t *HTTPTransport) handleNotFound(w http.ResponseWriter, r *http.Request) {
	t.sendError(w, http.StatusNotFound, "Resource not found")
}

func (t *HTTPTransport) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	t.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   t.serviceName,
		"version":   t.serviceVersion,
	})
}

func (t *HTTPTransport) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := t.service.Create(r.Context())
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": sess.SessionID,
		"message":    "Session created",
	})
}

func (t *HTTPTransport) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := t.service.MaxUploadBytes()

	if r.ContentLength > limit {
		if t.metrics != nil {
			t.metrics.UploadRejected(intake.RejectTooLarge)
		}
		t.sendServiceError(w, r, intake.TooLarge(limit))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	reader, err := r.MultipartReader()
	if err != nil {
		// An unknown session outranks a bad body
		if _, lerr := t.service.Get(r.Context(), sessionID); lerr != nil {
			t.sendServiceError(w, r, lerr)
			return
		}
		if t.metrics != nil {
			t.metrics.UploadRejected(intake.RejectMalformed)
		}
		t.sendError(w, http.StatusBadRequest, "Request must be multipart/form-data")
		return
	}

	uploaded, err := t.service.Upload(r.Context(), sessionID, reader)
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"session_id":     sessionID,
		"uploaded_files": uploaded,
		"message":        fmt.Sprintf("%d files uploaded", len(uploaded)),
	})
}

func (t *HTTPTransport) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := t.service.Analyze(r.Context(), sessionID)
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"session_id":       sessionID,
		"ai_analysis":      sess.AIAnalysis,
		"seg_file_created": true,
		"message":          "AI analysis completed",
	})
}

func (t *HTTPTransport) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	res, err := t.service.Results(r.Context(), sessionID)
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"session_id":      sessionID,
		"ai_analysis":     res.Session.AIAnalysis,
		"seg_file_exists": true,
		"seg_file_path":   res.ArtifactPath,
		"status":          res.Session.Status,
	})
}

func (t *HTTPTransport) handleSegFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	f, info, err := t.service.Artifact(r.Context(), sessionID)
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": analysis.ArtifactFilename,
	}))
	http.ServeContent(w, r, analysis.ArtifactFilename, info.ModTime(), f)
}

func (t *HTTPTransport) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := t.service.List(r.Context())
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"sessions":    summaries,
		"total_count": len(summaries),
	})
}

func (t *HTTPTransport) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := t.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": sess,
	})
}

func (t *HTTPTransport) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := t.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		t.sendServiceError(w, r, err)
		return
	}

	t.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": sess.SessionID,
		"files":      sess.Files,
		"file_count": len(sess.Files),
		"status":     sess.Status,
	})
}
