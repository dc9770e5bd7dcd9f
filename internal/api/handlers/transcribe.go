package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

type transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Response, error)
}

type TranscribeHandler struct {
	svc      transcriber
	maxBytes int64
	validate *validator.Validate
}

func NewTranscribeHandler(svc transcriber, maxUploadMB int) *TranscribeHandler {
	return &TranscribeHandler{
		svc:      svc,
		maxBytes: int64(maxUploadMB) << 20,
		validate: newValidator(),
	}
}

// Transcribe runs an upload through the pipeline and answers with the
// combined transcript.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)

	up, err := parseUpload(w, r, h.validate, h.maxBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer up.Close()

	resp, err := h.svc.Transcribe(r.Context(), transcribe.Request{
		File:        up.file,
		ContentType: up.contentType,
		Filename:    up.filename,
		Language:    up.language,
		Format:      up.format,
		Provider:    up.provider,
		Subject:     auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		writeTranscribeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeTranscribeError(w http.ResponseWriter, err error) {
	var verr *transcribe.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Msg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
