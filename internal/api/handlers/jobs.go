package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

type jobStore interface {
	Save(ctx context.Context, job *cache.Job) error
	Get(ctx context.Context, id string) (*cache.Job, error)
}

type jobEnqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscriptionRunPayload) error
}

type JobsHandler struct {
	jobs     jobStore
	queue    jobEnqueuer
	spoolDir string
	maxBytes int64
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func NewJobsHandler(jobs jobStore, q jobEnqueuer, spoolDir string, maxUploadMB int, m *metrics.Metrics) *JobsHandler {
	return &JobsHandler{
		jobs:     jobs,
		queue:    q,
		spoolDir: spoolDir,
		maxBytes: int64(maxUploadMB) << 20,
		validate: newValidator(),
		metrics:  m,
	}
}

// Create spools the upload where the worker can read it and queues a job.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)

	up, err := parseUpload(w, r, h.validate, h.maxBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer up.Close()

	callbackURL := strings.TrimSpace(r.FormValue("callback_url"))
	if err := h.validate.Var(callbackURL, "omitempty,http_url"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "callback_url must be an http or https URL")
		return
	}

	if err := transcribe.ValidateContentType(up.contentType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subject := auth.SubjectFromContext(r.Context())
	id := uuid.NewString()

	spoolPath, err := h.spool(id, up)
	if err != nil {
		slog.Error("failed to spool upload", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job := &cache.Job{
		ID:          id,
		Status:      cache.JobQueued,
		Subject:     subject,
		Filename:    up.filename,
		CallbackURL: callbackURL,
	}
	if err := h.jobs.Save(r.Context(), job); err != nil {
		os.Remove(spoolPath)
		slog.Error("failed to save job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	err = h.queue.EnqueueTranscription(r.Context(), queue.TranscriptionRunPayload{
		JobID:       id,
		SpoolPath:   spoolPath,
		Filename:    up.filename,
		ContentType: up.contentType,
		Language:    up.language,
		Format:      string(up.format),
		Provider:    string(up.provider),
		Subject:     subject,
		CallbackURL: callbackURL,
	})
	if err != nil {
		os.Remove(spoolPath)
		job.Status = cache.JobFailed
		job.Error = "failed to enqueue job"
		if serr := h.jobs.Save(context.WithoutCancel(r.Context()), job); serr != nil {
			slog.Warn("failed to mark job failed", "job_id", id, "error", serr)
		}
		slog.Error("failed to enqueue job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	h.metrics.ObserveJobEnqueued()
	slog.Info("transcription job queued", "job_id", id, "user_id", subject, "format", up.format)
	writeJSON(w, http.StatusAccepted, job)
}

// Get returns a job to its owner. Jobs of other subjects look missing.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, cache.ErrJobNotFound) || (err == nil && job.Subject != auth.SubjectFromContext(r.Context())) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) spool(id string, up *upload) (string, error) {
	if err := os.MkdirAll(h.spoolDir, 0o755); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}
	ext := filepath.Ext(up.filename)
	if ext == "" {
		ext = ".tmp"
	}
	path := filepath.Join(h.spoolDir, id+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, up.file); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return path, nil
}
