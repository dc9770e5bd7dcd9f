package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

type transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Response, error)
}

type jobUpdater interface {
	Update(ctx context.Context, id string, fn func(*cache.Job)) error
}

type webhookEnqueuer interface {
	EnqueueWebhook(ctx context.Context, payload queue.WebhookDeliverPayload) error
}

// TranscriptionWorker runs queued jobs through the same pipeline as the
// synchronous endpoint and stores the outcome on the job.
type TranscriptionWorker struct {
	svc      transcriber
	jobs     jobUpdater
	webhooks webhookEnqueuer
	metrics  *metrics.Metrics
}

// NewTranscriptionWorker creates a worker. webhooks may be nil, in which
// case callback URLs are ignored.
func NewTranscriptionWorker(svc transcriber, jobs jobUpdater, webhooks webhookEnqueuer, m *metrics.Metrics) *TranscriptionWorker {
	return &TranscriptionWorker{svc: svc, jobs: jobs, webhooks: webhooks, metrics: m}
}

func (w *TranscriptionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TranscriptionRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	defer os.Remove(payload.SpoolPath)

	slog.Info("processing transcription job", "job_id", payload.JobID, "user_id", payload.Subject)

	if err := w.jobs.Update(ctx, payload.JobID, func(j *cache.Job) { j.Status = cache.JobProcessing }); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	resp, runErr := w.run(ctx, payload)

	// Record the outcome even if the task deadline has passed.
	storeCtx := context.WithoutCancel(ctx)
	status, event := cache.JobCompleted, webhook.EventTranscriptionCompleted
	if runErr != nil {
		status, event = cache.JobFailed, webhook.EventTranscriptionFailed
	}
	w.metrics.ObserveJobFinished(string(status))

	var final cache.Job
	err := w.jobs.Update(storeCtx, payload.JobID, func(j *cache.Job) {
		j.Status = status
		if runErr != nil {
			j.Error = runErr.Error()
		} else {
			j.Result = resp
		}
		final = *j
	})
	if err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}

	if payload.CallbackURL != "" {
		w.notify(storeCtx, payload.CallbackURL, event, &final)
	}

	// A failed transcription lives on the job; asynq has nothing to retry.
	return nil
}

func (w *TranscriptionWorker) run(ctx context.Context, p queue.TranscriptionRunPayload) (*transcribe.Response, error) {
	f, err := os.Open(p.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("open spooled upload: %w", err)
	}
	defer f.Close()

	format, err := stt.ParseFormat(p.Format)
	if err != nil {
		return nil, err
	}
	provider, err := stt.ParseVariant(p.Provider)
	if err != nil {
		return nil, err
	}

	return w.svc.Transcribe(ctx, transcribe.Request{
		File:        f,
		ContentType: p.ContentType,
		Filename:    p.Filename,
		Language:    p.Language,
		Format:      format,
		Provider:    provider,
		Subject:     p.Subject,
	})
}

// notify queues the callback; a lost callback never fails the job.
func (w *TranscriptionWorker) notify(ctx context.Context, url, event string, job *cache.Job) {
	if w.webhooks == nil {
		return
	}
	body, err := json.Marshal(job)
	if err != nil {
		slog.Error("failed to encode webhook body", "job_id", job.ID, "error", err)
		return
	}
	err = w.webhooks.EnqueueWebhook(ctx, queue.WebhookDeliverPayload{
		JobID: job.ID,
		URL:   url,
		Event: event,
		Body:  body,
	})
	if err != nil {
		slog.Error("failed to enqueue webhook", "job_id", job.ID, "error", err)
	}
}
