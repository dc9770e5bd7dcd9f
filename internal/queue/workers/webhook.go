package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

type deliverer interface {
	Deliver(ctx context.Context, req webhook.DeliveryRequest) error
}

// WebhookWorker delivers job callbacks. Returning an error hands the task
// back to asynq for a retry.
type WebhookWorker struct {
	dispatcher deliverer
}

func NewWebhookWorker(d deliverer) *WebhookWorker {
	return &WebhookWorker{dispatcher: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	return w.dispatcher.Deliver(ctx, webhook.DeliveryRequest{
		JobID:   payload.JobID,
		URL:     payload.URL,
		Event:   payload.Event,
		Payload: payload.Body,
	})
}
