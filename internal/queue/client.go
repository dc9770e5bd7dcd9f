package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

const webhookMaxRetry = 5

type Client struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewClient(cfg config.RedisConfig, timeout time.Duration) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		timeout: timeout,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTranscription schedules one job. Provider calls are never retried,
// and the spool file is gone after the first attempt, so MaxRetry is zero.
func (c *Client) EnqueueTranscription(ctx context.Context, payload TranscriptionRunPayload) error {
	return c.enqueue(ctx, TypeTranscriptionRun, payload,
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
	)
}

// EnqueueWebhook schedules a callback delivery. Unlike transcriptions these
// are retried with asynq's backoff.
func (c *Client) EnqueueWebhook(ctx context.Context, payload WebhookDeliverPayload) error {
	return c.enqueue(ctx, TypeWebhookDeliver, payload,
		asynq.MaxRetry(webhookMaxRetry),
		asynq.Timeout(30*time.Second),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
