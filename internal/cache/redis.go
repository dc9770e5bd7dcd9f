package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

const keyPrefix = "whisperapi:job:"

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is the stored state of one asynchronous transcription.
type Job struct {
	ID          string               `json:"id"`
	Status      JobStatus            `json:"status"`
	Subject     string               `json:"-"`
	Filename    string               `json:"filename,omitempty"`
	CallbackURL string               `json:"callback_url,omitempty"`
	Result      *transcribe.Response `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// storedJob keeps Subject in Redis while the API response hides it.
type storedJob struct {
	Job
	Subject string `json:"subject"`
}

// JobStore keeps job state in Redis with a fixed TTL.
type JobStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJobStore(client *redis.Client, ttl time.Duration) *JobStore {
	return &JobStore{client: client, ttl: ttl}
}

func (s *JobStore) Save(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	data, err := json.Marshal(storedJob{Job: *job, Subject: job.Subject})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+job.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	val, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", id, err)
	}

	var sj storedJob
	if err := json.Unmarshal([]byte(val), &sj); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	job := sj.Job
	job.Subject = sj.Subject
	return &job, nil
}

// Update loads a job, applies fn and saves it again.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*Job)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(job)
	return s.Save(ctx, job)
}

func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
