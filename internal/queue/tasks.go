package queue

import "encoding/json"

const (
	TypeTranscriptionRun = "transcription:run"
	TypeWebhookDeliver   = "webhook:deliver"
)

// TranscriptionRunPayload points the worker at a spooled upload. The spool
// directory must be shared between the API and worker processes.
type TranscriptionRunPayload struct {
	JobID       string `json:"job_id"`
	SpoolPath   string `json:"spool_path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Language    string `json:"language,omitempty"`
	Format      string `json:"format"`
	Provider    string `json:"provider"`
	Subject     string `json:"subject"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// WebhookDeliverPayload is one job event bound for a callback URL.
type WebhookDeliverPayload struct {
	JobID string          `json:"job_id"`
	URL   string          `json:"url"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}
