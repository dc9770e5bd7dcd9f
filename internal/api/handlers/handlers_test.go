package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

var testJWT = auth.NewJWTMiddleware("test-secret", time.Hour)

// withSubject authenticates every request as subject before calling h.
func withSubject(t *testing.T, subject string, h http.Handler) http.Handler {
	t.Helper()
	tok, err := testJWT.Issue(subject)
	if err != nil {
		t.Fatal(err)
	}
	authed := testJWT.Authenticate(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		authed.ServeHTTP(w, r)
	})
}

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file *filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

// Auth

func TestAuthToken(t *testing.T) {
	h := NewAuthHandler(auth.NewAPIKeyStore([]string{"good-key"}), testJWT)

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{"valid key", url.Values{"api_key": {"good-key"}}, http.StatusOK},
		{"unknown key", url.Values{"api_key": {"bad-key"}}, http.StatusUnauthorized},
		{"missing key", url.Values{}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			h.Token(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var tok auth.Token
			json.NewDecoder(rec.Body).Decode(&tok)
			claims, err := testJWT.Verify(tok.AccessToken)
			if err != nil {
				t.Fatalf("issued token does not verify: %v", err)
			}
			if claims.Subject != auth.SubjectForKey("good-key") || tok.TokenType != "bearer" {
				t.Errorf("claims = %+v token = %+v", claims, tok)
			}
		})
	}
}

// Transcribe

type stubTranscriber struct {
	got  transcribe.Request
	data []byte
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, req transcribe.Request) (*transcribe.Response, error) {
	s.got = req
	s.data, _ = io.ReadAll(req.File)
	if s.err != nil {
		return nil, s.err
	}
	return &transcribe.Response{
		Language:        "fi",
		Content:         "hei maailma",
		Format:          string(req.Format),
		FileSizeMB:      0.01,
		ChunksProcessed: 1,
		TokenUsage:      map[string]any{"provider": "azure"},
	}, nil
}

func TestTranscribeSuccess(t *testing.T) {
	svc := &stubTranscriber{}
	h := withSubject(t, "user-9", http.HandlerFunc(NewTranscribeHandler(svc, 10).Transcribe))

	req := multipartRequest(t, "/transcribe",
		map[string]string{"language": "fi", "response_format": "srt", "provider": "openai"},
		&filePart{name: "talk.mp3", contentType: "audio/mpeg", data: []byte("ID3")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := svc.got
	if got.Format != stt.FormatSRT || got.Provider != stt.Direct || got.Language != "fi" ||
		got.ContentType != "audio/mpeg" || got.Filename != "talk.mp3" || got.Subject != "user-9" {
		t.Errorf("request = %+v", got)
	}
	if string(svc.data) != "ID3" {
		t.Errorf("file data = %q", svc.data)
	}

	body := decodeBody(t, rec)
	for _, key := range []string{"language", "content", "format", "file_size_mb", "processing_time_seconds", "chunks_processed", "token_usage"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q: %v", key, body)
		}
	}
}

func TestTranscribeDefaults(t *testing.T) {
	svc := &stubTranscriber{}
	h := withSubject(t, "u", http.HandlerFunc(NewTranscribeHandler(svc, 10).Transcribe))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/transcribe", nil, &filePart{name: "a.wav", contentType: "audio/wav", data: []byte("x")}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if svc.got.Format != stt.FormatText || svc.got.Provider != stt.Primary || svc.got.Language != "" {
		t.Errorf("request = %+v", svc.got)
	}
}

func TestTranscribeErrors(t *testing.T) {
	wav := &filePart{name: "a.wav", contentType: "audio/wav", data: []byte("x")}

	tests := []struct {
		name       string
		fields     map[string]string
		file       *filePart
		svcErr     error
		wantStatus int
		wantError  string
	}{
		{
			name:       "bad format",
			fields:     map[string]string{"response_format": "docx"},
			file:       wav,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field 'response_format' failed on the 'oneof' tag",
		},
		{
			name:       "bad provider",
			fields:     map[string]string{"provider": "google"},
			file:       wav,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field 'provider' failed on the 'oneof' tag",
		},
		{
			name:       "missing file",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "file is required",
		},
		{
			name:       "not media",
			file:       &filePart{name: "a.png", contentType: "image/png", data: []byte("x")},
			svcErr:     &transcribe.ValidationError{Msg: "File must be an audio or video file"},
			wantStatus: http.StatusBadRequest,
			wantError:  "File must be an audio or video file",
		},
		{
			name:       "pipeline failure",
			file:       wav,
			svcErr:     &transcribe.FailedError{Err: fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", stt.ErrConfiguration)},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Transcription failed: provider not configured: OPENAI_API_KEY environment variable not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubTranscriber{err: tt.svcErr}
			h := withSubject(t, "u", http.HandlerFunc(NewTranscribeHandler(svc, 10).Transcribe))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, multipartRequest(t, "/transcribe", tt.fields, tt.file))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			msg, _ := decodeBody(t, rec)["error"].(string)
			if !strings.HasPrefix(msg, tt.wantError) {
				t.Errorf("error = %q, want prefix %q", msg, tt.wantError)
			}
		})
	}
}

func TestTranscribeRejectsOversizedUpload(t *testing.T) {
	svc := &stubTranscriber{}
	h := withSubject(t, "u", http.HandlerFunc(NewTranscribeHandler(svc, 1).Transcribe))

	big := &filePart{name: "a.wav", contentType: "audio/wav", data: make([]byte, 2<<20)}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/transcribe", nil, big))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if svc.data != nil {
		t.Error("service should not be called")
	}
}

// Jobs

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]cache.Job
}

func (m *memJobs) Save(_ context.Context, job *cache.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*cache.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, cache.ErrJobNotFound
	}
	return &j, nil
}

type stubQueue struct {
	payloads []queue.TranscriptionRunPayload
	err      error
}

func (q *stubQueue) EnqueueTranscription(_ context.Context, p queue.TranscriptionRunPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func newJobsRouter(t *testing.T, subject string, h *JobsHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/transcribe/jobs", h.Create)
	r.Get("/transcribe/jobs/{id}", h.Get)
	return withSubject(t, subject, r)
}

func TestJobsCreateAndGet(t *testing.T) {
	store := &memJobs{jobs: map[string]cache.Job{}}
	q := &stubQueue{}
	spool := t.TempDir()
	h := NewJobsHandler(store, q, spool, 10, nil)

	rec := httptest.NewRecorder()
	newJobsRouter(t, "owner", h).ServeHTTP(rec, multipartRequest(t, "/transcribe/jobs",
		map[string]string{"response_format": "vtt", "language": "en", "callback_url": "https://hooks.example.com/done"},
		&filePart{name: "talk.m4a", contentType: "audio/mp4", data: []byte("AAAA")}))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	if body["status"] != "queued" || id == "" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["subject"]; ok {
		t.Error("job response should not expose the subject")
	}

	if len(q.payloads) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(q.payloads))
	}
	p := q.payloads[0]
	if p.JobID != id || p.Format != "vtt" || p.Provider != "azure" || p.Language != "en" || p.Subject != "owner" ||
		p.CallbackURL != "https://hooks.example.com/done" {
		t.Errorf("payload = %+v", p)
	}
	data, err := os.ReadFile(p.SpoolPath)
	if err != nil || string(data) != "AAAA" {
		t.Errorf("spool file = %q, %v", data, err)
	}
	if !strings.HasSuffix(p.SpoolPath, id+".m4a") {
		t.Errorf("spool path = %q", p.SpoolPath)
	}

	rec = httptest.NewRecorder()
	newJobsRouter(t, "owner", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcribe/jobs/"+id, nil))
	if rec.Code != http.StatusOK || decodeBody(t, rec)["id"] != id {
		t.Errorf("owner GET status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newJobsRouter(t, "intruder", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcribe/jobs/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign GET status = %d, want 404", rec.Code)
	}
}

func TestJobsGetErrors(t *testing.T) {
	h := NewJobsHandler(&memJobs{jobs: map[string]cache.Job{}}, &stubQueue{}, t.TempDir(), 10, nil)

	for path, want := range map[string]int{
		"/transcribe/jobs/not-a-uuid":                           http.StatusBadRequest,
		"/transcribe/jobs/0b6f1c1e-3f4c-4a36-9a55-2c1f0a0e9d11": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		newJobsRouter(t, "u", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestJobsCreateRejectsNonMedia(t *testing.T) {
	store := &memJobs{jobs: map[string]cache.Job{}}
	spool := t.TempDir()
	h := NewJobsHandler(store, &stubQueue{}, spool, 10, nil)

	rec := httptest.NewRecorder()
	newJobsRouter(t, "u", h).ServeHTTP(rec, multipartRequest(t, "/transcribe/jobs", nil,
		&filePart{name: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF")}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	entries, _ := os.ReadDir(spool)
	if len(entries) != 0 || len(store.jobs) != 0 {
		t.Errorf("rejected upload left state: files=%d jobs=%d", len(entries), len(store.jobs))
	}
}

func TestJobsCreateRejectsBadCallback(t *testing.T) {
	store := &memJobs{jobs: map[string]cache.Job{}}
	h := NewJobsHandler(store, &stubQueue{}, t.TempDir(), 10, nil)

	for _, cb := range []string{"not a url", "ftp://files.example.com/x"} {
		rec := httptest.NewRecorder()
		newJobsRouter(t, "u", h).ServeHTTP(rec, multipartRequest(t, "/transcribe/jobs",
			map[string]string{"callback_url": cb},
			&filePart{name: "a.wav", contentType: "audio/wav", data: []byte("RIFF")}))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("callback %q: status = %d, want 422", cb, rec.Code)
		}
	}
	if len(store.jobs) != 0 {
		t.Errorf("jobs = %d, want none", len(store.jobs))
	}
}

func TestJobsCreateEnqueueFailure(t *testing.T) {
	store := &memJobs{jobs: map[string]cache.Job{}}
	spool := t.TempDir()
	h := NewJobsHandler(store, &stubQueue{err: errors.New("redis down")}, spool, 10, nil)

	rec := httptest.NewRecorder()
	newJobsRouter(t, "u", h).ServeHTTP(rec, multipartRequest(t, "/transcribe/jobs", nil,
		&filePart{name: "a.wav", contentType: "audio/wav", data: []byte("RIFF")}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	entries, _ := os.ReadDir(spool)
	if len(entries) != 0 {
		t.Errorf("spool file left behind: %d", len(entries))
	}
	for _, j := range store.jobs {
		if j.Status != cache.JobFailed {
			t.Errorf("job status = %s, want failed", j.Status)
		}
	}
}

// Health

type stubSelector struct{ err error }

func (s stubSelector) Select(stt.Variant) (stt.Client, error) { return nil, s.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"configured", nil, "healthy"},
		{"missing keys", fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", stt.ErrConfiguration), "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("1.0.0", stubSelector{err: tt.err}, nil)
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["status"] != tt.wantStatus || body["openai_configured"] != (tt.err == nil) || body["version"] != "1.0.0" {
				t.Errorf("body = %v", body)
			}
			if _, hasErr := body["error"]; hasErr != (tt.err != nil) {
				t.Errorf("error field present = %v", hasErr)
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := NewHealthHandler("1.0.0", stubSelector{}, map[string]Pinger{"redis": ok, "database": nil})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if checks := decodeBody(t, rec)["checks"].(map[string]any); len(checks) != 1 {
		t.Errorf("nil pinger should be skipped: %v", checks)
	}

	h = NewHealthHandler("1.0.0", stubSelector{}, map[string]Pinger{"redis": ok, "database": down})
	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// Usage

type stubUsage struct {
	subject    string
	start, end time.Time
}

func (s *stubUsage) GetUsageSummary(_ context.Context, subject string, start, end time.Time) ([]audit.UsageSummary, error) {
	s.subject, s.start, s.end = subject, start, end
	return []audit.UsageSummary{{Provider: "azure", Status: "completed", Requests: 2}}, nil
}

func TestUsage(t *testing.T) {
	u := &stubUsage{}
	h := withSubject(t, "user-3", http.HandlerFunc(NewUsageHandler(u).Usage))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/usage?start_date=2026-01-01T00:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if u.subject != "user-3" || u.start.Year() != 2026 || !u.end.IsZero() {
		t.Errorf("query = %+v", u)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/usage?end_date=yesterday", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date status = %d, want 422", rec.Code)
	}
}
