package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/audio"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

// autoLanguage is echoed when the caller did not name a language. No
// detection happens; the provider call does not report one for text formats.
const autoLanguage = "auto"

const usageNote = "Whisper API does not provide detailed token usage information"

// Splitter cuts a media file into provider-sized chunks.
type Splitter interface {
	Split(ctx context.Context, path string, maxSizeMB float64) ([]audio.Chunk, error)
}

// ClientSelector picks the transcription backend for a request.
type ClientSelector interface {
	Select(preference stt.Variant) (stt.Client, error)
}

// UsageRecorder persists one row per finished request.
type UsageRecorder interface {
	RecordTranscription(ctx context.Context, rec UsageRecord) error
}

// UsageRecord describes a finished request for auditing.
type UsageRecord struct {
	Subject           string
	RequestedProvider stt.Variant
	Provider          stt.Variant // empty when no client was selected
	Format            stt.Format
	Language          string
	Filename          string
	FileSizeMB        float64
	Chunks            int
	Duration          time.Duration
	Status            string
	Error             string
}

// Request is one inbound upload with its transcription options.
type Request struct {
	File        io.Reader
	ContentType string
	Filename    string
	Language    string
	Format      stt.Format
	Provider    stt.Variant
	Subject     string
}

// Response is the transcription result returned to the caller.
type Response struct {
	Language              string         `json:"language"`
	Content               string         `json:"content"`
	Format                string         `json:"format"`
	FileSizeMB            float64        `json:"file_size_mb"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	ChunksProcessed       int            `json:"chunks_processed"`
	TokenUsage            map[string]any `json:"token_usage"`
}

// Service runs the upload → split → transcribe → combine pipeline.
type Service struct {
	splitter   Splitter
	selector   ClientSelector
	tempDir    string
	maxChunkMB float64
	usage      UsageRecorder
	metrics    *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithUsageRecorder records every finished request.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(s *Service) { s.usage = r }
}

// WithMetrics reports Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service that writes uploads under tempDir
// (os.TempDir when empty).
func NewService(splitter Splitter, selector ClientSelector, tempDir string, opts ...Option) *Service {
	s := &Service{
		splitter:   splitter,
		selector:   selector,
		tempDir:    tempDir,
		maxChunkMB: audio.DefaultMaxChunkMB,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe runs one request to completion. Invalid uploads yield a
// *ValidationError before anything touches the disk; every later failure is a
// *FailedError. Temporary files are removed on every path.
func (s *Service) Transcribe(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := ValidateContentType(req.ContentType); err != nil {
		slog.Info("rejected upload", "user_id", req.Subject, "content_type", req.ContentType)
		return nil, err
	}
	if req.Format == "" {
		req.Format = stt.FormatText
	}
	if req.Provider == "" {
		req.Provider = stt.Primary
	}

	ws := &workspace{}
	defer ws.release()

	run := &runState{req: req}
	resp, err := s.run(ctx, ws, run)
	elapsed := time.Since(start)

	status := "completed"
	if err != nil {
		status = "failed"
		slog.Error("transcription failed", "user_id", req.Subject, "error", err)
		err = &FailedError{Err: err}
	} else {
		resp.ProcessingTimeSeconds = math.Round(elapsed.Seconds()*100) / 100
		slog.Info("transcription completed",
			"user_id", req.Subject,
			"provider", run.provider,
			"chunks", resp.ChunksProcessed,
			"time", resp.ProcessingTimeSeconds,
		)
	}

	s.metrics.ObserveTranscription(string(run.provider), string(req.Format), status, elapsed)
	s.recordUsage(ctx, run, status, elapsed, err)

	return resp, err
}

// runState carries what the pipeline learned so far, for logging and auditing.
type runState struct {
	req      Request
	sizeMB   float64
	chunks   int
	provider stt.Variant
}

func (s *Service) run(ctx context.Context, ws *workspace, run *runState) (*Response, error) {
	req := run.req

	uploadPath, err := s.persist(req)
	if err != nil {
		return nil, err
	}
	ws.upload = uploadPath

	run.sizeMB, err = audio.SizeMB(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	s.metrics.ObserveUpload(run.sizeMB)
	slog.Info("processing file",
		"user_id", req.Subject,
		"filename", req.Filename,
		"size_mb", math.Round(run.sizeMB*10)/10,
		"provider", req.Provider,
		"format", req.Format,
	)

	chunks, err := s.splitter.Split(ctx, uploadPath, s.maxChunkMB)
	if err != nil {
		return nil, err
	}
	ws.chunks = chunks
	run.chunks = len(chunks)

	client, err := s.selector.Select(req.Provider)
	if err != nil {
		return nil, err
	}
	run.provider = client.Variant()
	if run.provider != req.Provider {
		s.metrics.ObserveFallback()
	}

	results := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		slog.Debug("transcribing chunk", "user_id", req.Subject, "chunk", i+1, "total", len(chunks))
		text, err := client.Transcribe(ctx, stt.ChunkRequest{
			FilePath: chunk.Path,
			Format:   req.Format,
			Language: req.Language,
		})
		s.metrics.ObserveChunk(string(run.provider), err)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		results = append(results, text)
	}

	language := req.Language
	if language == "" {
		language = autoLanguage
	}

	return &Response{
		Language:        language,
		Content:         Combine(results, req.Format),
		Format:          string(req.Format),
		FileSizeMB:      run.sizeMB,
		ChunksProcessed: len(chunks),
		TokenUsage: map[string]any{
			"provider":           string(run.provider),
			"requested_provider": string(req.Provider),
			"model":              stt.Model,
			"chunks_processed":   len(chunks),
			"user_id":            req.Subject,
			"note":               usageNote,
		},
	}, nil
}

// persist writes the upload to a new temp file keeping the original extension.
func (s *Service) persist(req Request) (string, error) {
	ext := filepath.Ext(req.Filename)
	if ext == "" {
		ext = ".tmp"
	}

	f, err := os.CreateTemp(s.tempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	if _, err := io.Copy(f, req.File); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

func (s *Service) recordUsage(ctx context.Context, run *runState, status string, elapsed time.Duration, err error) {
	if s.usage == nil {
		return
	}
	rec := UsageRecord{
		Subject:           run.req.Subject,
		RequestedProvider: run.req.Provider,
		Provider:          run.provider,
		Format:            run.req.Format,
		Language:          run.req.Language,
		Filename:          run.req.Filename,
		FileSizeMB:        run.sizeMB,
		Chunks:            run.chunks,
		Duration:          elapsed,
		Status:            status,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// The request's own context may already be cancelled.
	if rerr := s.usage.RecordTranscription(context.WithoutCancel(ctx), rec); rerr != nil {
		slog.Warn("failed to record usage", "error", rerr)
	}
}
