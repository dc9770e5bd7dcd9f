package stt

import (
	"context"
	"errors"
	"fmt"
)

// Model is the only transcription model this service requests.
const Model = "whisper-1"

var (
	// ErrConfiguration means the selected provider is missing credentials.
	ErrConfiguration = errors.New("provider not configured")
	// ErrProvider wraps any failure returned by a transcription backend.
	ErrProvider = errors.New("provider request failed")
)

// Variant identifies one of the two supported transcription backends.
type Variant string

const (
	// Primary is the cloud-hosted Azure OpenAI deployment.
	Primary Variant = "azure"
	// Direct is the OpenAI API itself.
	Direct Variant = "openai"
)

// ParseVariant maps a request value to a Variant. Empty means Primary.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", Primary:
		return Primary, nil
	case Direct:
		return Direct, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Format is the response format requested from the backend.
type Format string

const (
	FormatText        Format = "text"
	FormatSRT         Format = "srt"
	FormatVTT         Format = "vtt"
	FormatJSON        Format = "json"
	FormatVerboseJSON Format = "verbose_json"
)

// ParseFormat maps a request value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatText, nil
	case FormatText, FormatSRT, FormatVTT, FormatJSON, FormatVerboseJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown response format %q", s)
}

// ChunkRequest is one call to the backend for one audio chunk.
type ChunkRequest struct {
	FilePath string
	Format   Format
	Language string // empty lets the backend detect the language
}

// Client transcribes a single chunk and returns the backend's raw result.
type Client interface {
	Transcribe(ctx context.Context, req ChunkRequest) (string, error)
	Variant() Variant
}
