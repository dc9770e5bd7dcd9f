package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"
)

// whisperClient talks to either Azure OpenAI or OpenAI. Both expose the same
// audio/transcriptions endpoint and differ only in URL layout and auth header.
type whisperClient struct {
	variant Variant
	client  *openai.Client
}

func newAzureClient(apiKey, endpoint, apiVersion, deployment string, httpClient *http.Client) *whisperClient {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	if deployment != "" {
		cfg.AzureModelMapperFunc = func(string) string { return deployment }
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &whisperClient{variant: Primary, client: openai.NewClientWithConfig(cfg)}
}

func newOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *whisperClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &whisperClient{variant: Direct, client: openai.NewClientWithConfig(cfg)}
}

func (c *whisperClient) Variant() Variant { return c.variant }

// Transcribe uploads one chunk file. Text, SRT and VTT bodies come back
// verbatim; JSON formats are re-encoded from the decoded response.
func (c *whisperClient) Transcribe(ctx context.Context, req ChunkRequest) (string, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filepath.Base(req.FilePath),
		Reader:   f,
		Format:   openai.AudioResponseFormat(req.Format),
		Language: req.Language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProvider, c.variant, err)
	}

	switch req.Format {
	case FormatJSON:
		return marshalResult(struct {
			Text string `json:"text"`
		}{resp.Text})
	case FormatVerboseJSON:
		return marshalResult(resp)
	default:
		return resp.Text, nil
	}
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode transcription result: %w", err)
	}
	return string(data), nil
}
