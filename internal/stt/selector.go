package stt

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

// Credentials is the set of provider settings consulted by a Selector.
type Credentials struct {
	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
}

// CredentialSource returns the current credentials. It is called once per
// Select so that changed configuration is seen by the next request.
type CredentialSource func() Credentials

// StaticCredentials returns a source that always yields c.
func StaticCredentials(c Credentials) CredentialSource {
	return func() Credentials { return c }
}

// EnvCredentials reads the provider settings from the environment on every
// call, so rotated keys apply without a restart.
func EnvCredentials() Credentials {
	p := config.LoadProvider()
	return Credentials{
		AzureAPIKey:     p.AzureAPIKey,
		AzureEndpoint:   p.AzureEndpoint,
		AzureAPIVersion: p.AzureAPIVersion,
		AzureDeployment: p.AzureDeployment,
		OpenAIAPIKey:    p.OpenAIAPIKey,
		OpenAIBaseURL:   p.OpenAIBaseURL,
	}
}

// Selector builds a transcription client for a requested provider.
type Selector struct {
	source     CredentialSource
	httpClient *http.Client
}

// NewSelector creates a Selector. httpClient may be nil to use the SDK default.
func NewSelector(source CredentialSource, httpClient *http.Client) *Selector {
	return &Selector{source: source, httpClient: httpClient}
}

// Select returns a client for preference. A Primary preference falls back to
// Direct when the Azure credentials are incomplete or unusable; Direct never
// falls back. ErrConfiguration is returned when the provider that would serve
// the request has no key.
func (s *Selector) Select(preference Variant) (Client, error) {
	creds := s.source()

	if preference == Primary {
		c, err := s.azure(creds)
		if err == nil {
			return c, nil
		}
		slog.Warn("azure client unavailable, falling back to openai", "error", err)
	}

	return s.openAI(creds)
}

func (s *Selector) azure(creds Credentials) (Client, error) {
	if creds.AzureAPIKey == "" || creds.AzureEndpoint == "" {
		return nil, fmt.Errorf("%w: AZURE_API_KEY and AZURE_API_BASE must be set", ErrConfiguration)
	}
	u, err := url.Parse(creds.AzureEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid AZURE_API_BASE", ErrConfiguration)
	}
	return newAzureClient(creds.AzureAPIKey, creds.AzureEndpoint, creds.AzureAPIVersion, creds.AzureDeployment, s.httpClient), nil
}

func (s *Selector) openAI(creds Credentials) (Client, error) {
	if creds.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrConfiguration)
	}
	return newOpenAIClient(creds.OpenAIAPIKey, creds.OpenAIBaseURL, s.httpClient), nil
}
