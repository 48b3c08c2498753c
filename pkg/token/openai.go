package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

// DefaultBaseURL is the default API base for minting sessions.
const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAI mints ephemeral session secrets directly from the realtime
// sessions API using a long-lived API key.
type OpenAI struct {
	apiKey  string
	model   string
	voice   string
	baseURL string
	client  *http.Client
}

// OpenAIOption configures an OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithModel sets the model the session is minted for.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		o.model = model
	}
}

// WithVoice sets the voice the session is minted with.
func WithVoice(voice string) OpenAIOption {
	return func(o *OpenAI) {
		o.voice = voice
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) {
		o.baseURL = url
	}
}

// WithClient sets a custom HTTP client.
func WithClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		o.client = client
	}
}

// NewOpenAI creates a minting provider. The apiKey is required.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		apiKey:  apiKey,
		model:   realtime.ModelGPT4oRealtimePreview20250603,
		voice:   realtime.VoiceVerse,
		baseURL: DefaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Credential mints a new session and returns its client secret.
func (o *OpenAI) Credential(ctx context.Context) (Credential, error) {
	if o.apiKey == "" {
		return Credential{}, fmt.Errorf("%w: API key is required", ErrUnavailable)
	}
	body, err := json.Marshal(map[string]string{
		"model": o.model,
		"voice": o.voice,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, decodeError(resp.StatusCode, data))
	}

	var sr sessionResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return Credential{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	c, err := sr.credential()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}
