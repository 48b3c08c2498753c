package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

// HTTP fetches credentials from a token-minting endpoint with a bodyless
// POST. The endpoint answers with the session-minting JSON, whose nested
// client_secret.value is the credential.
type HTTP struct {
	url    string
	client *http.Client
}

// HTTPOption configures an HTTP provider.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// NewHTTP creates a provider for the endpoint at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{url: url, client: http.DefaultClient}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Credential requests a new credential.
func (h *HTTP) Credential(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, decodeError(resp.StatusCode, body))
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Credential{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	c, err := sr.credential()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

// decodeError turns an error response into a realtime.Error. The body is
// either {"error": "text"} from a token proxy or {"error": {...}} from the
// upstream API.
func decodeError(status int, body []byte) error {
	apiErr := &realtime.Error{HTTPStatus: status, Message: http.StatusText(status)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		if len(body) > 0 {
			apiErr.Message = string(body)
		}
		return apiErr
	}
	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		apiErr.Message = text
		return apiErr
	}
	var obj realtime.EventError
	if err := json.Unmarshal(envelope.Error, &obj); err == nil {
		apiErr = obj.ToError()
		apiErr.HTTPStatus = status
	}
	return apiErr
}
