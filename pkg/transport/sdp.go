package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/token"
)

// DefaultRealtimeURL is the endpoint accepting session descriptions.
const DefaultRealtimeURL = "https://api.openai.com/v1/realtime"

// SDPExchanger performs the one-shot connection-setup exchange: the local
// session description goes up, the remote description comes back.
type SDPExchanger struct {
	baseURL string
	model   string
	client  *http.Client
}

// SDPOption configures an SDPExchanger.
type SDPOption func(*SDPExchanger)

// WithRealtimeURL sets the endpoint URL.
func WithRealtimeURL(u string) SDPOption {
	return func(x *SDPExchanger) {
		x.baseURL = u
	}
}

// WithSDPModel sets the model query parameter.
func WithSDPModel(model string) SDPOption {
	return func(x *SDPExchanger) {
		x.model = model
	}
}

// WithSDPClient sets a custom HTTP client.
func WithSDPClient(client *http.Client) SDPOption {
	return func(x *SDPExchanger) {
		x.client = client
	}
}

// NewSDPExchanger creates an exchanger for the default endpoint and model.
func NewSDPExchanger(opts ...SDPOption) *SDPExchanger {
	x := &SDPExchanger{
		baseURL: DefaultRealtimeURL,
		model:   realtime.ModelGPT4oRealtimePreview,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Exchange posts the offer and returns the answer.
func (x *SDPExchanger) Exchange(ctx context.Context, cred token.Credential, offer string) (string, error) {
	endpoint := fmt.Sprintf("%s?model=%s", x.baseURL, url.QueryEscape(x.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &realtime.Error{
			Code:       "sdp_exchange_failed",
			Message:    fmt.Sprintf("failed to exchange SDP: %s", string(body)),
			HTTPStatus: resp.StatusCode,
		}
	}
	if len(body) == 0 {
		return "", &realtime.Error{Code: "sdp_exchange_failed", Message: "empty answer", HTTPStatus: resp.StatusCode}
	}
	return string(body), nil
}
