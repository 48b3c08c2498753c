// Package token obtains the short-lived bearer credential that authorizes one
// realtime session.
//
// Two providers are available: [HTTP] asks a token-minting endpoint (a small
// proxy that holds the long-lived API key), and [OpenAI] mints the ephemeral
// secret itself from an API key. Both make exactly one attempt per call.
package token

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no credential could be obtained.
var ErrUnavailable = errors.New("token: credential unavailable")

// Credential is a short-lived bearer secret for one realtime connection.
type Credential struct {
	// Value is the ephemeral secret.
	Value string

	// ExpiresAt is when the secret stops being accepted. Zero when the
	// provider did not report it.
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Provider issues credentials.
type Provider interface {
	Credential(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Credential, error)

// Credential calls f(ctx).
func (f ProviderFunc) Credential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Static returns a provider that always hands out the same secret. It is
// meant for tests and for callers that already hold an ephemeral key.
func Static(value string) Provider {
	return ProviderFunc(func(context.Context) (Credential, error) {
		if value == "" {
			return Credential{}, ErrUnavailable
		}
		return Credential{Value: value}, nil
	})
}

// sessionResponse is the body returned by the session-minting API and
// relayed unchanged by token proxies.
type sessionResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func (r *sessionResponse) credential() (Credential, error) {
	if r.ClientSecret.Value == "" {
		return Credential{}, errors.New("response has no client_secret.value")
	}
	c := Credential{Value: r.ClientSecret.Value}
	if r.ClientSecret.ExpiresAt > 0 {
		c.ExpiresAt = time.Unix(r.ClientSecret.ExpiresAt, 0)
	}
	return c, nil
}
