package token

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

func TestHTTP_Credential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if body, _ := io.ReadAll(r.Body); len(body) != 0 {
			t.Errorf("request body = %q, want empty", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1700000000}}`)
	}))
	defer srv.Close()

	c, err := NewHTTP(srv.URL).Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if c.Value != "ek_123" {
		t.Errorf("Value = %q, want %q", c.Value, "ek_123")
	}
	if !c.ExpiresAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, time.Unix(1700000000, 0))
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestHTTP_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"proxy error", 500, `{"error":"Failed to generate token"}`, "Failed to generate token"},
		{"upstream error", 401, `{"error":{"type":"invalid_request_error","message":"bad key"}}`, "bad key"},
		{"plain text", 502, `bad gateway`, "bad gateway"},
		{"missing secret", 200, `{"id":"sess_1"}`, ""},
		{"not json", 200, `<html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTP(srv.URL).Credential(context.Background())
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("error = %v, want ErrUnavailable", err)
			}
			if tt.message != "" {
				var apiErr *realtime.Error
				if !errors.As(err, &apiErr) {
					t.Fatalf("error = %v, want *realtime.Error", err)
				}
				if apiErr.Message != tt.message {
					t.Errorf("Message = %q, want %q", apiErr.Message, tt.message)
				}
				if apiErr.HTTPStatus != tt.status {
					t.Errorf("HTTPStatus = %d, want %d", apiErr.HTTPStatus, tt.status)
				}
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("calls = %d, want exactly one attempt", n)
			}
		})
	}
}

func TestHTTP_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTP(url).Credential(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestOpenAI_Credential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/sessions" {
			t.Errorf("path = %s, want /realtime/sessions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-test")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["model"] != "m1" || body["voice"] != realtime.VoiceVerse {
			t.Errorf("body = %v, want model m1 voice verse", body)
		}
		io.WriteString(w, `{"client_secret":{"value":"ek_abc"}}`)
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", WithBaseURL(srv.URL), WithModel("m1"))
	c, err := p.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if c.Value != "ek_abc" {
		t.Errorf("Value = %q, want %q", c.Value, "ek_abc")
	}
	if !c.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", c.ExpiresAt)
	}
}

func TestOpenAI_MissingKey(t *testing.T) {
	_, err := NewOpenAI("").Credential(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestStaticAndExpiry(t *testing.T) {
	c, err := Static("ek_1").Credential(context.Background())
	if err != nil || c.Value != "ek_1" {
		t.Fatalf("Static = %+v, %v", c, err)
	}
	if _, err := Static("").Credential(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Static(\"\") error = %v, want ErrUnavailable", err)
	}

	now := time.Now()
	if (Credential{}).Expired(now) {
		t.Error("credential without expiry reported expired")
	}
	if !(Credential{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Error("past credential not reported expired")
	}
}
