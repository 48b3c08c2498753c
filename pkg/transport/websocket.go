package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/token"
)

// DefaultWebSocketURL is the realtime WebSocket endpoint.
const DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

// WebSocketConfig configures a WebSocket connector.
type WebSocketConfig struct {
	// URL defaults to DefaultWebSocketURL.
	URL string

	// Model defaults to realtime.ModelGPT4oRealtimePreview.
	Model string

	// HandshakeTimeout defaults to 30 seconds.
	HandshakeTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WebSocket carries events over a WebSocket for hosts without audio
// devices. The upgraded socket counts as the open event channel.
type WebSocket struct {
	cfg WebSocketConfig
}

// NewWebSocket creates a WebSocket connector.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.URL == "" {
		cfg.URL = DefaultWebSocketURL
	}
	if cfg.Model == "" {
		cfg.Model = realtime.ModelGPT4oRealtimePreview
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocket{cfg: cfg}
}

// Connect implements Connector.
func (w *WebSocket) Connect(ctx context.Context, cred token.Credential, h Handler) (Link, error) {
	endpoint := fmt.Sprintf("%s?model=%s", w.cfg.URL, url.QueryEscape(w.cfg.Model))

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cred.Value)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, &realtime.Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	link := &wsLink{conn: conn, closeCh: make(chan struct{}), log: w.cfg.Logger}
	h.OnOpen()
	go link.readLoop(h)
	return link, nil
}

type wsLink struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu        sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (l *wsLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

// readLoop feeds every frame to the handler until the socket breaks.
func (l *wsLink) readLoop(h Handler) {
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			h.OnFailure(fmt.Errorf("read error: %w", err))
			return
		}
		if l.log.Enabled(context.Background(), slog.LevelDebug) {
			msgStr := string(message)
			if len(msgStr) > 1000 {
				msgStr = msgStr[:1000] + "..."
			}
			l.log.Debug("received message", "len", len(message), "content", msgStr)
		}
		h.OnMessage(message)
	}
}
