package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/token"
)

// ErrPipeNotConnected is returned when driving a Pipe nobody connected to.
var ErrPipeNotConnected = errors.New("transport: pipe not connected")

// Pipe is an in-process Connector whose remote end is driven by the caller.
// This is useful for testing and for replaying recorded sessions.
type Pipe struct {
	mu            sync.Mutex
	handler       *Handler
	link          *pipeLink
	cred          token.Credential
	connectErr    error
	openOnConnect bool
	gate          chan struct{}
	connected     chan struct{}
	sent          [][]byte
}

// NewPipe creates an unconnected Pipe.
func NewPipe() *Pipe {
	return &Pipe{connected: make(chan struct{})}
}

// FailConnect makes the next Connect return err.
func (p *Pipe) FailConnect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// OpenOnConnect makes Connect open the channel before it returns.
func (p *Pipe) OpenOnConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openOnConnect = true
}

// HoldConnect makes Connect block until release is called or its context
// ends.
func (p *Pipe) HoldConnect() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Connect implements Connector.
func (p *Pipe) Connect(ctx context.Context, cred token.Credential, h Handler) (Link, error) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	if err := p.connectErr; err != nil {
		p.connectErr = nil
		p.mu.Unlock()
		return nil, err
	}
	link := &pipeLink{pipe: p}
	p.handler = &h
	p.link = link
	p.cred = cred
	open := p.openOnConnect
	select {
	case <-p.connected:
	default:
		close(p.connected)
	}
	p.mu.Unlock()

	if open {
		h.OnOpen()
	}
	return link, nil
}

// Connected is closed once Connect succeeded.
func (p *Pipe) Connected() <-chan struct{} {
	return p.connected
}

// Credential returns the credential passed to Connect.
func (p *Pipe) Credential() token.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred
}

func (p *Pipe) current() (*Handler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler == nil {
		return nil, ErrPipeNotConnected
	}
	return p.handler, nil
}

// Open signals that the event channel opened.
func (p *Pipe) Open() error {
	h, err := p.current()
	if err != nil {
		return err
	}
	h.OnOpen()
	return nil
}

// Deliver pushes one raw message from the remote end.
func (p *Pipe) Deliver(data []byte) error {
	h, err := p.current()
	if err != nil {
		return err
	}
	h.OnMessage(data)
	return nil
}

// DeliverJSON marshals v and delivers it.
func (p *Pipe) DeliverJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Deliver(data)
}

// Fail reports a broken connection from the remote end.
func (p *Pipe) Fail(err error) error {
	h, herr := p.current()
	if herr != nil {
		return herr
	}
	h.OnFailure(err)
	return nil
}

// SentRaw returns every payload written by the local end.
func (p *Pipe) SentRaw() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

// Sent returns every written payload parsed as an event. Payloads that do
// not parse are skipped.
func (p *Pipe) Sent() []realtime.Event {
	var out []realtime.Event
	for _, data := range p.SentRaw() {
		ev, err := realtime.ParseEvent(data)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// SentTypes returns the types of every written event in order.
func (p *Pipe) SentTypes() []string {
	var out []string
	for _, ev := range p.Sent() {
		out = append(out, ev.Type)
	}
	return out
}

// Closed reports whether the local end closed the link.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link != nil && p.link.closed
}

type pipeLink struct {
	pipe   *Pipe
	closed bool
}

func (l *pipeLink) Send(data []byte) error {
	l.pipe.mu.Lock()
	defer l.pipe.mu.Unlock()
	if l.closed {
		return ErrSessionClosed
	}
	l.pipe.sent = append(l.pipe.sent, append([]byte(nil), data...))
	return nil
}

func (l *pipeLink) Close() error {
	l.pipe.mu.Lock()
	defer l.pipe.mu.Unlock()
	l.closed = true
	return nil
}
