package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/token"
)

// maxDiagnostics bounds the retained diagnostics.
const maxDiagnostics = 64

// Listener observes a Session. HandleState is called for every transition,
// HandleEvent for every inbound event and for the local copy of every
// transmitted event. Calls may come from any goroutine but are never
// concurrent with each other for inbound traffic.
type Listener interface {
	HandleState(st State)
	HandleEvent(ev realtime.Event)
}

// Config configures a Session.
type Config struct {
	// Provider issues the session credential. Required.
	Provider token.Provider

	// Connector negotiates the connection. Required.
	Connector Connector

	// Listener receives state changes and events. Optional.
	Listener Listener

	// Clock stamps events. Defaults to the wall clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is one end-to-end connection attempt. It is created Idle, started
// once, and released by Stop.
type Session struct {
	provider  token.Provider
	connector Connector
	listener  Listener
	clock     clock.Clock
	log       *slog.Logger

	// deliverMu orders activation and inbound delivery.
	deliverMu sync.Mutex
	// sendMu serializes transmissions.
	sendMu sync.Mutex
	// notifyMu serializes state notifications.
	notifyMu     sync.Mutex
	lastNotified uint64

	mu          sync.Mutex
	state       State
	seq         uint64
	link        Link
	opened      bool
	pending     [][]byte
	cancel      context.CancelFunc
	err         error
	diagnostics []Diagnostic
}

// New creates an Idle session.
func New(cfg Config) *Session {
	s := &Session{
		provider:  cfg.Provider,
		connector: cfg.Connector,
		listener:  cfg.Listener,
		clock:     cfg.Clock,
		log:       cfg.Logger,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session to StateError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Diagnostics returns the most recent dropped sends, oldest first.
func (s *Session) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}

// Start fetches a credential and negotiates the connection. It returns once
// the connection-setup exchange completed; the session reaches StateActive
// asynchronously when the event channel opens.
//
// Failures move the session to StateError and wrap ErrCredentialUnavailable
// or ErrNegotiationFailed. If Stop is called while Start is waiting, Start
// releases whatever it obtained and returns ErrSessionClosed.
func (s *Session) Start(ctx context.Context) error {
	if s.provider == nil || s.connector == nil {
		return errors.New("transport: provider and connector are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyStarted
	}
	s.cancel = cancel
	seq := s.transitionLocked(StateNegotiating)
	s.mu.Unlock()
	s.notify(StateNegotiating, seq)

	cred, err := s.provider.Credential(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrCredentialUnavailable, err))
	}
	if s.State() != StateNegotiating {
		return ErrSessionClosed
	}

	link, err := s.connector.Connect(ctx, cred, Handler{
		OnOpen:    s.handleOpen,
		OnMessage: s.handleMessage,
		OnFailure: s.handleFailure,
	})
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != StateNegotiating {
		st, cause := s.state, s.err
		s.mu.Unlock()
		if err := link.Close(); err != nil {
			s.log.Debug("close late link", "error", err)
		}
		if st == StateError {
			return fmt.Errorf("%w: %w", ErrNegotiationFailed, cause)
		}
		return ErrSessionClosed
	}
	s.link = link
	if s.opened {
		s.activateLocked()
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Send transmits a client event. It assigns an identifier if the event has
// none, writes the payload, and only then stamps the locally retained copy,
// so the wire payload never carries a timestamp.
//
// Outside StateActive nothing is transmitted: the result is dropped with
// ErrChannelUnavailable and a diagnostic is recorded.
func (s *Session) Send(ev *realtime.ClientEvent) SendResult {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	st, link := s.state, s.link
	s.mu.Unlock()
	if st != StateActive || link == nil {
		return s.drop(ev.Type, st, ErrChannelUnavailable)
	}

	out := *ev
	if out.EventID == "" {
		out.EventID = realtime.NewEventID()
	}
	data, err := out.Marshal()
	if err != nil {
		return s.drop(ev.Type, st, fmt.Errorf("marshal %s: %w", ev.Type, err))
	}

	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		str := string(data)
		if len(str) > 500 {
			str = str[:500] + "..."
		}
		s.log.Debug("sending event", "type", out.Type, "content", str)
	}

	if err := link.Send(data); err != nil {
		return s.drop(ev.Type, st, fmt.Errorf("%w: %v", ErrChannelUnavailable, err))
	}

	local := realtime.Event{
		Type:    out.Type,
		EventID: out.EventID,
		Raw:     data,
	}
	local.Timestamp = s.clock.Now()
	if s.listener != nil {
		s.listener.HandleEvent(local)
	}
	return SendResult{Status: StatusAccepted, Event: local}
}

// Stop moves the session to StateClosed from any state and synchronously
// releases the connection. It is idempotent and never fails.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	link, cancel := s.link, s.cancel
	s.link, s.cancel, s.pending = nil, nil, nil
	seq := s.transitionLocked(StateClosed)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if link != nil {
		if err := link.Close(); err != nil {
			s.log.Debug("close link", "error", err)
		}
	}
	s.notify(StateClosed, seq)
}

// transitionLocked records a state change and returns its sequence number.
func (s *Session) transitionLocked(st State) uint64 {
	s.state = st
	s.seq++
	return s.seq
}

// activateLocked enters StateActive and flushes messages that arrived
// between the channel opening and Connect returning. It expects s.mu and
// s.deliverMu held and releases s.mu.
func (s *Session) activateLocked() {
	seq := s.transitionLocked(StateActive)
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.log.Info("realtime session active")
	s.notify(StateActive, seq)
	for _, data := range pending {
		s.deliver(data)
	}
}

func (s *Session) handleOpen() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != StateNegotiating || s.opened {
		s.mu.Unlock()
		return
	}
	s.opened = true
	if s.link == nil {
		s.mu.Unlock()
		return
	}
	s.activateLocked()
}

func (s *Session) handleMessage(data []byte) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	st, opened := s.state, s.opened
	if st == StateNegotiating && opened {
		s.pending = append(s.pending, append([]byte(nil), data...))
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if st != StateActive {
		s.log.Debug("dropping message outside active state", "state", st, "len", len(data))
		return
	}
	s.deliver(data)
}

// deliver parses one inbound message and hands it to the listener.
// Malformed payloads are dropped.
func (s *Session) deliver(data []byte) {
	ev, err := realtime.ParseEvent(data)
	if err != nil {
		s.log.Warn("dropping malformed event", "error", err, "len", len(data))
		return
	}
	ev.Timestamp = s.clock.Now()
	if s.listener != nil {
		s.listener.HandleEvent(ev)
	}
}

func (s *Session) handleFailure(err error) {
	s.mu.Lock()
	if !s.state.Live() {
		s.mu.Unlock()
		return
	}
	link := s.link
	s.link, s.pending = nil, nil
	s.err = err
	seq := s.transitionLocked(StateError)
	s.mu.Unlock()

	s.log.Error("realtime connection failed", "error", err)
	if link != nil {
		if cerr := link.Close(); cerr != nil {
			s.log.Debug("close failed link", "error", cerr)
		}
	}
	s.notify(StateError, seq)
}

// fail moves a negotiating session to StateError. If the session was
// stopped meanwhile the failure is moot and ErrSessionClosed is returned.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state != StateNegotiating {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.err = err
	cancel := s.cancel
	s.cancel = nil
	seq := s.transitionLocked(StateError)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Error("realtime session start failed", "error", err)
	s.notify(StateError, seq)
	return err
}

func (s *Session) drop(kind string, st State, err error) SendResult {
	d := Diagnostic{Time: s.clock.Now(), Type: kind, State: st, Err: err}
	s.mu.Lock()
	s.diagnostics = append(s.diagnostics, d)
	if len(s.diagnostics) > maxDiagnostics {
		s.diagnostics = s.diagnostics[len(s.diagnostics)-maxDiagnostics:]
	}
	s.mu.Unlock()

	s.log.Warn("failed to send event", "type", kind, "state", st, "error", err)
	return SendResult{Status: StatusDropped, Err: err}
}

// notify delivers a state change unless a later one was already delivered.
func (s *Session) notify(st State, seq uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.lastNotified {
		return
	}
	s.lastNotified = seq
	if s.listener != nil {
		s.listener.HandleState(st)
	}
}
