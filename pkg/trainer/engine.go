// Package trainer runs roleplay sessions: it owns the transport session,
// the event reconciler and the director, and feeds them from a single loop
// in arrival order.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/haivivi/rolecoach/pkg/director"
	"github.com/haivivi/rolecoach/pkg/journal"
	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/reconcile"
	"github.com/haivivi/rolecoach/pkg/scenario"
	"github.com/haivivi/rolecoach/pkg/token"
	"github.com/haivivi/rolecoach/pkg/transport"
)

var (
	// ErrSessionLive is returned when starting or reconfiguring while a
	// session is being started, negotiating or active.
	ErrSessionLive = errors.New("trainer: session in progress")

	// ErrEmptyMessage is returned by SendText for blank text.
	ErrEmptyMessage = errors.New("trainer: empty message")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("trainer: engine closed")
)

// Observer receives engine output on the loop goroutine. Implementations
// must not block and must not call Start or SetScenario.
type Observer interface {
	// OnState reports a transport state change.
	OnState(st transport.State)

	// OnStage reports a director stage change.
	OnStage(st director.Stage)

	// OnEvents reports the events of one processing pass, newest first,
	// with repeated delta kinds coalesced.
	OnEvents(batch []realtime.Event)

	// OnEntry reports a new transcript entry.
	OnEntry(e reconcile.Entry)
}

// Funcs adapts optional functions to an Observer.
type Funcs struct {
	State  func(transport.State)
	Stage  func(director.Stage)
	Events func([]realtime.Event)
	Entry  func(reconcile.Entry)
}

func (f Funcs) OnState(st transport.State) {
	if f.State != nil {
		f.State(st)
	}
}

func (f Funcs) OnStage(st director.Stage) {
	if f.Stage != nil {
		f.Stage(st)
	}
}

func (f Funcs) OnEvents(batch []realtime.Event) {
	if f.Events != nil {
		f.Events(batch)
	}
}

func (f Funcs) OnEntry(e reconcile.Entry) {
	if f.Entry != nil {
		f.Entry(e)
	}
}

// Config configures an Engine.
type Config struct {
	// Provider issues session credentials. Required.
	Provider token.Provider

	// Connector negotiates connections. Required.
	Connector transport.Connector

	// Scenario defaults to scenario.Default().
	Scenario *scenario.Scenario

	// Observer is optional.
	Observer Observer

	// Journal records every observed event when set.
	Journal *journal.Journal

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// RevealDelay defaults to director.DefaultRevealDelay.
	RevealDelay time.Duration

	// MaxEvents bounds the event log. Defaults to reconcile.DefaultMaxEvents.
	MaxEvents int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine runs one session at a time. Its methods are safe for concurrent
// use.
type Engine struct {
	cfg      Config
	clock    clock.Clock
	log      *slog.Logger
	observer Observer
	rec      *reconcile.Reconciler
	dir      *director.Director
	q        *queue

	done     chan struct{}
	loopDone chan struct{}
	closeMu  sync.Once

	// runMu serializes session turnover in Start with the loop's handling
	// of each item. Lock order: runMu, director, mu.
	runMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	session  *transport.Session
	scenario *scenario.Scenario
	recorder *journal.Recorder
	closed   bool

	// stage is owned by the loop.
	stage director.Stage
}

// New creates an Engine and starts its loop. Call Close to release it.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		observer: cfg.Observer,
		scenario: cfg.Scenario,
		q:        newQueue(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if e.clock == nil {
		e.clock = clock.New()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.observer == nil {
		e.observer = Funcs{}
	}
	if e.scenario == nil {
		e.scenario = scenario.Default()
	}
	e.rec = reconcile.New(reconcile.Config{MaxEvents: cfg.MaxEvents, Logger: e.log})
	e.dir = director.New(director.Config{
		Sender:      e,
		Scenario:    e.scenario,
		Clock:       e.clock,
		RevealDelay: cfg.RevealDelay,
		Logger:      e.log,
	})
	go e.loop()
	return e
}

// Start begins a new session with a frozen copy of the current scenario.
// It returns once negotiation finished; the session becomes active when
// the event channel opens.
func (e *Engine) Start(ctx context.Context) error {
	s, err := e.turnover()
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		if s.State() == transport.StateIdle {
			s.Stop()
		}
		return fmt.Errorf("trainer: start session: %w", err)
	}
	return nil
}

// turnover retires the previous session, resets the director and the
// reconciler, and installs a fresh idle session. The loop is held off for
// the duration, so no item of an earlier session is handled after the reset.
func (e *Engine) turnover() (*transport.Session, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if owned(e.session) {
		e.mu.Unlock()
		return nil, ErrSessionLive
	}
	sc := e.scenario.Clone()
	e.gen++
	s := transport.New(transport.Config{
		Provider:  e.cfg.Provider,
		Connector: e.cfg.Connector,
		Listener:  sessionListener{q: e.q, gen: e.gen},
		Clock:     e.clock,
		Logger:    e.log,
	})
	prev := e.session
	e.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	e.dir.Reset()
	if err := e.dir.SetScenario(sc); err != nil {
		return nil, err
	}
	e.rec.Reset()

	var recorder *journal.Recorder
	if e.cfg.Journal != nil {
		name := e.clock.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
		r, err := e.cfg.Journal.Begin(journal.Recording{Name: name, Scenario: sc.Name, Started: e.clock.Now()})
		if err != nil {
			e.log.Warn("trainer: recording disabled", "error", err)
		} else {
			recorder = r
			e.log.Info("trainer: recording session", "name", name)
		}
	}

	e.mu.Lock()
	e.session = s
	e.recorder = recorder
	e.mu.Unlock()
	return s, nil
}

// owned reports whether s is the engine's session and has not ended. An
// idle session counts: it is about to be started.
func owned(s *transport.Session) bool {
	if s == nil {
		return false
	}
	st := s.State()
	return st != transport.StateClosed && st != transport.StateError
}

// Stop ends the current session. It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Close stops the session and the loop.
func (e *Engine) Close() {
	e.closeMu.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.Stop()
		close(e.done)
		<-e.loopDone
	})
}

// Send transmits a client event on the current session. Without a session
// the event is dropped.
func (e *Engine) Send(ev *realtime.ClientEvent) transport.SendResult {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		e.log.Warn("failed to send event", "type", ev.Type, "error", transport.ErrChannelUnavailable)
		return transport.SendResult{Status: transport.StatusDropped, Err: transport.ErrChannelUnavailable}
	}
	return s.Send(ev)
}

// SendText sends an operator text message and asks for a response.
func (e *Engine) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if res := e.Send(realtime.UserTextMessage(text)); !res.Accepted() {
		return res.Err
	}
	if res := e.Send(realtime.CreateResponse(nil)); !res.Accepted() {
		return res.Err
	}
	return nil
}

// SetScenario replaces the scenario used by the next session.
func (e *Engine) SetScenario(s *scenario.Scenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if owned(e.session) {
		return ErrSessionLive
	}
	e.scenario = s.Clone()
	return nil
}

// Scenario returns a copy of the configured scenario.
func (e *Engine) Scenario() *scenario.Scenario {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenario.Clone()
}

// State returns the transport state of the current session.
func (e *Engine) State() transport.State {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return transport.StateIdle
	}
	return s.State()
}

// Err returns the failure of the current session, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Err()
}

// Diagnostics returns the dropped sends of the current session.
func (e *Engine) Diagnostics() []transport.Diagnostic {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Diagnostics()
}

// Stage returns the director stage.
func (e *Engine) Stage() director.Stage {
	return e.dir.Stage()
}

// Pitch returns the operator's captured product description.
func (e *Engine) Pitch() string {
	return e.dir.Pitch()
}

// Transcript returns the reconciled transcript, oldest first.
func (e *Engine) Transcript() []reconcile.Entry {
	return e.rec.Transcript()
}

// Events returns the event log, newest first.
func (e *Engine) Events() []realtime.Event {
	return e.rec.Events()
}

// Recording returns the name of the current journal recording, or "".
func (e *Engine) Recording() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorder == nil {
		return ""
	}
	return e.recorder.Name()
}

// Flush waits until everything queued so far has been processed.
func (e *Engine) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	e.q.push(item{barrier: barrier})
	select {
	case <-barrier:
		return nil
	case <-e.loopDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			return
		case <-e.q.signal:
			e.process(e.q.take())
		}
	}
}

// process handles one pass over the queued items.
func (e *Engine) process(items []item) {
	var batch []realtime.Event
	for _, it := range items {
		batch = e.handle(it, batch)
	}
	e.emit(batch)
}

// handle processes one item and returns the pass's batch so far. Start may
// begin a new session mid-pass, so the generation is checked per item.
func (e *Engine) handle(it item, batch []realtime.Event) []realtime.Event {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	gen, recorder := e.gen, e.recorder
	e.mu.Unlock()

	switch {
	case it.barrier != nil:
		e.emit(batch)
		close(it.barrier)
		return nil
	case it.gen != gen:
		return batch
	case it.state != nil:
		e.emit(batch)
		batch = nil
		e.handleState(*it.state)
	case it.event != nil:
		ev := *it.event
		if recorder != nil {
			if err := recorder.Record(ev); err != nil {
				e.log.Warn("trainer: record event", "type", ev.Type, "error", err)
			}
		}
		for _, entry := range e.rec.Observe(ev) {
			e.observer.OnEntry(entry)
		}
		e.dir.HandleEvent(ev)
		batch = append(batch, ev)
	}
	e.checkStage()
	return batch
}

func (e *Engine) handleState(st transport.State) {
	switch st {
	case transport.StateActive:
		e.rec.Reset()
	case transport.StateClosed, transport.StateError:
		e.dir.Reset()
		e.rec.Reset()
	}
	e.observer.OnState(st)
}

func (e *Engine) checkStage() {
	if st := e.dir.Stage(); st != e.stage {
		e.stage = st
		e.observer.OnStage(st)
	}
}

// emit reports a pass's events newest first, coalesced.
func (e *Engine) emit(batch []realtime.Event) {
	if len(batch) == 0 {
		return
	}
	newest := slices.Clone(batch)
	slices.Reverse(newest)
	e.observer.OnEvents(reconcile.Coalesce(newest))
}
