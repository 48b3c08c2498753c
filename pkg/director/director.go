// Package director drives the scripted onboarding of a roleplay session.
//
// Once the realtime session is established the director injects the
// scenario persona and has the counterparty speak the opening lines. When
// the operator's first utterance is transcribed it cancels any in-flight
// response and, after a short settling delay, has the counterparty reveal
// its profile and start the roleplay.
//
//	uninitialized --session.created--> awaiting-counterparty-input --transcription--> roleplay-active
//
// Sends are best effort. A dropped send is logged by the transport; the
// director does not retry and does not advance past the failed step.
package director

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/scenario"
	"github.com/haivivi/rolecoach/pkg/transport"
)

// DefaultRevealDelay is the pause between cancelling the in-flight
// response and asking for the profile reveal.
const DefaultRevealDelay = 500 * time.Millisecond

// ErrSessionLive is returned when reconfiguring a director mid-session.
var ErrSessionLive = errors.New("director: session in progress")

// Stage is the position in the scripted sequence.
type Stage int

const (
	StageUninitialized Stage = iota
	StageAwaitingInput
	StageRoleplayActive
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageUninitialized:
		return "uninitialized"
	case StageAwaitingInput:
		return "awaiting-counterparty-input"
	case StageRoleplayActive:
		return "roleplay-active"
	default:
		return "unknown"
	}
}

// Sender transmits client events. *transport.Session implements it.
type Sender interface {
	Send(ev *realtime.ClientEvent) transport.SendResult
}

// Config configures a Director.
type Config struct {
	// Sender is required.
	Sender Sender

	// Scenario defaults to scenario.Default().
	Scenario *scenario.Scenario

	// Clock schedules the reveal. Defaults to the wall clock.
	Clock clock.Clock

	// RevealDelay defaults to DefaultRevealDelay.
	RevealDelay time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Director is the onboarding state machine of one session at a time.
type Director struct {
	sender Sender
	clock  clock.Clock
	delay  time.Duration
	log    *slog.Logger

	mu        sync.Mutex
	scenario  *scenario.Scenario
	stage     Stage
	triggered map[string]struct{}
	pitch     string
	gen       uint64
	timer     *clock.Timer
}

// New creates a Director in StageUninitialized.
func New(cfg Config) *Director {
	d := &Director{
		sender:    cfg.Sender,
		clock:     cfg.Clock,
		delay:     cfg.RevealDelay,
		log:       cfg.Logger,
		scenario:  cfg.Scenario,
		triggered: make(map[string]struct{}),
	}
	if d.clock == nil {
		d.clock = clock.New()
	}
	if d.delay <= 0 {
		d.delay = DefaultRevealDelay
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.scenario == nil {
		d.scenario = scenario.Default()
	}
	return d
}

// Stage returns the current stage.
func (d *Director) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Pitch returns the operator's product description captured when the
// roleplay started.
func (d *Director) Pitch() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pitch
}

// Scenario returns the scenario in use.
func (d *Director) Scenario() *scenario.Scenario {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scenario
}

// SetScenario replaces the scenario. It fails unless the director is
// uninitialized.
func (d *Director) SetScenario(s *scenario.Scenario) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stage != StageUninitialized {
		return ErrSessionLive
	}
	d.scenario = s
	return nil
}

// HandleEvent advances the stage on the events that trigger a transition.
// Every event identifier triggers at most once per session.
func (d *Director) HandleEvent(ev realtime.Event) {
	if ev.Direction() == realtime.DirectionClient {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.EventID != "" {
		if _, done := d.triggered[ev.EventID]; done {
			return
		}
	}

	switch {
	case d.stage == StageUninitialized && ev.Type == realtime.EventTypeSessionCreated:
		d.mark(ev)
		d.begin()

	case d.stage == StageAwaitingInput && ev.Type == realtime.EventTypeConversationItemInputAudioTranscriptionCompleted:
		se, err := ev.Decode()
		if err != nil {
			d.log.Warn("director: undecodable transcription", "error", err)
			return
		}
		pitch := strings.TrimSpace(se.Transcript)
		if pitch == "" {
			return
		}
		d.mark(ev)
		d.startRoleplay(pitch)
	}
}

func (d *Director) mark(ev realtime.Event) {
	if ev.EventID != "" {
		d.triggered[ev.EventID] = struct{}{}
	}
}

// begin injects the persona and asks for the opening lines.
func (d *Director) begin() {
	cfg, err := d.scenario.SessionConfig()
	if err != nil {
		d.log.Error("director: render instructions", "scenario", d.scenario.Name, "error", err)
		return
	}
	opening, err := d.scenario.OpeningDirective()
	if err != nil {
		d.log.Error("director: render opening", "scenario", d.scenario.Name, "error", err)
		return
	}

	if !d.sender.Send(realtime.SessionUpdate(cfg)).Accepted() {
		return
	}
	if !d.sender.Send(realtime.CreateResponse(&realtime.ResponseOptions{Instructions: opening})).Accepted() {
		return
	}
	d.stage = StageAwaitingInput
	d.log.Info("director: opening sent", "scenario", d.scenario.Name)
}

// startRoleplay cancels the in-flight response and schedules the reveal.
func (d *Director) startRoleplay(pitch string) {
	if !d.sender.Send(realtime.CancelResponse()).Accepted() {
		return
	}
	d.pitch = pitch
	d.stage = StageRoleplayActive
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() { d.reveal(gen) })
	d.log.Info("director: roleplay started", "pitch", pitch)
}

// reveal holds d.mu across the send so a Reset cannot slip between the
// generation check and the transmission.
func (d *Director) reveal(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	d.timer = nil

	text, err := d.scenario.RevealDirective(d.pitch)
	if err != nil {
		d.log.Error("director: render reveal", "scenario", d.scenario.Name, "error", err)
		return
	}
	d.sender.Send(realtime.CreateResponse(&realtime.ResponseOptions{Instructions: text}))
}

// Reset returns to StageUninitialized, forgets the triggering events and
// the pitch, and cancels a pending reveal.
func (d *Director) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stage = StageUninitialized
	d.triggered = make(map[string]struct{})
	d.pitch = ""
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
