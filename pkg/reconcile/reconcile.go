// Package reconcile folds the overlapping realtime event stream into an
// event log and a non-redundant conversation transcript.
//
// The realtime endpoint reports one utterance several times as its pipeline
// completes in stages: a transcript-done notice, an output-item-done notice,
// the item-created echo and finally the full response. A Reconciler appends
// each utterance at most once, keyed by item identifier, or by the text
// itself when no identifier is present.
package reconcile

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

// DefaultMaxEvents bounds the event log when Config.MaxEvents is zero.
const DefaultMaxEvents = 1000

// Speaker identifies who produced a transcript entry.
type Speaker int

const (
	// Operator is the human trainee.
	Operator Speaker = iota
	// Counterparty is the simulated customer.
	Counterparty
)

// String returns "operator" or "counterparty".
func (s Speaker) String() string {
	if s == Counterparty {
		return "counterparty"
	}
	return "operator"
}

// Entry is one transcript line. Entries are never mutated after creation.
type Entry struct {
	Speaker Speaker
	Message string
	Time    time.Time
}

// Config configures a Reconciler.
type Config struct {
	// MaxEvents bounds the event log. Defaults to DefaultMaxEvents.
	MaxEvents int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Reconciler holds the state of one session. It is safe for concurrent use,
// but Observe is expected to be called from a single goroutine in arrival
// order.
type Reconciler struct {
	maxEvents int
	log       *slog.Logger

	mu         sync.Mutex
	events     []realtime.Event // newest first
	transcript []Entry
	seen       [2]map[string]struct{}
}

// New creates an empty Reconciler.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		maxEvents: cfg.MaxEvents,
		log:       cfg.Logger,
	}
	if r.maxEvents <= 0 {
		r.maxEvents = DefaultMaxEvents
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.resetLocked()
	return r
}

// Observe logs ev and returns the transcript entries it produced. Client
// events are only logged.
func (r *Reconciler) Observe(ev realtime.Event) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, realtime.Event{})
	copy(r.events[1:], r.events)
	r.events[0] = ev
	if len(r.events) > r.maxEvents {
		r.events = r.events[:r.maxEvents]
	}

	if ev.Direction() == realtime.DirectionClient {
		return nil
	}
	utts, err := extract(ev)
	if err != nil {
		r.log.Warn("dropping malformed event", "type", ev.Type, "error", err)
		return nil
	}

	var added []Entry
	for _, u := range utts {
		if strings.TrimSpace(u.text) == "" {
			continue
		}
		key := u.key
		if key == "" {
			key = u.text
		}
		seen := r.seen[u.speaker]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		e := Entry{Speaker: u.speaker, Message: u.text, Time: ev.Timestamp}
		r.transcript = append(r.transcript, e)
		added = append(added, e)
	}
	return added
}

// Transcript returns a copy of the transcript, oldest first.
func (r *Reconciler) Transcript() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.transcript))
	copy(out, r.transcript)
	return out
}

// Events returns a copy of the event log, newest first.
func (r *Reconciler) Events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of logged events.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset clears the event log, the transcript and the dedup sets.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Reconciler) resetLocked() {
	r.events = nil
	r.transcript = nil
	r.seen = [2]map[string]struct{}{{}, {}}
}

// Coalesce keeps only the first event of every delta kind in batch and
// drops the rest. Non-delta events pass through. Order is preserved, so a
// batch given newest first keeps the freshest fragment of each kind.
func Coalesce(batch []realtime.Event) []realtime.Event {
	out := make([]realtime.Event, 0, len(batch))
	kinds := make(map[string]struct{})
	for _, ev := range batch {
		if ev.IsDelta() {
			if _, dup := kinds[ev.Type]; dup {
				continue
			}
			kinds[ev.Type] = struct{}{}
		}
		out = append(out, ev)
	}
	return out
}
