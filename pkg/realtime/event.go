package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypeResponseCancel         = "response.cancel"
)

// Server event types (sent from server to client).
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated                          = "conversation.item.created"
	EventTypeConversationItemInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeConversationItemInputAudioTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"

	EventTypeResponseCreated        = "response.created"
	EventTypeResponseDone           = "response.done"
	EventTypeResponseOutputItemDone = "response.output_item.done"

	EventTypeResponseTextDelta            = "response.text.delta"
	EventTypeResponseAudioDelta           = "response.audio.delta"
	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
)

// ServerIDPrefix is the prefix the server reserves for the identifiers of
// the events it emits.
const ServerIDPrefix = "event_"

// deltaSuffix marks incremental fragment events.
const deltaSuffix = "delta"

// ErrMalformedEvent is returned when an inbound payload is not a JSON object
// with a string "type" tag, or cannot be decoded into the expected shape.
var ErrMalformedEvent = errors.New("realtime: malformed event")

// Direction tells which half of the connection originated an event.
type Direction int

const (
	// DirectionServer marks events emitted by the AI endpoint.
	DirectionServer Direction = iota
	// DirectionClient marks events emitted locally.
	DirectionClient
)

// String returns "server" or "client".
func (d Direction) String() string {
	if d == DirectionClient {
		return "client"
	}
	return "server"
}

// Event is one protocol message as observed locally. It is immutable once
// sent or received.
type Event struct {
	// Type is the kind tag, e.g. "session.created".
	Type string

	// EventID is the event identifier. Client events always carry one by the
	// time they are transmitted.
	EventID string

	// Timestamp is the local capture time. It is never part of the wire
	// payload.
	Timestamp time.Time

	// Raw is the exact JSON payload that went over the wire.
	Raw json.RawMessage
}

// Direction derives the originating side from the identifier convention: a
// non-empty identifier without the server prefix is client-originated.
func (e Event) Direction() Direction {
	if e.EventID != "" && !strings.HasPrefix(e.EventID, ServerIDPrefix) {
		return DirectionClient
	}
	return DirectionServer
}

// IsDelta reports whether the event is an incremental fragment.
func (e Event) IsDelta() bool {
	return IsDelta(e.Type)
}

// IsDelta reports whether kind names an incremental fragment event.
func IsDelta(kind string) bool {
	return strings.HasSuffix(kind, deltaSuffix)
}

// Decode unmarshals the raw payload into a ServerEvent.
func (e Event) Decode() (*ServerEvent, error) {
	var se ServerEvent
	if err := json.Unmarshal(e.Raw, &se); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, e.Type, err)
	}
	return &se, nil
}

// Fields returns the payload as a generic JSON object. When the event has a
// local timestamp it is added under "timestamp"; the result is meant for
// display and filtering, never for transmission.
func (e Event) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(e.Raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !e.Timestamp.IsZero() {
		if _, ok := m["timestamp"]; !ok {
			m["timestamp"] = e.Timestamp.Format(time.TimeOnly)
		}
	}
	return m, nil
}

// ParseEvent parses an inbound wire message. The returned event owns a copy
// of data and has no timestamp yet.
func ParseEvent(data []byte) (Event, error) {
	var head struct {
		Type    *string `json:"type"`
		EventID string  `json:"event_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if head.Type == nil || *head.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Event{
		Type:    *head.Type,
		EventID: head.EventID,
		Raw:     raw,
	}, nil
}

// NewEventID generates a client event identifier. It never carries the
// server prefix.
func NewEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
