package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseEvent(t *testing.T) {
	data := []byte(`{"type":"session.created","event_id":"event_abc","session":{"id":"sess_1"}}`)
	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventTypeSessionCreated {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypeSessionCreated)
	}
	if ev.EventID != "event_abc" {
		t.Errorf("EventID = %q, want %q", ev.EventID, "event_abc")
	}
	if !ev.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", ev.Timestamp)
	}

	// The event must own its bytes.
	data[2] = 'X'
	if !strings.HasPrefix(string(ev.Raw), `{"type"`) {
		t.Errorf("Raw aliases input: %s", ev.Raw)
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"array", `[1,2,3]`},
		{"missing type", `{"event_id":"event_1"}`},
		{"empty type", `{"type":""}`},
		{"numeric type", `{"type":42}`},
		{"truncated", `{"type":"response.done"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.data))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("ParseEvent(%s) error = %v, want ErrMalformedEvent", tt.data, err)
			}
		})
	}
}

func TestEventDirection(t *testing.T) {
	tests := []struct {
		id   string
		want Direction
	}{
		{"event_123", DirectionServer},
		{"", DirectionServer},
		{"evt_0123456789ab", DirectionClient},
		{"7f1c1a3e-0000-4000-8000-000000000000", DirectionClient},
	}
	for _, tt := range tests {
		ev := Event{Type: "x", EventID: tt.id}
		if got := ev.Direction(); got != tt.want {
			t.Errorf("Direction(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNewEventID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewEventID()
		if strings.HasPrefix(id, ServerIDPrefix) {
			t.Fatalf("NewEventID() = %q carries the server prefix", id)
		}
		if (Event{EventID: id}).Direction() != DirectionClient {
			t.Fatalf("NewEventID() = %q not recognised as client id", id)
		}
		if seen[id] {
			t.Fatalf("NewEventID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestIsDelta(t *testing.T) {
	tests := map[string]bool{
		EventTypeResponseAudioTranscriptDelta:                 true,
		EventTypeResponseAudioDelta:                           true,
		EventTypeConversationItemInputAudioTranscriptionDelta: true,
		EventTypeResponseAudioTranscriptDone:                  false,
		EventTypeResponseDone:                                 false,
		"delta":                                               true,
	}
	for kind, want := range tests {
		if got := IsDelta(kind); got != want {
			t.Errorf("IsDelta(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestEventFields_Timestamp(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"response.done","event_id":"event_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	ev.Timestamp = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	fields, err := ev.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if fields["timestamp"] != "15:04:05" {
		t.Errorf("timestamp = %v, want 15:04:05", fields["timestamp"])
	}
	if strings.Contains(string(ev.Raw), "timestamp") {
		t.Errorf("Raw gained a timestamp: %s", ev.Raw)
	}
}

func TestEventDecode(t *testing.T) {
	ev, err := ParseEvent([]byte(`{
		"type":"response.output_item.done",
		"event_id":"event_9",
		"item":{"id":"item_1","role":"assistant","content":[{"type":"audio","transcript":"こんにちは"}]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	se, err := ev.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if se.Item == nil || se.Item.ID != "item_1" {
		t.Fatalf("Item = %+v, want id item_1", se.Item)
	}
	if got := se.Item.Text(); got != "こんにちは" {
		t.Errorf("Item.Text() = %q, want %q", got, "こんにちは")
	}

	bad := Event{Type: "response.done", Raw: json.RawMessage(`{"type":"response.done","response":"oops"}`)}
	if _, err := bad.Decode(); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("Decode(bad) error = %v, want ErrMalformedEvent", err)
	}
}

func TestConversationItemText(t *testing.T) {
	tests := []struct {
		name string
		item *ConversationItem
		want string
	}{
		{"nil", nil, ""},
		{"empty", &ConversationItem{}, ""},
		{"text", &ConversationItem{Content: []ContentPart{{Text: "hi"}}}, "hi"},
		{"transcript", &ConversationItem{Content: []ContentPart{{Transcript: "yo"}}}, "yo"},
		{"skip blank", &ConversationItem{Content: []ContentPart{{Text: "  "}, {Text: "b"}}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}
