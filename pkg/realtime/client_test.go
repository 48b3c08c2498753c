package realtime

import (
	"encoding/json"
	"testing"
)

func TestClientEventMarshal(t *testing.T) {
	tests := []struct {
		name string
		ev   *ClientEvent
		want string
	}{
		{
			name: "cancel",
			ev:   CancelResponse(),
			want: `{"type":"response.cancel"}`,
		},
		{
			name: "create without options",
			ev:   CreateResponse(nil),
			want: `{"type":"response.create"}`,
		},
		{
			name: "create with instructions",
			ev:   CreateResponse(&ResponseOptions{Instructions: "Say exactly: hi"}),
			want: `{"type":"response.create","response":{"instructions":"Say exactly: hi"}}`,
		},
		{
			name: "user message",
			ev: func() *ClientEvent {
				ev := UserTextMessage("こんにちは")
				ev.EventID = "evt_1"
				return ev
			}(),
			want: `{"type":"conversation.item.create","event_id":"evt_1","item":{"type":"message","role":"user","content":[{"type":"input_text","text":"こんにちは"}]}}`,
		},
		{
			name: "session update keeps empty tool list",
			ev: SessionUpdate(&SessionConfig{
				Instructions: "x",
				Tools:        []Tool{},
				ToolChoice:   ToolChoiceAuto,
			}),
			want: `{"type":"session.update","session":{"instructions":"x","tools":[],"tool_choice":"auto"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ev.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestClientEventNeverCarriesTimestamp(t *testing.T) {
	data, err := SessionUpdate(&SessionConfig{Voice: VoiceAlloy}).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["timestamp"]; ok {
		t.Errorf("wire payload has timestamp: %s", data)
	}
}
