package realtime

import "encoding/json"

// ClientEvent is an outbound message. An empty EventID is filled in by the
// transport before transmission.
type ClientEvent struct {
	Type     string            `json:"type"`
	EventID  string            `json:"event_id,omitzero"`
	Session  *SessionConfig    `json:"session,omitzero"`
	Response *ResponseOptions  `json:"response,omitzero"`
	Item     *ConversationItem `json:"item,omitzero"`
}

// Marshal encodes the event for the wire.
func (e *ClientEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// SessionUpdate builds a session.update event.
func SessionUpdate(cfg *SessionConfig) *ClientEvent {
	return &ClientEvent{
		Type:    EventTypeSessionUpdate,
		Session: cfg,
	}
}

// CreateResponse builds a response.create event. Pass nil to let the model
// respond with the session defaults.
func CreateResponse(opts *ResponseOptions) *ClientEvent {
	return &ClientEvent{
		Type:     EventTypeResponseCreate,
		Response: opts,
	}
}

// CancelResponse builds a response.cancel event for any in-flight response.
func CancelResponse() *ClientEvent {
	return &ClientEvent{Type: EventTypeResponseCancel}
}

// UserTextMessage builds a conversation.item.create event carrying an
// operator text message.
func UserTextMessage(text string) *ClientEvent {
	return &ClientEvent{
		Type: EventTypeConversationItemCreate,
		Item: &ConversationItem{
			Type: "message",
			Role: RoleUser,
			Content: []ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	}
}
