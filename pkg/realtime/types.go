package realtime

import "strings"

// Models and voices used by the trainer.
const (
	ModelGPT4oRealtimePreview         = "gpt-4o-realtime-preview-2024-12-17"
	ModelGPT4oRealtimePreview20250603 = "gpt-4o-realtime-preview-2025-06-03"

	VoiceAlloy = "alloy"
	VoiceVerse = "verse"

	TranscriptionWhisper1 = "whisper-1"
)

// Conversation item roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Tool choice options.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// SessionConfig is the payload of a session.update event.
type SessionConfig struct {
	// Modalities specifies the output modalities.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	// Voice is the voice ID for audio output.
	Voice string `json:"voice,omitzero"`

	// InputAudioTranscription enables transcription of operator audio.
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`

	// TurnDetection configures voice activity detection. Nil keeps the
	// server default.
	TurnDetection *TurnDetection `json:"turn_detection,omitzero"`

	// Tools defines the available functions. A non-nil empty slice is sent
	// as an explicit empty list.
	Tools []Tool `json:"tools,omitzero"`

	// ToolChoice is "auto", "none" or "required".
	ToolChoice string `json:"tool_choice,omitzero"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Model    string `json:"model,omitzero"`
	Language string `json:"language,omitzero"`
}

// TurnDetection configures voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type,omitzero"`
	Threshold         float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitzero"`
}

// Tool defines a function tool available to the model.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitzero"`
	Parameters  map[string]any `json:"parameters,omitzero"`
}

// ResponseOptions is the optional payload of a response.create event.
type ResponseOptions struct {
	// Modalities overrides the output modalities for this response.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions overrides the session instructions for this response.
	Instructions string `json:"instructions,omitzero"`

	// Voice overrides the session voice for this response.
	Voice string `json:"voice,omitzero"`
}

// ServerEvent is the decoded form of a server event. Only the fields the
// trainer consumes are mapped.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Session is set for session.created and session.updated.
	Session *SessionResource `json:"session,omitzero"`

	// Item is set for conversation.item.* and response.output_item.* events.
	Item *ConversationItem `json:"item,omitzero"`

	// ItemID references the conversation item an event is about.
	ItemID string `json:"item_id,omitzero"`

	// ContentIndex is the index of the content part.
	ContentIndex int `json:"content_index,omitzero"`

	// Transcript is set for transcript completion events.
	Transcript string `json:"transcript,omitzero"`

	// Response is set for response.created and response.done.
	Response *ResponseResource `json:"response,omitzero"`

	// ResponseID is the response identifier.
	ResponseID string `json:"response_id,omitzero"`

	// OutputIndex is the index of the output item.
	OutputIndex int `json:"output_index,omitzero"`

	// Delta carries the fragment of *.delta events.
	Delta string `json:"delta,omitzero"`

	// Error is set for error events.
	Error *EventError `json:"error,omitzero"`
}

// SessionResource is the session state returned by the server.
type SessionResource struct {
	ID           string `json:"id,omitzero"`
	Object       string `json:"object,omitzero"`
	Model        string `json:"model,omitzero"`
	ExpiresAt    int64  `json:"expires_at,omitzero"`
	Instructions string `json:"instructions,omitzero"`
	Voice        string `json:"voice,omitzero"`
}

// ConversationItem is an item in the conversation.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Object  string        `json:"object,omitzero"`
	Type    string        `json:"type,omitzero"` // "message", "function_call", "function_call_output"
	Status  string        `json:"status,omitzero"`
	Role    string        `json:"role,omitzero"` // "user", "assistant", "system"
	Content []ContentPart `json:"content,omitzero"`
}

// Text returns the first non-blank text of the item's content, preferring
// the text field over an audio transcript within each part.
func (it *ConversationItem) Text() string {
	if it == nil {
		return ""
	}
	for _, part := range it.Content {
		if strings.TrimSpace(part.Text) != "" {
			return part.Text
		}
		if strings.TrimSpace(part.Transcript) != "" {
			return part.Transcript
		}
	}
	return ""
}

// ContentPart is a part of message content.
type ContentPart struct {
	Type       string `json:"type,omitzero"` // "input_text", "input_audio", "text", "audio"
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// ResponseResource is a response from the model.
type ResponseResource struct {
	ID     string             `json:"id,omitzero"`
	Object string             `json:"object,omitzero"`
	Status string             `json:"status,omitzero"` // "in_progress", "completed", "cancelled", "incomplete", "failed"
	Output []ConversationItem `json:"output,omitzero"`
}
