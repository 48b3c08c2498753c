package reconcile

import "github.com/haivivi/rolecoach/pkg/realtime"

type utterance struct {
	speaker Speaker
	key     string
	text    string
}

// extract returns the utterances described by a server event. Kinds that
// describe no utterance yield nothing without decoding the payload.
func extract(ev realtime.Event) ([]utterance, error) {
	switch ev.Type {
	case realtime.EventTypeResponseDone,
		realtime.EventTypeResponseAudioTranscriptDone,
		realtime.EventTypeResponseOutputItemDone,
		realtime.EventTypeConversationItemCreated,
		realtime.EventTypeConversationItemInputAudioTranscriptionCompleted:
	default:
		return nil, nil
	}

	se, err := ev.Decode()
	if err != nil {
		return nil, err
	}

	switch se.Type {
	case realtime.EventTypeResponseDone:
		if se.Response == nil {
			return nil, nil
		}
		var out []utterance
		for i := range se.Response.Output {
			item := &se.Response.Output[i]
			if item.Role != realtime.RoleAssistant {
				continue
			}
			out = append(out, utterance{Counterparty, item.ID, item.Text()})
		}
		return out, nil

	case realtime.EventTypeResponseAudioTranscriptDone:
		return []utterance{{Counterparty, se.ItemID, se.Transcript}}, nil

	case realtime.EventTypeResponseOutputItemDone:
		if se.Item == nil || se.Item.Role != realtime.RoleAssistant {
			return nil, nil
		}
		return []utterance{{Counterparty, se.Item.ID, se.Item.Text()}}, nil

	case realtime.EventTypeConversationItemCreated:
		if se.Item == nil {
			return nil, nil
		}
		switch se.Item.Role {
		case realtime.RoleAssistant:
			return []utterance{{Counterparty, se.Item.ID, se.Item.Text()}}, nil
		case realtime.RoleUser:
			return []utterance{{Operator, se.Item.ID, se.Item.Text()}}, nil
		}
		return nil, nil

	case realtime.EventTypeConversationItemInputAudioTranscriptionCompleted:
		return []utterance{{Operator, se.ItemID, se.Transcript}}, nil
	}
	return nil, nil
}
