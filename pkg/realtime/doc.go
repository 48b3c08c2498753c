// Package realtime defines the wire protocol spoken over the realtime event
// channel of a conversational AI endpoint.
//
// Every message is a JSON object carrying at least a "type" tag. Client
// messages are built with the helpers in this package and serialized as
// [ClientEvent]; inbound messages are parsed into [Event], which keeps the
// exact wire bytes and can be decoded into a [ServerEvent] on demand.
//
//	ev, err := realtime.ParseEvent(data)
//	if err != nil {
//	    // errors.Is(err, realtime.ErrMalformedEvent)
//	    return err
//	}
//	if ev.Direction() == realtime.DirectionServer && ev.Type == realtime.EventTypeSessionCreated {
//	    send(realtime.SessionUpdate(&realtime.SessionConfig{Instructions: "..."}))
//	}
//
// Event identifiers assigned by the server carry the "event_" prefix; any
// other non-empty identifier was assigned locally. The direction of an event
// is derived from that convention.
package realtime
