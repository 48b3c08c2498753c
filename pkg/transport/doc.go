// Package transport owns the connection to the realtime AI endpoint: it
// negotiates one media+data session and provides ordered send and receive of
// protocol events over it.
//
// A [Session] moves through the states
//
//	Idle → Negotiating → Active → Closed
//
// with an absorbing Error state reachable from Negotiating and Active.
// Negotiation is delegated to a [Connector]: [WebRTC] captures local media,
// exchanges session descriptions with the endpoint over HTTP and opens the
// "oai-events" data channel; [WebSocket] dials the event socket directly; and
// [Pipe] is an in-process connector driven by tests and offline replays.
//
//	s := transport.New(transport.Config{
//	    Provider:  token.NewHTTP("http://localhost:3000/token"),
//	    Connector: transport.NewWebRTC(media, transport.NewSDPExchanger()),
//	    Listener:  engine,
//	})
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Sending outside the Active state never reaches the wire. It is reported as
// a dropped [SendResult] and logged, not returned as an error.
package transport
