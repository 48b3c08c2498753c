package transport

import (
	"context"

	"github.com/haivivi/rolecoach/pkg/token"
)

// DataChannelLabel is the label of the realtime event data channel.
const DataChannelLabel = "oai-events"

// Handler receives connection signals from a Connector. Callbacks may run on
// any goroutine. OnMessage is never called before OnOpen.
type Handler struct {
	// OnOpen is called once when the event channel opens. It may fire
	// before Connect returns.
	OnOpen func()

	// OnMessage is called for every inbound channel message.
	OnMessage func(data []byte)

	// OnFailure is called when an established or establishing connection
	// breaks. It is also called after Link.Close on some transports; the
	// session ignores it then.
	OnFailure func(err error)
}

// Link is a negotiated connection.
type Link interface {
	// Send transmits one event payload.
	Send(data []byte) error

	// Close stops local media, closes the event channel and the connection.
	// It is safe to call more than once.
	Close() error
}

// Connector negotiates a Link for a credential.
type Connector interface {
	Connect(ctx context.Context, cred token.Credential, h Handler) (Link, error)
}
