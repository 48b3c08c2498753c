package trainer

import (
	"sync"

	"github.com/haivivi/rolecoach/pkg/realtime"
	"github.com/haivivi/rolecoach/pkg/transport"
)

// item is one unit of work for the engine loop. Exactly one of state,
// event and barrier is set.
type item struct {
	gen     uint64
	state   *transport.State
	event   *realtime.Event
	barrier chan struct{}
}

// queue is an unbounded FIFO. Pushing never blocks, so transport callbacks
// and sends made from inside the loop cannot deadlock against it.
type queue struct {
	mu     sync.Mutex
	items  []item
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(it item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued.
func (q *queue) take() []item {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// sessionListener tags a session's callbacks with its generation.
type sessionListener struct {
	q   *queue
	gen uint64
}

func (l sessionListener) HandleState(st transport.State) {
	l.q.push(item{gen: l.gen, state: &st})
}

func (l sessionListener) HandleEvent(ev realtime.Event) {
	l.q.push(item{gen: l.gen, event: &ev})
}
