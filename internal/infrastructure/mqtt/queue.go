package mqtt

import (
	"container/list"
	"sync"
)

// OutboundMessage is a composed message waiting for delivery.
type OutboundMessage struct {
	Topic       string
	Payload     []byte
	ContentType ContentType
	Retain      bool
}

// queue is the FIFO of messages not yet confirmed by the broker.
// A message leaves the queue only when popped for sending; a failed send
// puts it back at the head.
type queue struct {
	mu    sync.Mutex
	items *list.List
}

func newQueue() *queue {
	return &queue{items: list.New()}
}

func (q *queue) Push(msg OutboundMessage) {
	q.mu.Lock()
	q.items.PushBack(msg)
	q.mu.Unlock()
}

func (q *queue) PushFront(msg OutboundMessage) {
	q.mu.Lock()
	q.items.PushFront(msg)
	q.mu.Unlock()
}

func (q *queue) Pop() (OutboundMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.items.Front()
	if e == nil {
		return OutboundMessage{}, false
	}
	q.items.Remove(e)
	return e.Value.(OutboundMessage), true //nolint:forcetypeassert // only OutboundMessage is stored
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
