package channel

import (
	"context"
	"sync"

	"github.com/hzcy/chatbetter2api/pkg/protocol"
)

type delivery struct {
	completion protocol.Completion
	err        error
}

// Queue is an unbounded FIFO of completion fragments for one conversation.
// It has a single producer, the dispatcher, and a single consumer.
type Queue struct {
	chatID string

	mu     sync.Mutex
	items  []delivery
	signal chan struct{}

	// guarded by Pool.mu
	owner      *Channel
	subscribed bool
}

func newQueue(chatID string) *Queue {
	return &Queue{
		chatID: chatID,
		signal: make(chan struct{}, 1),
	}
}

// ChatID returns the conversation the queue belongs to.
func (q *Queue) ChatID() string {
	return q.chatID
}

// Len returns the number of buffered fragments.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) push(d delivery) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Push appends a fragment.
func (q *Queue) Push(c protocol.Completion) {
	q.push(delivery{completion: c})
}

// Fail appends a terminal error. Pop returns it after the fragments
// buffered before it.
func (q *Queue) Fail(err error) {
	q.push(delivery{err: err})
}

// Pop blocks until a fragment is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (protocol.Completion, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := q.items[0]
			q.items[0] = delivery{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return d.completion, d.err
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return protocol.Completion{}, ctx.Err()
		}
	}
}
