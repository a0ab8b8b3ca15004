package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hzcy/chatbetter2api/pkg/protocol"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

// pendingOpen is a handshake in progress for one account key.
type pendingOpen struct {
	done chan struct{}
	err  error
}

// Pool owns the live channels, keyed by account, and the delivery queues,
// keyed by conversation. Both maps are guarded by mu.
type Pool struct {
	mu       sync.Mutex
	channels map[string]*Channel
	pending  map[string]*pendingOpen
	queues   map[string]*Queue

	metrics *metrics.Collector
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMetrics records channel metrics.
func WithMetrics(c *metrics.Collector) PoolOption {
	return func(p *Pool) {
		p.metrics = c
	}
}

// NewPool creates an empty Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		channels: make(map[string]*Channel),
		pending:  make(map[string]*pendingOpen),
		queues:   make(map[string]*Queue),
		logger:   slog.Default().With("component", "channel.pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the live channel for id.Key, opening one with open when none
// exists. Concurrent calls for the same key share one handshake. Every
// successful Get must be paired with one Return.
func (p *Pool) Get(ctx context.Context, id Identity, open OpenFunc) (*Channel, error) {
	for {
		p.mu.Lock()
		if ch := p.channels[id.Key]; ch != nil && !ch.closed() {
			ch.borrowers++
			p.mu.Unlock()
			return ch, nil
		}

		if w := p.pending[id.Key]; w != nil {
			p.mu.Unlock()
			select {
			case <-w.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if w.err != nil {
				return nil, w.err
			}
			// Re-check: the channel may already be gone again.
			continue
		}

		w := &pendingOpen{done: make(chan struct{})}
		p.pending[id.Key] = w
		p.mu.Unlock()

		return p.create(ctx, id, open, w)
	}
}

func (p *Pool) create(ctx context.Context, id Identity, open OpenFunc, w *pendingOpen) (*Channel, error) {
	t, sid, err := open(ctx, id)

	var ch *Channel
	p.mu.Lock()
	delete(p.pending, id.Key)
	if err == nil {
		ch = newChannel(id, sid, t)
		ch.borrowers = 1
		p.channels[id.Key] = ch
	}
	n := len(p.channels)
	w.err = err
	close(w.done)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	p.metrics.SetChannelsOpen(n)
	p.wg.Add(1)
	go p.dispatch(ch)

	return ch, nil
}

// Return gives back a channel obtained from Get. The last borrower closes
// it. Nil channels are ignored.
func (p *Pool) Return(ch *Channel) {
	if ch == nil {
		return
	}

	p.mu.Lock()
	if ch.borrowers > 0 {
		ch.borrowers--
	}
	last := ch.borrowers == 0
	if last && p.channels[ch.Account.Key] == ch {
		delete(p.channels, ch.Account.Key)
	}
	p.mu.Unlock()

	if last && ch.close() {
		p.logger.Debug("channel closed by last borrower", "account", ch.Account.Key)
	}
}

// Subscribe returns the queue for chatID, creating it when needed, and
// binds it to ch so that a failure of ch is delivered to it.
func (p *Pool) Subscribe(ch *Channel, chatID string) *Queue {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(ch.finished, chatID)
	q := p.queueLocked(ch, chatID)
	q.subscribed = true

	// A channel that already died will never fail the queue itself.
	if ch.closed() {
		q.Fail(ErrChannelClosed)
	}
	return q
}

// Unsubscribe drops the queue for chatID. Fragments for chatID that arrive
// later on the same channel are discarded.
func (p *Pool) Unsubscribe(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if q := p.queues[chatID]; q != nil {
		if q.owner != nil {
			delete(q.owner.routes, chatID)
			if !q.owner.closed() {
				q.owner.finished[chatID] = struct{}{}
			}
		}
		delete(p.queues, chatID)
	}
}

func (p *Pool) queueLocked(ch *Channel, chatID string) *Queue {
	q := p.queues[chatID]
	if q == nil {
		q = newQueue(chatID)
		p.queues[chatID] = q
	}
	if q.owner == nil {
		q.owner = ch
	}
	ch.routes[chatID] = struct{}{}
	return q
}

// Len returns the number of live channels.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

// State reports the state of the channel for key.
func (p *Pool) State(key string) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch := p.channels[key]; ch != nil {
		return ch.State()
	}
	if p.pending[key] != nil {
		return StateConnecting
	}
	return StateClosed
}

// Close closes every channel and waits for the dispatchers to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	channels := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		channels = append(channels, ch)
	}
	p.mu.Unlock()

	for _, ch := range channels {
		ch.close()
	}
	p.wg.Wait()
	return nil
}

// dispatch reads frames until the transport fails. Malformed frames are
// skipped.
func (p *Pool) dispatch(ch *Channel) {
	defer p.wg.Done()

	ctx := context.Background()
	var cause error

	for {
		raw, err := ch.transport.Receive(ctx)
		if err != nil {
			cause = err
			break
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			p.metrics.RecordFrame("malformed")
			p.logger.Debug("skipping malformed frame", "account", ch.Account.Key, "error", err)
			continue
		}
		p.metrics.RecordFrame(frame.Kind.String())

		switch frame.Kind {
		case protocol.KindPing:
			if err := ch.transport.Send(ctx, protocol.Pong); err != nil {
				p.logger.Warn("failed to answer ping", "account", ch.Account.Key, "error", err)
			}
		case protocol.KindEvent:
			if frame.Completion != nil && frame.ChatID != "" {
				p.route(ch, frame.ChatID, *frame.Completion)
			}
		}
	}

	p.shutdown(ch, cause)
}

func (p *Pool) route(ch *Channel, chatID string, c protocol.Completion) {
	p.mu.Lock()
	if _, done := ch.finished[chatID]; done {
		p.mu.Unlock()
		p.logger.Debug("dropping fragment for finished chat", "chat_id", chatID, "session_id", ch.SessionID)
		return
	}
	q := p.queueLocked(ch, chatID)
	p.mu.Unlock()

	q.Push(c)
}

// shutdown removes ch from the pool and fails the queues it fed.
func (p *Pool) shutdown(ch *Channel, cause error) {
	byBorrower := ch.closed()
	ch.close()

	var failed []*Queue
	p.mu.Lock()
	if p.channels[ch.Account.Key] == ch {
		delete(p.channels, ch.Account.Key)
	}
	for chatID := range ch.routes {
		q := p.queues[chatID]
		if q == nil || q.owner != ch {
			continue
		}
		if q.subscribed {
			failed = append(failed, q)
		} else {
			// Fragments buffered before anyone subscribed.
			delete(p.queues, chatID)
		}
	}
	ch.routes = make(map[string]struct{})
	ch.finished = make(map[string]struct{})
	remaining := len(p.channels)
	p.mu.Unlock()

	for _, q := range failed {
		q.Fail(ErrChannelClosed)
	}

	reason := closeReason(cause, byBorrower)
	p.metrics.RecordChannelClosed(reason)
	p.metrics.SetChannelsOpen(remaining)

	if reason == "error" {
		p.logger.Warn("channel lost", "account", ch.Account.Key, "error", cause, "queues_failed", len(failed))
	} else {
		p.logger.Debug("channel stopped", "account", ch.Account.Key, "reason", reason)
	}
}

func closeReason(cause error, byBorrower bool) string {
	switch {
	case byBorrower:
		return "returned"
	case errors.Is(cause, io.EOF), websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "remote_closed"
	default:
		return "error"
	}
}
