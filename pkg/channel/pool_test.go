package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Frames written to in are
// received by the dispatcher; frames the pool sends appear on out.
type fakeTransport struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan string, 16),
		out:    make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, frame string) error {
	select {
	case f.out <- frame:
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Receive(ctx context.Context) (string, error) {
	select {
	case s := <-f.in:
		return s, nil
	case <-f.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeOpener counts handshakes and hands out fake transports.
type fakeOpener struct {
	calls      atomic.Int32
	gate       chan struct{}
	err        error
	mu         sync.Mutex
	transports []*fakeTransport
}

func (o *fakeOpener) open(ctx context.Context, id Identity) (Transport, string, error) {
	o.calls.Add(1)
	if o.gate != nil {
		select {
		case <-o.gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if o.err != nil {
		return nil, "", o.err
	}
	t := newFakeTransport()
	o.mu.Lock()
	o.transports = append(o.transports, t)
	o.mu.Unlock()
	return t, "sid-" + id.Key, nil
}

func (o *fakeOpener) last() *fakeTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transports[len(o.transports)-1]
}

var alice = Identity{Key: "alice@example.com", ID: 1, Token: "t", AccessToken: "a"}

func TestPool_ConcurrentGetSharesOneHandshake(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{gate: make(chan struct{})}

	const callers = 8
	results := make(chan *Channel, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := pool.Get(context.Background(), alice, opener.open)
			assert.NoError(t, err)
			results <- ch
		}()
	}

	// Hold the handshake open while the callers pile up.
	require.Eventually(t, func() bool { return pool.State(alice.Key) == StateConnecting }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(opener.gate)
	wg.Wait()
	close(results)

	var first *Channel
	for ch := range results {
		if first == nil {
			first = ch
		}
		assert.Same(t, first, ch)
	}
	assert.Equal(t, int32(1), opener.calls.Load(), "exactly one handshake")
	assert.Equal(t, "sid-alice@example.com", first.SessionID)
	assert.Equal(t, alice.ID, first.Account.ID)
	assert.Equal(t, StateReady, first.State())
}

func TestPool_LastReturnCloses(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{}
	ctx := context.Background()

	a, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	b, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	require.Same(t, a, b)
	transport := opener.last()

	pool.Return(a)
	assert.False(t, transport.isClosed(), "a borrower is still using the channel")
	assert.Equal(t, 1, pool.Len())

	pool.Return(b)
	assert.True(t, transport.isClosed())
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, pool.Len())

	c, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), opener.calls.Load())

	pool.Return(nil)
}

func TestPool_AnswersPing(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{}

	ch, err := pool.Get(context.Background(), alice, opener.open)
	require.NoError(t, err)
	defer pool.Return(ch)

	opener.last().in <- "2"
	select {
	case frame := <-opener.last().out:
		assert.Equal(t, "3", frame)
	case <-time.After(time.Second):
		t.Fatal("ping was not answered")
	}
}

func TestPool_RoutesFragmentsByChat(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	defer pool.Return(ch)

	q1 := pool.Subscribe(ch, "chat-1")
	q2 := pool.Subscribe(ch, "chat-2")
	defer pool.Unsubscribe("chat-1")
	defer pool.Unsubscribe("chat-2")

	tr := opener.last()
	tr.in <- `42["chat-events",{"chat_id":"chat-1","data":{"type":"chat:completion","data":{"content":"A"}}}]`
	tr.in <- `42not-json`
	tr.in <- `42["chat-events",{"chat_id":"chat-2","data":{"type":"chat:completion","data":{"content":"x"}}}]`
	tr.in <- `42["chat-events",{"chat_id":"chat-1","data":{"type":"chat:completion","data":{"content":"AB","done":true}}}]`

	got, err := q1.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Content)

	got, err = q1.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AB", got.Content)
	assert.True(t, got.Done)

	got, err = q2.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
	assert.Equal(t, StateReady, ch.State(), "a malformed frame does not kill the channel")
}

func TestPool_DropsFragmentsAfterUnsubscribe(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	defer pool.Return(ch)

	q := pool.Subscribe(ch, "chat-old")
	tr := opener.last()
	tr.in <- `42["chat-events",{"chat_id":"chat-old","data":{"type":"chat:completion","data":{"content":"A","done":true}}}]`
	_, err = q.Pop(ctx)
	require.NoError(t, err)
	pool.Unsubscribe("chat-old")

	// A straggler for the finished chat followed by a live fragment.
	live := pool.Subscribe(ch, "chat-new")
	defer pool.Unsubscribe("chat-new")
	tr.in <- `42["chat-events",{"chat_id":"chat-old","data":{"type":"chat:completion","data":{"content":"AB"}}}]`
	tr.in <- `42["chat-events",{"chat_id":"chat-new","data":{"type":"chat:completion","data":{"content":"x"}}}]`

	got, err := live.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)

	pool.mu.Lock()
	_, stale := pool.queues["chat-old"]
	_, routed := ch.routes["chat-old"]
	pool.mu.Unlock()
	assert.False(t, stale, "no queue is recreated for a finished chat")
	assert.False(t, routed)
}

func TestPool_TransportFailureUnblocksConsumers(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	q := pool.Subscribe(ch, "chat-1")

	popped := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		popped <- err
	}()

	// Remote side drops the connection.
	opener.last().Close()

	select {
	case err := <-popped:
		assert.ErrorIs(t, err, ErrChannelClosed)
	case <-ctx.Done():
		t.Fatal("consumer was not unblocked")
	}

	require.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, time.Millisecond)
	<-ch.Done()

	// Returning a dead channel is harmless and the next Get reconnects.
	pool.Return(ch)
	pool.Unsubscribe("chat-1")
	next, err := pool.Get(ctx, alice, opener.open)
	require.NoError(t, err)
	assert.NotSame(t, ch, next)
	pool.Return(next)
}

func TestPool_SubscribeToClosedChannel(t *testing.T) {
	pool := NewPool()
	opener := &fakeOpener{}

	ch, err := pool.Get(context.Background(), alice, opener.open)
	require.NoError(t, err)
	pool.Return(ch)

	q := pool.Subscribe(ch, "late")
	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
	require.NoError(t, pool.Close())
}

func TestPool_HandshakeFailureIsShared(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	boom := errors.New("boom")
	opener := &fakeOpener{gate: make(chan struct{}), err: boom}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := pool.Get(context.Background(), alice, opener.open)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return pool.State(alice.Key) == StateConnecting }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(opener.gate)

	assert.ErrorIs(t, <-errs, boom)
	assert.ErrorIs(t, <-errs, boom)
	assert.Equal(t, StateClosed, pool.State(alice.Key))

	// A later Get retries the handshake.
	opener.err = nil
	ch, err := pool.Get(context.Background(), alice, opener.open)
	require.NoError(t, err)
	pool.Return(ch)
}

func TestPool_GetHonorsContextWhileWaiting(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	opener := &fakeOpener{gate: make(chan struct{})}

	first := make(chan *Channel, 1)
	go func() {
		ch, _ := pool.Get(context.Background(), alice, opener.open)
		first <- ch
	}()
	require.Eventually(t, func() bool { return pool.State(alice.Key) == StateConnecting }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Get(ctx, alice, opener.open)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(opener.gate)
	pool.Return(<-first)
}
