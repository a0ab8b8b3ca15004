package channel

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrHandshakeFailed is returned when a channel cannot be opened or
	// authenticated.
	ErrHandshakeFailed = errors.New("channel handshake failed")

	// ErrChannelClosed is delivered to queue consumers when the channel
	// feeding them goes away.
	ErrChannelClosed = errors.New("channel closed")
)

// State is the lifecycle stage of a Channel.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "closed"
	}
}

// Identity is the account material a channel is opened with.
type Identity struct {
	// Key identifies the account in the pool.
	Key string

	// ID is the account's store id.
	ID int64

	// Token is the primary bearer token.
	Token string

	// AccessToken is the short-lived access token.
	AccessToken string
}

// Channel is one authenticated connection bound to one account.
type Channel struct {
	// SessionID is the upstream session assigned during authentication.
	SessionID string

	// Account is the identity the channel was opened with.
	Account Identity

	transport Transport
	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Pool.mu
	borrowers int
	routes    map[string]struct{}
	finished  map[string]struct{}
}

func newChannel(id Identity, sessionID string, t Transport) *Channel {
	ch := &Channel{
		SessionID: sessionID,
		Account:   id,
		transport: t,
		done:      make(chan struct{}),
		routes:    make(map[string]struct{}),
		finished:  make(map[string]struct{}),
	}
	ch.state.Store(int32(StateReady))
	return ch
}

// State returns the current lifecycle stage.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) closed() bool {
	return c.State() == StateClosed
}

// close marks the channel closed and releases the transport. It reports
// whether this call performed the close.
func (c *Channel) close() bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.state.Store(int32(StateClosed))
		close(c.done)
		_ = c.transport.Close()
	})
	return first
}
