package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstreamServer mimics the upstream socket endpoint. ack is the frame sent
// after the authentication request; an empty ack never answers.
type upstreamServer struct {
	*httptest.Server
	ack     string
	cookies chan string
	auth    chan string
	pongs   chan string
}

func newUpstreamServer(t *testing.T, ack string) *upstreamServer {
	t.Helper()

	s := &upstreamServer{
		ack:     ack,
		cookies: make(chan string, 1),
		auth:    make(chan string, 1),
		pongs:   make(chan string, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.cookies <- r.Header.Get("Cookie")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"greeting","upgrades":[],"pingInterval":25000}`))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.auth <- string(msg)

		if s.ack == "" {
			// Hold the connection open without answering.
			_, _, _ = conn.ReadMessage()
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(s.ack))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("2"))

		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		s.pongs <- string(msg)
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *upstreamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func newTestHandshaker(t *testing.T, url string, ack time.Duration) *Handshaker {
	t.Helper()
	dialer, err := NewWebsocketDialer(DialerConfig{HandshakeTimeout: time.Second})
	require.NoError(t, err)
	return NewHandshaker(dialer, HandshakerConfig{
		URL:        url,
		UserAgent:  "test-agent",
		Origin:     "https://app.example.com",
		AckTimeout: ack,
	}, nil)
}

func TestHandshaker_Open(t *testing.T) {
	srv := newUpstreamServer(t, `40{"sid":"session-42"}`)
	hs := newTestHandshaker(t, srv.wsURL(), time.Second)

	tr, sid, err := hs.Open(context.Background(), alice)
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, "session-42", sid)
	assert.Equal(t, "token=t; ChatBetterJwt=a", <-srv.cookies)
	assert.Equal(t, `40{"token":"t"}`, <-srv.auth)
}

func TestHandshaker_AckTimeout(t *testing.T) {
	srv := newUpstreamServer(t, "")
	hs := newTestHandshaker(t, srv.wsURL(), 100*time.Millisecond)

	start := time.Now()
	_, _, err := hs.Open(context.Background(), alice)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandshaker_GreetingTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Accept the connection but never greet.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()
	hs := newTestHandshaker(t, "ws"+strings.TrimPrefix(srv.URL, "http"), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, _, err := hs.Open(ctx, alice)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "greeting")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandshaker_UnexpectedAck(t *testing.T) {
	srv := newUpstreamServer(t, `44{"message":"unauthorized"}`)
	hs := newTestHandshaker(t, srv.wsURL(), time.Second)

	_, _, err := hs.Open(context.Background(), alice)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "unexpected acknowledgement")
}

func TestHandshaker_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	hs := newTestHandshaker(t, "ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)

	_, _, err := hs.Open(context.Background(), alice)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "status 404")
}

func TestPool_WithWebsocketTransport(t *testing.T) {
	srv := newUpstreamServer(t, `40{"sid":"live"}`)
	hs := newTestHandshaker(t, srv.wsURL(), time.Second)
	pool := NewPool()
	defer pool.Close()

	ch, err := pool.Get(context.Background(), alice, hs.Open)
	require.NoError(t, err)
	assert.Equal(t, "live", ch.SessionID)

	select {
	case pong := <-srv.pongs:
		assert.Equal(t, "3", pong)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not answer the ping")
	}

	pool.Return(ch)
	<-ch.Done()
}
