package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Transport carries text frames to and from the upstream service.
type Transport interface {
	// Send writes one text frame.
	Send(ctx context.Context, frame string) error

	// Receive blocks until the next text frame arrives, the transport
	// fails or ctx is done.
	Receive(ctx context.Context) (string, error)

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error)
}

// DialerConfig configures a WebsocketDialer.
type DialerConfig struct {
	// ProxyURL routes connections through an http, https or socks5 proxy.
	ProxyURL string

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
}

// WebsocketDialer opens gorilla/websocket transports.
type WebsocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWebsocketDialer builds a dialer, honoring cfg.ProxyURL.
func NewWebsocketDialer(cfg DialerConfig) (*WebsocketDialer, error) {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if raw := strings.TrimSpace(cfg.ProxyURL); raw != "" {
		if err := applyProxy(d, raw); err != nil {
			return nil, err
		}
	}

	return &WebsocketDialer{dialer: d, writeTimeout: cfg.WriteTimeout}, nil
}

func applyProxy(d *websocket.Dialer, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		socks, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		d.Proxy = nil
		if cd, ok := socks.(proxy.ContextDialer); ok {
			d.NetDialContext = cd.DialContext
		} else {
			d.NetDialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socks.Dial(network, addr)
			}
		}
	case "http", "https":
		d.Proxy = http.ProxyURL(u)
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return nil
}

// Dial opens a websocket connection to rawURL.
func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("websocket upgrade failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsTransport{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// wsTransport adapts a websocket connection. Writes are serialized; Close
// and WriteControl may run concurrently with them.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (t *wsTransport) Send(ctx context.Context, frame string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (t *wsTransport) Receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}
		if typ == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.closeErr = err
		}
	})
	return t.closeErr
}
