package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/protocol"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

// OpenFunc opens and authenticates a transport for id, returning the
// upstream session id.
type OpenFunc func(ctx context.Context, id Identity) (Transport, string, error)

// HandshakerConfig configures a Handshaker.
type HandshakerConfig struct {
	// URL is the websocket endpoint.
	URL string

	// UserAgent is sent on the upgrade request.
	UserAgent string

	// Origin is sent on the upgrade request.
	Origin string

	// AckTimeout bounds the wait for the connect acknowledgement.
	// Default: 5s
	AckTimeout time.Duration
}

// Handshaker performs the connect and authenticate sequence. Its Open
// method is an OpenFunc.
type Handshaker struct {
	dialer  Dialer
	cfg     HandshakerConfig
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewHandshaker creates a Handshaker that dials through dialer.
func NewHandshaker(dialer Dialer, cfg HandshakerConfig, collector *metrics.Collector) *Handshaker {
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Handshaker{
		dialer:  dialer,
		cfg:     cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "channel.handshake"),
	}
}

// Open dials the endpoint with identity headers, discards the greeting,
// sends the authentication frame and waits for the acknowledgement. On any
// failure the transport is closed and the error wraps ErrHandshakeFailed.
func (h *Handshaker) Open(ctx context.Context, id Identity) (Transport, string, error) {
	start := time.Now()

	header := http.Header{}
	if h.cfg.UserAgent != "" {
		header.Set("User-Agent", h.cfg.UserAgent)
	}
	if h.cfg.Origin != "" {
		header.Set("Origin", h.cfg.Origin)
	}
	header.Set("Cookie", fmt.Sprintf("token=%s; ChatBetterJwt=%s", id.Token, id.AccessToken))

	h.logger.DebugContext(ctx, "opening channel", "account", id.Key, "state", StateConnecting.String())
	t, err := h.dialer.Dial(ctx, h.cfg.URL, header)
	if err != nil {
		h.metrics.RecordHandshake("dial_error", time.Since(start))
		return nil, "", fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	h.logger.DebugContext(ctx, "authenticating channel", "account", id.Key, "state", StateAuthenticating.String())
	sid, err := h.authenticate(ctx, t, id.Token)
	if err != nil {
		_ = t.Close()
		h.metrics.RecordHandshake("auth_error", time.Since(start))
		h.logger.WarnContext(ctx, "channel authentication failed", "account", id.Key, "error", err)
		return nil, "", fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	h.metrics.RecordHandshake("success", time.Since(start))
	h.logger.InfoContext(ctx, "channel ready",
		"account", id.Key,
		"session_id", sid,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return t, sid, nil
}

func (h *Handshaker) authenticate(ctx context.Context, t Transport, token string) (string, error) {
	// The unauthenticated greeting carries nothing we need.
	greetCtx, cancelGreet := context.WithTimeout(ctx, h.cfg.AckTimeout)
	_, err := t.Receive(greetCtx)
	cancelGreet()
	if err != nil {
		return "", fmt.Errorf("failed to read greeting: %w", err)
	}

	ackCtx, cancel := context.WithTimeout(ctx, h.cfg.AckTimeout)
	defer cancel()

	if err := t.Send(ackCtx, protocol.EncodeAuth(token)); err != nil {
		return "", fmt.Errorf("failed to send authentication: %w", err)
	}

	raw, err := t.Receive(ackCtx)
	if err != nil {
		return "", fmt.Errorf("no acknowledgement: %w", err)
	}

	frame, err := protocol.Decode(raw)
	if err != nil || frame.Kind != protocol.KindConnectAck || frame.SessionID == "" {
		return "", fmt.Errorf("unexpected acknowledgement %q", truncate(raw, 64))
	}
	return frame.SessionID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
