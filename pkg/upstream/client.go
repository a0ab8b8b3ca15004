package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

// Breaker families. Endpoints in one family share a breaker.
const (
	familyChat   = "chat"
	familyAuth   = "auth"
	familyModels = "models"
	familyFiles  = "files"
)

const (
	maxErrorBody = 512
	maxBody      = 64 << 20
)

// Client calls the ChatBetter HTTP API.
type Client struct {
	hc        *http.Client
	baseURL   string
	authURL   string
	userAgent string
	timeout   time.Duration
	breakers  map[string]*gobreaker.CircuitBreaker
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the proxy settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client from cfg.
func New(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authURL:   strings.TrimRight(cfg.AuthURL, "/"),
		userAgent: cfg.UserAgent,
		timeout:   cfg.RequestTimeout,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		logger:    slog.Default().With("component", "upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.hc == nil {
		hc, err := NewHTTPClient(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		c.hc = hc
	}

	for _, family := range []string{familyChat, familyAuth, familyModels, familyFiles} {
		c.breakers[family] = c.newBreaker(family, cfg.Breaker)
	}
	return c, nil
}

func (c *Client) newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if cfg.Disabled || threshold == 0 {
		threshold = ^uint32(0)
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors are the caller's problem, not an outage.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.metrics.SetBreakerState(name, int(to))
			c.logger.Warn("upstream breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerStates returns the state of every breaker by family.
func (c *Client) BreakerStates() map[string]string {
	states := make(map[string]string, len(c.breakers))
	for name, b := range c.breakers {
		states[name] = b.State().String()
	}
	return states
}

// result is a fully read response.
type result struct {
	status  int
	header  http.Header
	cookies []*http.Cookie
	body    []byte
}

type call struct {
	endpoint string
	family   string
	method   string
	url      string
	body     any
	header   http.Header
}

func (c *Client) do(ctx context.Context, cl call) (*result, error) {
	var reader io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", cl.endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", cl.endpoint, err)
	}
	for k, v := range cl.header {
		req.Header[k] = v
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if cl.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	out, err := c.breakers[cl.family].Execute(func() (interface{}, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		r := &result{status: resp.StatusCode, header: resp.Header, cookies: resp.Cookies(), body: data}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return r, &StatusError{Endpoint: cl.endpoint, StatusCode: resp.StatusCode, Body: snippet(data)}
		}
		return r, nil
	})
	duration := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.RecordUpstreamRequest(cl.endpoint, "circuit_open", duration)
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, cl.endpoint, err)
	}

	status := "error"
	var r *result
	if out != nil {
		r = out.(*result)
		status = strconv.Itoa(r.status)
	}
	c.metrics.RecordUpstreamRequest(cl.endpoint, status, duration)

	if err != nil {
		c.logger.DebugContext(ctx, "upstream call failed",
			"endpoint", cl.endpoint,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		var se *StatusError
		if errors.As(err, &se) {
			return r, err
		}
		return nil, fmt.Errorf("upstream %s: %w", cl.endpoint, err)
	}
	return r, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) appHeader(auth Auth) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+auth.Token)
	h.Set("Cookie", fmt.Sprintf("token=%s; ChatBetterJwt=%s", auth.Token, auth.AccessToken))
	return h
}

func (c *Client) browserHeader() http.Header {
	h := http.Header{}
	h.Set("Origin", c.baseURL)
	h.Set("Referer", c.baseURL+"/")
	return h
}

// CreateChat opens a new conversation carrying chat as its history.
func (c *Client) CreateChat(ctx context.Context, auth Auth, chat NewChat) (*CreatedChat, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	r, err := c.do(ctx, call{
		endpoint: "create_chat",
		family:   familyChat,
		method:   http.MethodPost,
		url:      c.baseURL + "/api/v1/chats/new",
		body:     map[string]any{"chat": chat},
		header:   c.appHeader(auth),
	})
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(r.body, "id").String()
	if id == "" {
		return nil, fmt.Errorf("%w: create_chat response has no id", ErrMalformedResponse)
	}
	return &CreatedChat{
		ID:        id,
		CurrentID: gjson.GetBytes(r.body, "chat.history.currentId").String(),
	}, nil
}

// PatchChat submits a turn to conversation chatID.
func (c *Client) PatchChat(ctx context.Context, auth Auth, chatID string, patch ChatPatch) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.do(ctx, call{
		endpoint: "patch_chat",
		family:   familyChat,
		method:   http.MethodPatch,
		url:      c.baseURL + "/api/v1/chats/" + url.PathEscape(chatID),
		body:     patch,
		header:   c.appHeader(auth),
	})
	return err
}

// SilentRefresh exchanges a stored cookie set for a new access token.
func (c *Client) SilentRefresh(ctx context.Context, cookies map[string]string) (*SilentGrant, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	h := c.browserHeader()
	h.Set("Cookie", cookieHeader(cookies))

	r, err := c.do(ctx, call{
		endpoint: "silent_refresh",
		family:   familyAuth,
		method:   http.MethodPost,
		url:      c.authURL + "/frontegg/oauth/authorize/silent",
		body:     map[string]any{"tenantId": nil},
		header:   h,
	})
	if err != nil {
		return nil, err
	}

	token := gjson.GetBytes(r.body, "access_token").String()
	if token == "" {
		return nil, fmt.Errorf("%w: silent refresh returned no access_token", ErrMalformedResponse)
	}

	grant := &SilentGrant{AccessToken: token, Cookies: make(map[string]string, len(r.cookies))}
	for _, ck := range r.cookies {
		grant.Cookies[ck.Name] = ck.Value
	}
	return grant, nil
}

// SignIn derives the primary token from an access token.
func (c *Client) SignIn(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	h := c.browserHeader()
	h.Set("Cookie", "ChatBetterJwt="+accessToken)

	r, err := c.do(ctx, call{
		endpoint: "signin",
		family:   familyAuth,
		method:   http.MethodPost,
		url:      c.baseURL + "/api/v1/auths/signin",
		body:     map[string]string{"email": "", "password": ""},
		header:   h,
	})
	if err != nil {
		return nil, err
	}
	return parseIdentity("signin", r.body)
}

// AuthInfo fetches the account information for auth.
func (c *Client) AuthInfo(ctx context.Context, auth Auth) (*Identity, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	r, err := c.do(ctx, call{
		endpoint: "auth_info",
		family:   familyAuth,
		method:   http.MethodGet,
		url:      c.baseURL + "/api/v1/auths/",
		header:   c.appHeader(auth),
	})
	if err != nil {
		return nil, err
	}
	return parseIdentity("auth_info", r.body)
}

func parseIdentity(endpoint string, body []byte) (*Identity, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s body is not JSON", ErrMalformedResponse, endpoint)
	}
	return &Identity{
		Token:       gjson.GetBytes(body, "token").String(),
		AccountType: gjson.GetBytes(body, "account_type").String(),
		Raw:         json.RawMessage(body),
	}, nil
}

// Models returns the raw model list document.
func (c *Client) Models(ctx context.Context, auth Auth) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	r, err := c.do(ctx, call{
		endpoint: "models",
		family:   familyModels,
		method:   http.MethodGet,
		url:      c.baseURL + "/api/v1/models",
		header:   c.appHeader(auth),
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(r.body) {
		return nil, fmt.Errorf("%w: model list is not JSON", ErrMalformedResponse)
	}
	return r.body, nil
}

// FileContent downloads the content of an upstream file. The caller bounds
// the call with ctx.
func (c *Client) FileContent(ctx context.Context, auth Auth, fileID string) ([]byte, error) {
	r, err := c.do(ctx, call{
		endpoint: "file_content",
		family:   familyFiles,
		method:   http.MethodGet,
		url:      c.baseURL + "/api/v1/files/" + url.PathEscape(fileID) + "/content",
		header:   c.appHeader(auth),
	})
	if err != nil {
		return nil, err
	}
	return r.body, nil
}

// cookieHeader renders cookies in name order.
func cookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
