package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/proxy/handlers"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/health"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

const password = "s3cret"

type staticModels string

func (m staticModels) Raw() ([]byte, error) { return []byte(m), nil }

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img.png"), []byte("\x89PNG\r\n\x1a\n"), 0o644))

	deps := Deps{
		Completer: handlers.CompleterFunc(func(context.Context, *types.ChatCompletionRequest) (handlers.Conversation, error) {
			return nil, accounts.ErrNoAvailableAccount
		}),
		Models: staticModels(`{"object":"list","data":[]}`),
		Admin: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Admin-Path", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}),
		FilesDir:    dir,
		Health:      health.New(time.Second),
		Version:     health.VersionInfo{Version: "test"},
		Metrics:     metrics.NewCollector(&config.MetricsConfig{Namespace: "t", Subsystem: "s"}, nil),
		MetricsPath: "/metrics",
	}

	cfg := config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		WriteTimeout:    time.Minute,
		ShutdownTimeout: time.Second,
		CORS:            config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
	}
	return NewServer(cfg, config.AuthConfig{AdminPassword: password}, deps), dir
}

func do(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+password)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	chatBody := `{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		authed bool
		want   int
	}{
		{name: "chat requires auth", method: http.MethodPost, path: "/v1/chat/completions", body: chatBody, want: http.StatusUnauthorized},
		{name: "chat without accounts", method: http.MethodPost, path: "/v1/chat/completions", body: chatBody, authed: true, want: http.StatusServiceUnavailable},
		{name: "chat wrong method", method: http.MethodGet, path: "/v1/chat/completions", authed: true, want: http.StatusMethodNotAllowed},
		{name: "models requires auth", method: http.MethodGet, path: "/v1/models", want: http.StatusUnauthorized},
		{name: "models", method: http.MethodGet, path: "/v1/models", authed: true, want: http.StatusOK},
		{name: "admin requires auth", method: http.MethodGet, path: "/api/tokens/1", want: http.StatusUnauthorized},
		{name: "admin root", method: http.MethodGet, path: "/api/tokens", authed: true, want: http.StatusTeapot},
		{name: "admin subtree", method: http.MethodPut, path: "/api/tokens/1/increment", authed: true, want: http.StatusTeapot},
		{name: "files are public", method: http.MethodGet, path: "/files/img.png", want: http.StatusOK},
		{name: "missing file", method: http.MethodGet, path: "/files/none.png", want: http.StatusNotFound},
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "ready", method: http.MethodGet, path: "/ready", want: http.StatusOK},
		{name: "version", method: http.MethodGet, path: "/version", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "unknown", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, tt.authed)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_AdminSeesFullPath(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/tokens/available", "", true)
	assert.Equal(t, "/api/tokens/available", rec.Header().Get("X-Admin-Path"))
}

func TestServer_MiddlewareChain(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_OptionalRoutes(t *testing.T) {
	srv := NewServer(config.ServerConfig{}, config.AuthConfig{AdminPassword: password}, Deps{})
	h := srv.Handler()

	for _, path := range []string{"/v1/models", "/api/tokens", "/health", "/metrics", "/files/a.png"} {
		rec := do(t, h, http.MethodGet, path, "", true)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := testServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, srv.IsRunning())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestServer_StartRejectsBadAddress(t *testing.T) {
	srv := NewServer(config.ServerConfig{ListenAddress: "256.0.0.1:-1"}, config.AuthConfig{}, Deps{})
	assert.Error(t, srv.Start(context.Background()))
}
