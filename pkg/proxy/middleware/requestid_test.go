package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/telemetry/logging"
)

// echoRequestID reports the context request ID in a response header.
func echoRequestID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-ID", GetRequestID(r.Context()))
	})
}

func serveWithID(h http.Handler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDMiddleware(t *testing.T) {
	wrapped := RequestIDMiddleware(echoRequestID())

	t.Run("generates a uuid", func(t *testing.T) {
		rec := serveWithID(wrapped, "")
		id := rec.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.Header().Get("X-Seen-ID"))
	})

	t.Run("keeps client id", func(t *testing.T) {
		rec := serveWithID(wrapped, "client-42")
		assert.Equal(t, "client-42", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "client-42", rec.Header().Get("X-Seen-ID"))
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		long := strings.Repeat("x", maxRequestIDLength+1)
		rec := serveWithID(wrapped, long)
		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, long, got)
		assert.LessOrEqual(t, len(got), maxRequestIDLength)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := serveWithID(wrapped, "").Header().Get(RequestIDHeader)
		b := serveWithID(wrapped, "").Header().Get(RequestIDHeader)
		assert.NotEqual(t, a, b)
	})
}

func TestRequestIDMiddleware_VisibleToLogging(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	serveWithID(h, "trace-me")
	assert.Equal(t, "trace-me", seen)
}

func TestGetRequestID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
