package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

func TestRecoveryMiddleware_Panics(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "string", value: "pool exhausted"},
		{name: "error", value: errors.New("nil map write")},
		{name: "struct", value: struct{ ID int }{ID: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLogs(t)
			h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			var body types.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, types.ErrorTypeServerError, body.Error.Type)
			assert.NotContains(t, rec.Body.String(), "nil map write")
			assert.NotContains(t, rec.Body.String(), "pool exhausted")
		})
	}
}

func TestRecoveryMiddleware_LogsStack(t *testing.T) {
	buf := captureLogs(t)
	h := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set(RequestIDHeader, "req-panic")
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := lastRecord(t, buf)
	assert.Equal(t, "panic in handler", rec["msg"])
	assert.Equal(t, "req-panic", rec["request_id"])
	assert.NotEmpty(t, rec["stack"])
}

func TestRecoveryMiddleware_PassThrough(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRecoveryMiddleware_ReraisesAbort(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
