package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("sets deadline on request context", func(t *testing.T) {
		var deadline time.Time
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, _ = r.Context().Deadline()
		})

		TimeoutMiddleware(time.Minute)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if deadline.IsZero() || time.Until(deadline) > time.Minute {
			t.Errorf("Unexpected deadline %v", deadline)
		}
	})

	t.Run("handler observes expiry", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			if !errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				t.Errorf("Expected deadline exceeded, got %v", r.Context().Err())
			}
			w.WriteHeader(http.StatusGatewayTimeout)
		})

		w := httptest.NewRecorder()
		TimeoutMiddleware(20*time.Millisecond)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusGatewayTimeout {
			t.Errorf("Status code = %d, want 504", w.Code)
		}
	})

	t.Run("zero timeout disables the deadline", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				t.Error("Expected no deadline")
			}
		})

		TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
