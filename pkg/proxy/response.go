package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// WriteJSONResponse writes data as a JSON body with statusCode.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteRawJSON writes an already encoded JSON document.
func WriteRawJSON(w http.ResponseWriter, statusCode int, body []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error response with the
// status derived from its type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders sets the headers of a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter writes completion chunks as Server-Sent Events. Headers are
// sent with the first event.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	events  int
}

// NewSSEWriter wraps w.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// Started reports whether any event was written.
func (s *SSEWriter) Started() bool {
	return s.started
}

// Events returns the number of events written.
func (s *SSEWriter) Events() int {
	return s.events
}

// WriteChunk writes one chunk event:
//
//	data: {"id":"chatcmpl-dummy","object":"chat.completion.chunk",...}
func (s *SSEWriter) WriteChunk(chunk *types.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	return s.write(data)
}

// WriteDone writes the terminal "[DONE]" marker.
func (s *SSEWriter) WriteDone() error {
	return s.write([]byte("[DONE]"))
}

// WriteError writes an error event for failures after the stream began.
func (s *SSEWriter) WriteError(errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	return s.write(data)
}

func (s *SSEWriter) write(data []byte) error {
	if !s.started {
		SetSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	s.events++

	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
