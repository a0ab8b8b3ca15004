package proxy

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

func TestWriteJSONResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	resp := &types.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Object:  types.ObjectCompletion,
		Created: 1700000000,
		Model:   "gpt-5",
		Choices: []types.Choice{{
			Message:      types.ResponseMessage{Role: "assistant", Content: "hi"},
			FinishReason: types.FinishReasonStop,
		}},
	}
	if err := WriteJSONResponse(rec, http.StatusOK, resp); err != nil {
		t.Fatalf("WriteJSONResponse() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if _, ok := decoded["usage"]; ok {
		t.Error("Expected usage to be omitted when upstream reported none")
	}
}

func TestWriteRawJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	raw := []byte(`{"data":[{"id":"gpt-5"}]}`)

	if err := WriteRawJSON(rec, http.StatusOK, raw); err != nil {
		t.Fatalf("WriteRawJSON() error = %v", err)
	}
	if rec.Body.String() != string(raw) {
		t.Errorf("Body = %q, want %q", rec.Body.String(), raw)
	}
}

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		errResp    *types.ErrorResponse
		wantStatus int
	}{
		{name: "invalid request", errResp: types.NewInvalidRequestError("bad", "messages", types.CodeMissingField), wantStatus: http.StatusBadRequest},
		{name: "authentication", errResp: types.NewAuthenticationError("Invalid admin password"), wantStatus: http.StatusUnauthorized},
		{name: "not found", errResp: types.NewNotFoundError("Token not found"), wantStatus: http.StatusNotFound},
		{name: "bad gateway", errResp: types.NewBadGatewayError("Patch chat failed"), wantStatus: http.StatusBadGateway},
		{name: "unavailable", errResp: types.NewServiceUnavailableError("later", types.CodeNoAccount), wantStatus: http.StatusServiceUnavailable},
		{name: "server error", errResp: types.NewServerError("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := WriteErrorResponse(rec, tt.errResp); err != nil {
				t.Fatalf("WriteErrorResponse() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var decoded types.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if decoded.Error.Message != tt.errResp.Error.Message {
				t.Errorf("Message = %q, want %q", decoded.Error.Message, tt.errResp.Error.Message)
			}
		})
	}
}

// readEvents returns the data payloads of the SSE events in body.
func readEvents(t *testing.T, body string) []string {
	t.Helper()

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	if w.Started() {
		t.Fatal("Expected writer not to be started before the first event")
	}

	content := "Hello"
	stop := types.FinishReasonStop
	chunks := []*types.ChatCompletionChunk{
		{ID: types.StreamID, Object: types.ObjectChunk, Model: "gpt-5", Choices: []types.StreamChoice{{Delta: types.Delta{Role: "assistant"}}}},
		{ID: types.StreamID, Object: types.ObjectChunk, Model: "gpt-5", Choices: []types.StreamChoice{{Delta: types.Delta{Content: &content}}}},
		{ID: types.StreamID, Object: types.ObjectChunk, Model: "gpt-5", Choices: []types.StreamChoice{{FinishReason: &stop}}},
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c); err != nil {
			t.Fatalf("WriteChunk() error = %v", err)
		}
	}
	if err := w.WriteDone(); err != nil {
		t.Fatalf("WriteDone() error = %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}
	if !rec.Flushed {
		t.Error("Expected events to be flushed")
	}
	if w.Events() != 4 {
		t.Errorf("Expected 4 events, got %d", w.Events())
	}

	events := readEvents(t, rec.Body.String())
	if len(events) != 4 || events[3] != "[DONE]" {
		t.Fatalf("Unexpected events: %v", events)
	}

	var chunk map[string]interface{}
	if err := json.Unmarshal([]byte(events[1]), &chunk); err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}
	if chunk["id"] != types.StreamID || chunk["object"] != types.ObjectChunk {
		t.Errorf("Unexpected chunk header: %v", chunk)
	}
	if _, ok := chunk["usage"]; !ok {
		t.Error("Expected usage key to be present as null")
	}
	choice := chunk["choices"].([]interface{})[0].(map[string]interface{})
	if _, ok := choice["finish_reason"]; !ok {
		t.Error("Expected finish_reason key to be present")
	}
	delta := choice["delta"].(map[string]interface{})
	if delta["content"] != "Hello" {
		t.Errorf("Expected delta content Hello, got %v", delta["content"])
	}
}

func TestSSEWriter_WriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	if err := w.WriteError(HandleError(errors.New("boom"))); err != nil {
		t.Fatalf("WriteError() error = %v", err)
	}

	events := readEvents(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %v", events)
	}
	if !strings.Contains(events[0], `"type":"server_error"`) {
		t.Errorf("Expected server_error event, got %s", events[0])
	}
}
