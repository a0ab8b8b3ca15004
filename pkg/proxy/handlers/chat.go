package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/proxy"
	"github.com/hzcy/chatbetter2api/pkg/proxy/middleware"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/logging"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	completer Completer
	logger    *slog.Logger
}

// NewChatHandler creates a chat handler over completer.
func NewChatHandler(completer Completer) *ChatHandler {
	return &ChatHandler{
		completer: completer,
		logger:    slog.Default().With("component", "handlers.chat"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	startTime := time.Now()

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to parse request",
			"request_id", requestID,
			"error", err,
		)
		h.writeError(ctx, w, err)
		return
	}

	ctx = logging.WithModel(ctx, chatReq.Model)
	md := proxy.ExtractRequestMetadata(r, requestID, chatReq)
	h.logger.InfoContext(ctx, "processing chat completion request", md.LogAttrs()...)

	conv, err := h.completer.Start(ctx, chatReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to establish conversation",
			"request_id", requestID,
			"model", chatReq.Model,
			"error", err,
			"latency_ms", time.Since(startTime).Milliseconds(),
		)
		h.writeError(ctx, w, err)
		return
	}
	defer conv.Close()

	if chatReq.Stream {
		h.stream(ctx, w, conv, requestID, startTime)
		return
	}

	resp, err := conv.Collect(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "chat completion failed",
			"request_id", requestID,
			"error", err,
		)
		h.writeError(ctx, w, err)
		return
	}

	h.logger.InfoContext(ctx, "chat completion successful",
		"request_id", requestID,
		"model", resp.Model,
		"content_length", len(resp.Choices[0].Message.Content),
		"total_latency_ms", time.Since(startTime).Milliseconds(),
	)

	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response",
			"request_id", requestID,
			"error", err,
		)
	}
}

// stream delivers conv as Server-Sent Events. Errors after the first event
// end the stream with an error event and no done marker.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, conv Conversation, requestID string, startTime time.Time) {
	sse := proxy.NewSSEWriter(w)

	err := conv.Stream(ctx, sse)
	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "streaming chat completion successful",
			"request_id", requestID,
			"events_sent", sse.Events(),
			"total_latency_ms", time.Since(startTime).Milliseconds(),
		)

	case errors.Is(err, context.Canceled):
		h.logger.WarnContext(ctx, "client disconnected during streaming",
			"request_id", requestID,
			"events_sent", sse.Events(),
		)

	default:
		h.logger.ErrorContext(ctx, "error in stream",
			"request_id", requestID,
			"events_sent", sse.Events(),
			"error", err,
		)
		if !sse.Started() {
			h.writeError(ctx, w, err)
			return
		}
		if werr := sse.WriteError(proxy.HandleError(err)); werr != nil {
			h.logger.ErrorContext(ctx, "failed to write SSE error", "error", werr)
		}
	}
}

func (h *ChatHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if werr := proxy.WriteErrorResponse(w, proxy.HandleError(err)); werr != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
	}
}
