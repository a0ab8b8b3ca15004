package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hzcy/chatbetter2api/pkg/proxy"
	"github.com/hzcy/chatbetter2api/pkg/proxy/middleware"
)

// ModelsHandler serves GET /v1/models from the cached catalog document.
type ModelsHandler struct {
	source ModelSource
	logger *slog.Logger
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(source ModelSource) *ModelsHandler {
	return &ModelsHandler{
		source: source,
		logger: slog.Default().With("component", "handlers.models"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.source.Raw()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "model catalog unavailable",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	if err := proxy.WriteRawJSON(w, http.StatusOK, raw); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write models", "error", err)
	}
}
