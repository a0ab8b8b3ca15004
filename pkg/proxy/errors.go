package proxy

import (
	"context"
	"errors"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/completion"
	"github.com/hzcy/chatbetter2api/pkg/credentials"
	"github.com/hzcy/chatbetter2api/pkg/models"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// HandleError converts an error from the completion pipeline or the admin
// API into an OpenAI-compatible error response. Unknown errors become a
// generic 500 so internal details do not leak.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var valErr *types.ValidationError
	if errors.As(err, &valErr) {
		return types.NewInvalidRequestError(valErr.Message, valErr.Field, types.CodeInvalidValue)
	}

	switch {
	case errors.Is(err, completion.ErrNoMessages):
		return types.NewInvalidRequestError("messages required", "messages", types.CodeMissingField)

	case errors.Is(err, accounts.ErrNotFound):
		return types.NewNotFoundError("Token not found")

	case errors.Is(err, accounts.ErrNoAvailableAccount):
		return types.NewServiceUnavailableError("No available account", types.CodeNoAccount)

	case errors.Is(err, completion.ErrUpstreamUnavailable):
		return types.NewServiceUnavailableError(
			"Unable to establish connection and create chat after several retries",
			types.CodeUpstreamUnavailable,
		)

	case errors.Is(err, completion.ErrSubmitFailed):
		return types.NewBadGatewayError("Patch chat failed")

	case errors.Is(err, credentials.ErrRefreshFailed):
		return types.NewBadGatewayError("Token refresh failed")

	case errors.Is(err, models.ErrUnavailable):
		return types.NewServerError("Models file not found")

	case errors.Is(err, completion.ErrUpstreamRuntime):
		return types.NewBadGatewayError("Upstream error: " + upstreamCause(err))

	case errors.Is(err, context.DeadlineExceeded):
		return types.NewGatewayTimeoutError("Request timeout: the request took too long to complete")
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}

// upstreamCause returns the message after the runtime sentinel prefix.
func upstreamCause(err error) string {
	msg := err.Error()
	prefix := completion.ErrUpstreamRuntime.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
