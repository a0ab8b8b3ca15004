package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// AuthorizationHeader carries the admin password.
	AuthorizationHeader = "Authorization"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// ParseChatCompletionRequest reads and validates a chat completion body.
// The body is limited to MaxRequestBodySize.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	var req types.ChatCompletionRequest
	if err := DecodeJSON(r, &req); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		if valErr, ok := err.(*types.ValidationError); ok {
			return nil, &RequestError{
				Message: valErr.Message,
				Code:    types.CodeInvalidValue,
				Param:   valErr.Field,
			}
		}
		return nil, err
	}

	return &req, nil
}

// DecodeJSON reads a size-limited JSON body into v.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	if len(body) >= MaxRequestBodySize {
		return &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeInvalidValue,
			Param:   "body",
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}
	return nil
}

// ExtractAdminSecret returns the credential from the Authorization header.
// Both "Bearer <secret>" and a bare "<secret>" are accepted.
func ExtractAdminSecret(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(AuthorizationHeader))
	if header == "" {
		return ""
	}
	if m := bearerPattern.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return header
}

// ExtractRequestID returns the client supplied request ID, if any.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// RequestError represents a request parsing or validation error.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an OpenAI-compatible error response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
