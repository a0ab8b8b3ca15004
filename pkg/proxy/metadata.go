package proxy

import (
	"net/http"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// RequestMetadata summarizes a completion request for logging.
type RequestMetadata struct {
	// RequestID is the unique identifier for the request.
	RequestID string

	// Model is the requested model name; empty means the default model.
	Model string

	// Messages is the number of messages in the conversation.
	Messages int

	// Images is the number of image parts across all messages.
	Images int

	// Stream indicates whether streaming is requested.
	Stream bool

	// Credential is the redacted admin credential.
	Credential string

	Method     string
	Path       string
	UserAgent  string
	RemoteAddr string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// ExtractRequestMetadata collects the loggable parts of r and req.
func ExtractRequestMetadata(r *http.Request, requestID string, req *types.ChatCompletionRequest) *RequestMetadata {
	md := &RequestMetadata{
		RequestID:  requestID,
		Model:      req.Model,
		Messages:   len(req.Messages),
		Stream:     req.Stream,
		Credential: RedactSecret(ExtractAdminSecret(r)),
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Timestamp:  time.Now(),
	}
	for _, m := range req.Messages {
		md.Images += len(m.ImageURLs())
	}
	return md
}

// LogAttrs returns the metadata as slog key-value pairs.
func (m *RequestMetadata) LogAttrs() []any {
	return []any{
		"request_id", m.RequestID,
		"model", m.Model,
		"messages", m.Messages,
		"images", m.Images,
		"stream", m.Stream,
		"remote_addr", m.RemoteAddr,
		"user_agent", m.UserAgent,
	}
}

// RedactSecret masks a credential for logging, keeping the first and last
// two characters of long values.
//
// Example:
//
//	s3cr3t-password -> s3...rd
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}
