package types

import (
	"strconv"
	"strings"
)

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
// Sampling parameters are accepted for SDK compatibility; the upstream
// application does not expose them.
type ChatCompletionRequest struct {
	// Model is the model id. Empty means the configured default.
	Model string `json:"model"`

	// Messages is the conversation. The last message is the new turn.
	Messages []Message `json:"messages"`

	// Stream selects server-sent events instead of a single JSON body.
	Stream bool `json:"stream,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	User        string   `json:"user,omitempty"`
}

// Message is a single message in a conversation.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role string `json:"role"`

	// Content is either a string or a list of content parts:
	// {"type":"text","text":...} and {"type":"image_url","image_url":{"url":...}}.
	Content interface{} `json:"content"`

	// Name is the optional author name.
	Name string `json:"name,omitempty"`
}

// Part types understood in multipart content.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// Text returns the textual content. Text parts of multipart content are
// joined with newlines; other parts are ignored.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, item := range c {
			part, ok := item.(map[string]interface{})
			if !ok || part["type"] != PartText {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// ImageURLs returns the urls of the image parts in multipart content.
// Both {"image_url":{"url":...}} and a flat {"url":...} are accepted.
func (m Message) ImageURLs() []string {
	items, ok := m.Content.([]interface{})
	if !ok {
		return nil
	}

	var urls []string
	for _, item := range items {
		part, ok := item.(map[string]interface{})
		if !ok || part["type"] != PartImageURL {
			continue
		}
		var url string
		if img, ok := part["image_url"].(map[string]interface{}); ok {
			url, _ = img["url"].(string)
		}
		if url == "" {
			url, _ = part["url"].(string)
		}
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// Validate checks the request shape. An empty message list is left to the
// completion layer.
func (r *ChatCompletionRequest) Validate() error {
	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{
			Field:   "temperature",
			Message: "temperature must be between 0.0 and 2.0",
		}
	}

	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{
			Field:   "top_p",
			Message: "top_p must be between 0.0 and 1.0",
		}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{
			Field:   "max_tokens",
			Message: "max_tokens must be greater than 0",
		}
	}

	for i, msg := range r.Messages {
		switch msg.Role {
		case "system", "user", "assistant":
		case "":
			return &ValidationError{
				Field:   "messages[" + strconv.Itoa(i) + "].role",
				Message: "message role is required",
			}
		default:
			return &ValidationError{
				Field:   "messages[" + strconv.Itoa(i) + "].role",
				Message: "unsupported message role " + strconv.Quote(msg.Role),
			}
		}

		switch msg.Content.(type) {
		case string, []interface{}, nil:
		default:
			return &ValidationError{
				Field:   "messages[" + strconv.Itoa(i) + "].content",
				Message: "message content must be a string or a list of parts",
			}
		}
	}

	return nil
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
