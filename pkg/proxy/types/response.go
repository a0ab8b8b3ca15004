package types

import "encoding/json"

// Object names used in responses.
const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"

	// StreamID is the id every streamed chunk carries.
	StreamID = "chatcmpl-dummy"

	FinishReasonStop = "stop"
)

// ChatCompletionResponse is the body of a non-streaming completion.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`

	// Usage is passed through from upstream when it reported any.
	Usage json.RawMessage `json:"usage,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the generated assistant message.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionChunk is one server-sent event of a streaming completion.
type ChatCompletionChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`

	// Usage is null except on usage chunks.
	Usage json.RawMessage `json:"usage"`
}

// StreamChoice is the single choice of a chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        Delta       `json:"delta"`
	LogProbs     interface{} `json:"logprobs"`
	FinishReason *string     `json:"finish_reason"`
}

// Delta is the incremental content of a chunk.
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}
