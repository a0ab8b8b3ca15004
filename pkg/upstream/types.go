package upstream

import "encoding/json"

// Auth is the credential pair sent on application calls.
type Auth struct {
	// Token is the primary bearer token.
	Token string

	// AccessToken is the short-lived ChatBetterJwt.
	AccessToken string
}

// File is an attachment on a message.
type File struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Message is one node of a conversation tree.
type Message struct {
	ID          string   `json:"id"`
	ParentID    *string  `json:"parentId"`
	ChildrenIDs []string `json:"childrenIds"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Files       []File   `json:"files,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	OutputType  string   `json:"outputType,omitempty"`
	Models      []string `json:"models,omitempty"`

	// Set on assistant placeholders only.
	Model     string `json:"model,omitempty"`
	ModelName string `json:"modelName,omitempty"`
	ModelIdx  *int   `json:"modelIdx,omitempty"`
}

// History is the message tree of a conversation.
type History struct {
	CurrentID string             `json:"currentId"`
	Messages  map[string]Message `json:"messages"`
}

// NewChat is the body of a conversation creation request.
type NewChat struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Models    []string       `json:"models"`
	Params    map[string]any `json:"params"`
	History   History        `json:"history"`
	Messages  []Message      `json:"messages"`
	Tags      []string       `json:"tags"`
	Timestamp int64          `json:"timestamp"`
}

// CreatedChat is the part of the creation response the proxy needs.
type CreatedChat struct {
	// ID is the upstream conversation id.
	ID string

	// CurrentID is the frontier message id new turns attach to.
	CurrentID string
}

// Features toggles server-side tools for a submission.
type Features struct {
	ImageGeneration bool `json:"image_generation"`
	CodeInterpreter bool `json:"code_interpreter"`
	WebSearch       bool `json:"web_search"`
}

// ChatPatch submits a new turn to an existing conversation.
type ChatPatch struct {
	GenerateTags  bool           `json:"generate_tags"`
	GenerateTitle bool           `json:"generate_title"`
	CurrentID     string         `json:"currentId"`
	Messages      []Message      `json:"messages"`
	SessionID     string         `json:"session_id"`
	Stream        bool           `json:"stream"`
	ToolServers   []any          `json:"tool_servers"`
	Features      Features       `json:"features"`
	Params        map[string]any `json:"params"`
	Variables     map[string]any `json:"variables"`
}

// SilentGrant is the result of a silent refresh.
type SilentGrant struct {
	// AccessToken is the new ChatBetterJwt.
	AccessToken string

	// Cookies are the cookies set by the refresh response. They replace the
	// stored cookie set entirely.
	Cookies map[string]string
}

// Identity is the account information returned by sign-in and auth info.
type Identity struct {
	Token       string
	AccountType string

	// Raw is the full response body.
	Raw json.RawMessage
}
