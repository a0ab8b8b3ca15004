package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindOther Kind = iota
	KindOpen
	KindPing
	KindPong
	KindConnectAck
	KindEvent
)

// String returns the lowercase name of the kind, used as a metric label.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindConnectAck:
		return "connect_ack"
	case KindEvent:
		return "event"
	default:
		return "other"
	}
}

const (
	// EventChat is the event name carrying conversation updates.
	EventChat = "chat-events"

	// TypeCompletion is the data type of a completion fragment.
	TypeCompletion = "chat:completion"
)

// Pong is the reply to a ping frame.
const Pong = "3"

// ErrMalformed is returned for frames that claim a known kind but whose
// payload cannot be parsed.
var ErrMalformed = errors.New("protocol: malformed frame")

// Frame is a decoded text frame.
type Frame struct {
	Kind Kind

	// Raw is the undecoded frame text.
	Raw string

	// SessionID is set on connect acknowledgements.
	SessionID string

	// Event is the event name of an event frame.
	Event string

	// ChatID is the conversation an event belongs to.
	ChatID string

	// Completion is set when the event is a completion fragment.
	Completion *Completion
}

// Completion is one cumulative fragment of an assistant answer.
type Completion struct {
	// Content is the full answer rendered so far, not a delta.
	Content string `json:"content,omitempty"`

	// Error is set when generation failed upstream.
	Error json.RawMessage `json:"error,omitempty"`

	// Done marks the final fragment.
	Done bool `json:"done,omitempty"`

	// Usage is the upstream usage object, passed through untouched.
	Usage json.RawMessage `json:"usage,omitempty"`
}

// HasError reports whether the fragment carries a truthy error value.
func (c Completion) HasError() bool {
	return truthy(c.Error)
}

// HasUsage reports whether the fragment carries a non-empty usage object.
func (c Completion) HasUsage() bool {
	return truthy(c.Usage)
}

// ErrorMessage renders the upstream error for logs and client responses.
func (c Completion) ErrorMessage() string {
	if !c.HasError() {
		return ""
	}
	res := gjson.ParseBytes(c.Error)
	switch {
	case res.Type == gjson.String:
		return res.String()
	case res.Get("content").Exists():
		return res.Get("content").String()
	case res.Get("message").Exists():
		return res.Get("message").String()
	default:
		return string(c.Error)
	}
}

func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", "0", `""`, "{}", "[]":
		return false
	}
	return true
}

// Decode parses a single text frame.
func Decode(raw string) (Frame, error) {
	f := Frame{Kind: KindOther, Raw: raw}

	switch {
	case raw == "2":
		f.Kind = KindPing
	case raw == "3":
		f.Kind = KindPong
	case strings.HasPrefix(raw, "42"):
		f.Kind = KindEvent
		if err := decodeEvent(&f, raw[2:]); err != nil {
			return f, err
		}
	case strings.HasPrefix(raw, "40"):
		body := raw[2:]
		if body == "" || !gjson.Valid(body) {
			return f, nil
		}
		if sid := gjson.Get(body, "sid"); sid.Exists() {
			f.Kind = KindConnectAck
			f.SessionID = sid.String()
		}
	case strings.HasPrefix(raw, "0"):
		f.Kind = KindOpen
	}

	return f, nil
}

func decodeEvent(f *Frame, body string) error {
	if !gjson.Valid(body) {
		return fmt.Errorf("%w: event payload is not JSON", ErrMalformed)
	}
	parts := gjson.Parse(body)
	if !parts.IsArray() {
		return fmt.Errorf("%w: event payload is not an array", ErrMalformed)
	}
	items := parts.Array()
	if len(items) != 2 {
		return fmt.Errorf("%w: event has %d elements", ErrMalformed, len(items))
	}

	f.Event = items[0].String()
	if f.Event != EventChat {
		return nil
	}

	payload := items[1]
	f.ChatID = payload.Get("chat_id").String()
	if payload.Get("data.type").String() != TypeCompletion {
		return nil
	}

	var c Completion
	if inner := payload.Get("data.data"); inner.IsObject() {
		if err := json.Unmarshal([]byte(inner.Raw), &c); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	f.Completion = &c
	return nil
}

// EncodeAuth builds the connect request that authenticates a channel.
func EncodeAuth(token string) string {
	body, _ := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: token})
	return "40" + string(body)
}
