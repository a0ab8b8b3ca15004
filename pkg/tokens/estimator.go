package tokens

import (
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// MessageOverhead is added for every message on top of its content.
const MessageOverhead = 4

// Estimator estimates the token count of a conversation.
type Estimator interface {
	// Estimate returns the estimated prompt tokens of messages. It never
	// fails; an estimator that cannot count returns a best effort.
	Estimate(messages []types.Message) int
}

// New returns the estimator named by kind: "simple" or "tiktoken" (default).
func New(kind string) Estimator {
	if kind == "simple" {
		return NewSimpleEstimator()
	}
	return NewTiktokenEstimator()
}
