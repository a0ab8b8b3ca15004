package tokens

import (
	"unicode/utf8"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

const charsPerToken = 4.0

// SimpleEstimator implements character-based token estimation.
type SimpleEstimator struct{}

// NewSimpleEstimator creates a character-based estimator.
func NewSimpleEstimator() *SimpleEstimator {
	return &SimpleEstimator{}
}

// EstimateText estimates tokens for a single text string.
func (e *SimpleEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}

	n := float64(utf8.RuneCountInString(text)) / charsPerToken
	if n < 1.0 {
		return 1 // Minimum 1 token for non-empty text
	}
	return int(n + 0.5)
}

// Estimate implements Estimator.
func (e *SimpleEstimator) Estimate(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += e.EstimateText(msg.Text()) + MessageOverhead
	}
	return total
}
