package tokens

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// encodingModel selects the BPE encoding used for counting.
const encodingModel = "gpt-3.5-turbo"

// TiktokenEstimator counts tokens with the cl100k BPE encoding. The
// encoding is loaded on first use.
type TiktokenEstimator struct {
	load     func() (*tiktoken.Tiktoken, error)
	fallback *SimpleEstimator
	logger   *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates a TiktokenEstimator.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{
		load: func() (*tiktoken.Tiktoken, error) {
			return tiktoken.EncodingForModel(encodingModel)
		},
		fallback: NewSimpleEstimator(),
		logger:   slog.Default().With("component", "tokens"),
	}
}

func (e *TiktokenEstimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := e.load()
		if err != nil {
			e.logger.Warn("failed to load tiktoken encoding, using character estimate", "model", encodingModel, "error", err)
			return
		}
		e.enc = enc
	})
	return e.enc
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(messages []types.Message) int {
	enc := e.encoding()
	if enc == nil {
		return e.fallback.Estimate(messages)
	}

	total := 0
	for _, msg := range messages {
		if text := msg.Text(); text != "" {
			total += len(enc.Encode(text, nil, nil))
		}
		total += MessageOverhead
	}
	return total
}
