// Package tokens estimates the prompt size of a chat request.
//
// The estimate only chooses the account tier: prompts above the configured
// threshold are served by elevated accounts. Two estimators are provided:
//
//   - TiktokenEstimator counts BPE tokens with the cl100k encoding used by
//     gpt-3.5-turbo. It falls back to SimpleEstimator when the encoding
//     cannot be loaded.
//   - SimpleEstimator divides the character count by four.
//
// Both count only the text parts of a message and add a fixed overhead of
// four tokens per message.
//
//	estimator := tokens.New(cfg.Completion.Tokenizer)
//	if estimator.Estimate(req.Messages) > cfg.Completion.ElevatedThreshold {
//		tier = accounts.TierElevated
//	}
package tokens
