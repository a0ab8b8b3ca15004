// Package completion turns an OpenAI-style chat request into an upstream
// conversation and delivers its answer.
//
// # Establishment
//
// Orchestrator.Start estimates the prompt size, selects an account of the
// matching tier and runs up to Config.MaxAttempts attempts. Each attempt
// creates the upstream conversation and obtains a channel concurrently.
// After a failed attempt the channel is returned and the account refreshed;
// an account whose refresh fails is released and another one selected.
//
// Once established, the last client message is submitted as a new turn and
// the returned Conversation owns the lease, the channel and the delivery
// queue until Close.
//
// # Delivery
//
// Upstream fragments carry the cumulative answer. Stream renders each one
// and emits only the new suffix, computed against what was already sent.
// Collect waits for the final fragment and renders it once.
//
//	conv, err := orch.Start(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer conv.Close()
//	return conv.Stream(ctx, writer)
package completion
