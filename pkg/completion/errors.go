package completion

import "errors"

var (
	// ErrNoMessages is returned for a request without messages.
	ErrNoMessages = errors.New("messages required")

	// ErrUpstreamUnavailable is returned when no attempt produced both a
	// conversation and a ready channel.
	ErrUpstreamUnavailable = errors.New("unable to establish connection and create chat after several retries")

	// ErrSubmitFailed is returned when the upstream rejected the new turn.
	ErrSubmitFailed = errors.New("submitting the message to upstream failed")

	// ErrUpstreamRuntime is returned when the upstream reported an error
	// while producing the answer or stopped delivering it.
	ErrUpstreamRuntime = errors.New("upstream failed while generating the answer")
)
