package handlers

import (
	"context"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/completion"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// Conversation is an established upstream conversation.
type Conversation interface {
	Stream(ctx context.Context, w completion.StreamWriter) error
	Collect(ctx context.Context) (*types.ChatCompletionResponse, error)
	Close()
}

// Completer establishes conversations for chat completion requests.
type Completer interface {
	Start(ctx context.Context, req *types.ChatCompletionRequest) (Conversation, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req *types.ChatCompletionRequest) (Conversation, error)

// Start implements Completer.
func (f CompleterFunc) Start(ctx context.Context, req *types.ChatCompletionRequest) (Conversation, error) {
	return f(ctx, req)
}

// FromOrchestrator adapts a completion orchestrator to Completer.
func FromOrchestrator(o *completion.Orchestrator) Completer {
	return CompleterFunc(func(ctx context.Context, req *types.ChatCompletionRequest) (Conversation, error) {
		c, err := o.Start(ctx, req)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// ModelSource serves the model catalog document.
type ModelSource interface {
	Raw() ([]byte, error)
}

// AccountRefresher renews the credentials of one account.
type AccountRefresher interface {
	RefreshByID(ctx context.Context, id int64) (*accounts.Account, error)
}

// ModelRefresher re-fetches the model catalog from upstream.
type ModelRefresher interface {
	RefreshModels(ctx context.Context) error
}

// AccountSyncer mirrors account changes into the selection cache.
type AccountSyncer interface {
	Sync(ctx context.Context, acct *accounts.Account)
}
