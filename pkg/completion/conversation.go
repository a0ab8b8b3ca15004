package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/channel"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/logging"
	"github.com/hzcy/chatbetter2api/pkg/transform"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// StreamWriter receives the chunks of a streaming completion.
type StreamWriter interface {
	WriteChunk(chunk *types.ChatCompletionChunk) error
	WriteDone() error
}

// Conversation is one established upstream conversation.
type Conversation struct {
	// Model is the model the answer is requested from.
	Model string

	// PromptTokens is the prompt size estimate that chose the tier.
	PromptTokens int

	o       *Orchestrator
	tier    accounts.Tier
	started time.Time

	lease  *accounts.Lease
	ch     *channel.Channel
	queue  *channel.Queue
	chatID string

	closeOnce sync.Once
}

// ChatID returns the upstream conversation id.
func (c *Conversation) ChatID() string {
	return c.chatID
}

// Account returns the account serving the conversation.
func (c *Conversation) Account() *accounts.Account {
	if c.lease == nil {
		return nil
	}
	return c.lease.Account
}

// Close releases the queue, the channel and the lease. Safe to call more
// than once.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		if c.queue != nil {
			c.o.pool.Unsubscribe(c.chatID)
		}
		if c.ch != nil {
			c.o.pool.Return(c.ch)
		}
		c.lease.Release()
	})
}

// establish runs the attempt loop. Each attempt carries a freshly built
// history. Every failed attempt returns its channel and refreshes the
// account; an account that cannot be refreshed is released and replaced by
// another of the same tier.
func (c *Conversation) establish(ctx context.Context, history func() upstream.NewChat) (*upstream.CreatedChat, error) {
	o := c.o

	lease, err := o.accounts.Select(ctx, c.tier)
	if err != nil {
		return nil, fmt.Errorf("failed to select account: %w", err)
	}
	c.lease = lease

	var last attemptResult
	for n := 1; n <= o.cfg.MaxAttempts; n++ {
		last = o.attempt(logging.WithAccountID(ctx, c.lease.Account.ID), n, c.lease.Account, history())
		if last.ok() {
			o.metrics.RecordAttempt("success")
			c.ch = last.ch
			return last.chat, nil
		}

		o.metrics.RecordAttempt("failure")
		o.logger.WarnContext(ctx, "conversation attempt failed",
			"attempt", n,
			"account_id", c.lease.Account.ID,
			"create_error", last.chatErr,
			"channel_error", last.channelErr,
		)
		if last.ch != nil {
			o.pool.Return(last.ch)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := o.refresher.Refresh(ctx, c.lease.Account); err != nil {
			o.logger.WarnContext(ctx, "rotating account after failed refresh", "account_id", c.lease.Account.ID, "error", err)
			c.lease.Release()
			c.lease = nil
			if n == o.cfg.MaxAttempts {
				break
			}
			lease, err := o.accounts.Select(ctx, c.tier)
			if err != nil {
				return nil, errorf(ErrUpstreamUnavailable, err)
			}
			c.lease = lease
		}
	}

	return nil, errorf(ErrUpstreamUnavailable, errors.Join(last.chatErr, last.channelErr))
}

// submit subscribes to the conversation and sends the new turn.
func (c *Conversation) submit(ctx context.Context, b *treeBuilder, last types.Message, chat *upstream.CreatedChat) error {
	c.chatID = chat.ID
	c.queue = c.o.pool.Subscribe(c.ch, c.chatID)

	frontier := chat.CurrentID
	if frontier == "" {
		frontier = b.lastHistoryID
	}

	patch := b.turn(last, frontier, c.ch.SessionID)
	if err := c.o.chats.PatchChat(ctx, authOf(c.lease.Account), c.chatID, patch); err != nil {
		return errorf(ErrSubmitFailed, err)
	}
	return nil
}

// fragment is one usable cumulative answer update.
type fragment struct {
	content string
	usage   json.RawMessage
	done    bool
}

// next waits for the next fragment with content or a final marker.
func (c *Conversation) next(ctx context.Context) (fragment, error) {
	idle := c.o.cfg.IdleTimeout

	for {
		popCtx, cancel := ctx, context.CancelFunc(func() {})
		if idle > 0 {
			popCtx, cancel = context.WithTimeout(ctx, idle)
		}
		comp, err := c.queue.Pop(popCtx)
		cancel()

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return fragment{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return fragment{}, fmt.Errorf("%w: no answer fragment within %s", ErrUpstreamRuntime, idle)
		default:
			return fragment{}, errorf(ErrUpstreamRuntime, err)
		}

		if comp.HasError() {
			return fragment{}, fmt.Errorf("%w: %s", ErrUpstreamRuntime, comp.ErrorMessage())
		}
		if comp.Content == "" && !comp.Done {
			continue
		}

		f := fragment{content: comp.Content, done: comp.Done}
		if comp.HasUsage() {
			f.usage = comp.Usage
		}
		return f, nil
	}
}

// render applies the content rewrites to a cumulative answer.
func (c *Conversation) render(ctx context.Context, content string, seen map[string]string) string {
	if c.o.localizer != nil {
		content = c.o.localizer.Rewrite(ctx, authOf(c.lease.Account), content, seen)
	}
	return transform.NormalizeReasoning(content)
}

// Stream delivers the answer as chunks: a role chunk, content deltas,
// usage chunks when upstream reports usage, and a stop chunk followed by
// the done marker.
func (c *Conversation) Stream(ctx context.Context, w StreamWriter) (err error) {
	defer func() { c.finish(ctx, "stream", err) }()

	empty := ""
	if err := w.WriteChunk(c.chunk(types.Delta{Role: "assistant", Content: &empty}, nil, nil)); err != nil {
		return err
	}

	var differ Differ
	seen := make(map[string]string)
	for {
		f, err := c.next(ctx)
		if err != nil {
			return err
		}

		if f.content != "" {
			if delta := differ.Next(c.render(ctx, f.content, seen)); delta != "" {
				if err := w.WriteChunk(c.chunk(types.Delta{Content: &delta}, nil, nil)); err != nil {
					return err
				}
			}
		}

		if f.usage != nil {
			if err := w.WriteChunk(c.chunk(types.Delta{}, nil, f.usage)); err != nil {
				return err
			}
		}

		if f.done {
			stop := types.FinishReasonStop
			if err := w.WriteChunk(c.chunk(types.Delta{}, &stop, nil)); err != nil {
				return err
			}
			return w.WriteDone()
		}
	}
}

// Collect waits for the complete answer and returns it as one response.
func (c *Conversation) Collect(ctx context.Context) (resp *types.ChatCompletionResponse, err error) {
	defer func() { c.finish(ctx, "buffered", err) }()

	var content string
	var usage json.RawMessage
	for {
		f, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if f.content != "" {
			content = f.content
		}
		if f.usage != nil {
			usage = f.usage
		}
		if f.done {
			break
		}
	}

	return &types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  types.ObjectCompletion,
		Created: c.o.now().Unix(),
		Model:   c.Model,
		Choices: []types.Choice{{
			Index: 0,
			Message: types.ResponseMessage{
				Role:    "assistant",
				Content: c.render(ctx, content, make(map[string]string)),
			},
			FinishReason: types.FinishReasonStop,
		}},
		Usage: usage,
	}, nil
}

func (c *Conversation) chunk(delta types.Delta, finish *string, usage json.RawMessage) *types.ChatCompletionChunk {
	return &types.ChatCompletionChunk{
		ID:      types.StreamID,
		Object:  types.ObjectChunk,
		Created: c.o.now().Unix(),
		Model:   c.Model,
		Choices: []types.StreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
		Usage: usage,
	}
}

func (c *Conversation) finish(ctx context.Context, mode string, err error) {
	status := statusOf(err)
	elapsed := c.o.now().Sub(c.started)
	c.o.metrics.RecordCompletion(c.Model, mode, status, elapsed)

	attrs := []any{
		"chat_id", c.chatID,
		"model", c.Model,
		"mode", mode,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		c.o.logger.WarnContext(ctx, "completion failed", append(attrs, "error", err)...)
		return
	}
	c.o.logger.InfoContext(ctx, "completion finished", attrs...)
}
