package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/channel"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/tokens"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// ChatAPI creates conversations and submits turns upstream.
type ChatAPI interface {
	CreateChat(ctx context.Context, auth upstream.Auth, chat upstream.NewChat) (*upstream.CreatedChat, error)
	PatchChat(ctx context.Context, auth upstream.Auth, chatID string, patch upstream.ChatPatch) error
}

// Refresher renews an account's credentials in place.
type Refresher interface {
	Refresh(ctx context.Context, acct *accounts.Account) error
}

// Localizer rewrites upstream image links in answer text.
type Localizer interface {
	Rewrite(ctx context.Context, auth upstream.Auth, content string, seen map[string]string) string
}

// ModelCatalog answers model capability questions.
type ModelCatalog interface {
	IsImageModel(model string) bool
}

// Config tunes the orchestrator.
type Config struct {
	// MaxAttempts bounds conversation establishment attempts.
	MaxAttempts int

	// ElevatedThreshold is the prompt estimate above which an elevated
	// account is requested.
	ElevatedThreshold int

	// DefaultModel replaces an empty request model.
	DefaultModel string

	// IdleTimeout fails delivery when no fragment arrives in time. Zero
	// waits as long as the request lives.
	IdleTimeout time.Duration
}

// Deps are the collaborators an Orchestrator cannot work without.
type Deps struct {
	Accounts  *accounts.Manager
	Refresher Refresher
	Chats     ChatAPI
	Channels  *channel.Pool
	Open      channel.OpenFunc
}

// Orchestrator serves chat completions through the upstream application.
type Orchestrator struct {
	accounts  *accounts.Manager
	refresher Refresher
	chats     ChatAPI
	pool      *channel.Pool
	open      channel.OpenFunc

	estimator tokens.Estimator
	localizer Localizer
	catalog   ModelCatalog
	cfg       Config
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEstimator replaces the default tiktoken estimator.
func WithEstimator(e tokens.Estimator) Option {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

// WithLocalizer enables image localization.
func WithLocalizer(l Localizer) Option {
	return func(o *Orchestrator) {
		o.localizer = l
	}
}

// WithCatalog enables image-output detection.
func WithCatalog(c ModelCatalog) Option {
	return func(o *Orchestrator) {
		o.catalog = c
	}
}

// WithMetrics records completion metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ElevatedThreshold <= 0 {
		cfg.ElevatedThreshold = 8192
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-5"
	}

	o := &Orchestrator{
		accounts:  deps.Accounts,
		refresher: deps.Refresher,
		chats:     deps.Chats,
		pool:      deps.Channels,
		open:      deps.Open,
		cfg:       cfg,
		logger:    slog.Default().With("component", "completion"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.estimator == nil {
		o.estimator = tokens.NewTiktokenEstimator()
	}
	return o
}

// Start establishes an upstream conversation for req and submits its last
// message. The returned Conversation owns the account lease, the channel
// and the delivery queue; the caller must Close it. On error everything
// acquired has already been released.
func (o *Orchestrator) Start(ctx context.Context, req *types.ChatCompletionRequest) (*Conversation, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}

	prompt := o.estimator.Estimate(req.Messages)
	o.metrics.RecordPromptTokens(prompt)

	tier := accounts.TierStandard
	if prompt > o.cfg.ElevatedThreshold {
		tier = accounts.TierElevated
	}

	c := &Conversation{
		o:            o,
		Model:        model,
		PromptTokens: prompt,
		tier:         tier,
		started:      o.now(),
	}
	established := false
	defer func() {
		if !established {
			c.Close()
		}
	}()

	builder := newTreeBuilder(model, o.catalog != nil && o.catalog.IsImageModel(model))

	chat, err := c.establish(ctx, func() upstream.NewChat { return builder.history(req.Messages) })
	if err != nil {
		o.metrics.RecordCompletion(model, modeOf(req), statusOf(err), o.now().Sub(c.started))
		return nil, err
	}

	if err := c.submit(ctx, builder, req.Messages[len(req.Messages)-1], chat); err != nil {
		o.metrics.RecordCompletion(model, modeOf(req), statusOf(err), o.now().Sub(c.started))
		return nil, err
	}

	established = true
	o.logger.DebugContext(ctx, "conversation established",
		"chat_id", c.chatID,
		"account_id", c.lease.Account.ID,
		"tier", c.lease.Tier.String(),
		"prompt_tokens", prompt,
	)
	return c, nil
}

// attemptResult is the outcome of one establishment attempt.
type attemptResult struct {
	n          int
	chat       *upstream.CreatedChat
	chatErr    error
	ch         *channel.Channel
	channelErr error
}

func (r attemptResult) ok() bool {
	return r.chatErr == nil && r.channelErr == nil && r.chat != nil && r.ch != nil
}

// attempt creates the conversation and obtains a channel concurrently.
func (o *Orchestrator) attempt(ctx context.Context, n int, acct *accounts.Account, chat upstream.NewChat) attemptResult {
	res := attemptResult{n: n}
	auth := authOf(acct)

	var g errgroup.Group
	g.Go(func() error {
		res.chat, res.chatErr = o.chats.CreateChat(ctx, auth, chat)
		return nil
	})
	g.Go(func() error {
		res.ch, res.channelErr = o.pool.Get(ctx, identityOf(acct), o.open)
		return nil
	})
	_ = g.Wait()

	if res.ch != nil && res.channelErr == nil && res.ch.State() != channel.StateReady {
		res.channelErr = channel.ErrChannelClosed
	}
	return res
}

func authOf(acct *accounts.Account) upstream.Auth {
	return upstream.Auth{Token: acct.Token, AccessToken: acct.AccessToken}
}

func identityOf(acct *accounts.Account) channel.Identity {
	return channel.Identity{
		Key:         acct.Key(),
		ID:          acct.ID,
		Token:       acct.Token,
		AccessToken: acct.AccessToken,
	}
}

func modeOf(req *types.ChatCompletionRequest) string {
	if req.Stream {
		return "stream"
	}
	return "buffered"
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNoMessages):
		return "invalid"
	case errors.Is(err, accounts.ErrNoAvailableAccount), errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrSubmitFailed):
		return "submit_failed"
	case errors.Is(err, ErrUpstreamRuntime):
		return "upstream_error"
	default:
		return "error"
	}
}

// errorf wraps cause under sentinel.
func errorf(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
