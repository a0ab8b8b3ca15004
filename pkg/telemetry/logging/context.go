package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	modelKey     contextKey = "model"
	accountIDKey contextKey = "account_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithModel adds the requested model to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey, model)
}

// GetModel retrieves the requested model from the context.
func GetModel(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if m, ok := ctx.Value(modelKey).(string); ok {
		return m
	}
	return ""
}

// WithAccountID adds the serving account to the context.
func WithAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// GetAccountID retrieves the serving account from the context.
func GetAccountID(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}

// contextAttrs returns the log fields stored in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if m := GetModel(ctx); m != "" {
		attrs = append(attrs, slog.String("model", m))
	}
	if id, ok := GetAccountID(ctx); ok {
		attrs = append(attrs, slog.Int64("account_id", id))
	}
	return attrs
}
