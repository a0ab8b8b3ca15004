// Package logging builds the process logger.
//
// New returns a *slog.Logger in json, text or console format whose handler
// does two things before a record is written:
//
//   - adds request_id, model and account_id from the context when the
//     record does not carry them already
//   - masks credentials: attributes named token, access_token, cookies,
//     silent_cookies, authorization or password, Bearer headers, access
//     token JWTs, fe_* cookie values and email local parts
//
// Setup installs the logger as the slog default so every component using
// slog.Default() goes through the same redaction:
//
//	logger, err := logging.Setup(cfg.Logging)
//	ctx = logging.WithRequestID(ctx, id)
//	slog.InfoContext(ctx, "chat created", "chat_id", chatID)
package logging
