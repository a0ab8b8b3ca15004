// Package proxy holds the HTTP plumbing shared by the OpenAI-compatible
// endpoints and the admin API.
//
// # Architecture
//
//   - Handlers: chat completions, model listing, account administration and
//     localized image files (package handlers)
//   - Middleware: admin authentication, logging, CORS, request IDs, recovery
//     and deadlines (package middleware)
//   - Types: OpenAI-compatible request and response bodies (package types)
//
// This package parses request bodies, maps pipeline errors onto
// OpenAI-style error responses and writes JSON and Server-Sent Events.
//
// # Error Mapping
//
// HandleError maps the errors of the completion pipeline onto HTTP statuses:
//
//   - malformed bodies and empty message lists: 400
//   - unknown accounts: 404
//   - no selectable account or no established conversation: 503
//   - a rejected message submission or an upstream error frame: 502
//   - deadlines: 504
//   - anything else: 500 with a generic message
//
// # Streaming
//
// SSEWriter sends headers with its first event, so an error that happens
// before any chunk still produces a regular JSON error response:
//
//	sse := proxy.NewSSEWriter(w)
//	if err := conv.Stream(ctx, sse); err != nil {
//	    if !sse.Started() {
//	        proxy.WriteErrorResponse(w, proxy.HandleError(err))
//	        return
//	    }
//	    sse.WriteError(proxy.HandleError(err))
//	}
package proxy
