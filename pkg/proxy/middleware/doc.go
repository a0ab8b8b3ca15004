// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server wraps every route in:
//
//	handler = Recovery(Logging(RequestID(CORS(handler))))
//
// The OpenAI-compatible routes and the admin API additionally sit behind
// AdminAuthMiddleware and TimeoutMiddleware:
//
//	api = AdminAuthMiddleware(cfg.Auth.AdminPassword)(TimeoutMiddleware(d)(api))
//
// # Authentication
//
// AdminAuthMiddleware accepts the admin password either as a bearer token
// or as the bare Authorization header value. A missing header and a wrong
// password both produce 401 with an OpenAI-style error body.
//
// # Request ID
//
// RequestIDMiddleware keeps a client supplied X-Request-ID or generates a
// UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// # Logging
//
// LoggingMiddleware records one line per request:
//
//	{
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/chat/completions",
//	  "status": 200,
//	  "bytes": 5120,
//	  "latency_ms": 1250,
//	  "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	}
//
// The wrapped writer forwards Flush, so Server-Sent Events stream through
// it unbuffered.
//
// # Timeout
//
// TimeoutMiddleware only bounds the request context. The handler observes
// context.DeadlineExceeded and writes the 504 itself.
//
// # CORS
//
// CORSMiddleware is configured from the server section:
//
//	server:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["https://app.example.com"]
//	    max_age: 3600
package middleware
