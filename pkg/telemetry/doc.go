// Package telemetry groups the observability packages of the proxy.
//
//   - logging: slog setup with credential redaction and request context fields
//   - metrics: Prometheus collectors for accounts, channels, completions and upstream calls
//   - health: liveness, readiness and version endpoints
//
// The server mounts health endpoints at /health, /ready and /version and the
// metrics handler at the configured path (default /metrics).
package telemetry
