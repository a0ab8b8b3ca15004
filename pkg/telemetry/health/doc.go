// Package health provides liveness, readiness and version endpoints.
//
// # Endpoints
//
//   - /health: the process is running
//   - /ready: registered component checks
//   - /version: build information
//
// # Severity
//
// Checks are critical or optional. A failing critical check (the account
// store) answers /ready with 503. A failing optional check (the cache
// mirror, the model catalog, the account pool) reports "degraded" with 200,
// since requests can still be served from the store or fail individually.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	checker.Register("cache", health.PingCheck(mirror), health.Optional)
//	checker.Register("accounts", health.AccountsCheck(store), health.Optional)
//	health.Register(mux, checker, health.VersionInfo{Version: version})
package health
