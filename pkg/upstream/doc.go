// Package upstream is the HTTP client for the ChatBetter web application.
//
// It covers the endpoints the proxy needs: conversation creation and
// submission, silent credential refresh, sign-in, account info, the model
// list and file content. Each endpoint family sits behind its own circuit
// breaker so a failing identity provider does not take chat traffic down
// with it, and every call records latency and status metrics.
//
// Non-2xx responses are returned as *StatusError; calls rejected by an open
// breaker wrap ErrCircuitOpen.
package upstream
