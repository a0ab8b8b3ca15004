// Package credentials rotates the short-lived access material of accounts.
//
// A refresh exchanges the stored session cookies for a new access token
// through the identity provider's silent-authorization endpoint. The
// response must carry an access token and both the fe_device and
// fe_refresh cookie families; anything else disables the account and evicts
// it from the cache mirror. A successful refresh stores the new cookies,
// extends the cookie expiry by 30 days and marks the access token usable for
// 15 minutes.
//
// After a successful refresh the primary bearer token and account type are
// re-derived. Failures in that step are logged and do not fail the refresh.
package credentials
