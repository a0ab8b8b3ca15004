// Package handlers provides the HTTP handlers of the proxy.
//
// # Handlers
//
//   - ChatHandler: POST /v1/chat/completions, streaming or buffered
//   - ModelsHandler: GET /v1/models from the cached model catalog
//   - AdminHandler: the account API under /api/tokens
//   - FilesHandler: localized images under /files/
//
// Handlers depend on small interfaces (Completer, ModelSource,
// AccountRefresher, ModelRefresher, AccountSyncer) so they can be tested
// without an upstream.
//
// # Chat Completions
//
// ChatHandler parses the body, asks the Completer for an established
// conversation and closes it when the response is done. Errors before the
// first event are returned as JSON:
//
//	{
//	  "error": {
//	    "message": "Unable to establish connection and create chat after several retries",
//	    "type": "service_unavailable",
//	    "code": "upstream_unavailable"
//	  }
//	}
//
// Once streaming has begun an error ends the stream with a single error
// event and no [DONE] marker.
//
// # Account API
//
//	POST   /api/tokens/login              check the admin password
//	POST   /api/tokens                    register or update an account by email
//	GET    /api/tokens                    page through accounts (skip, limit, account, sort_by, sort_desc)
//	GET    /api/tokens/available          selectable accounts
//	GET    /api/tokens/{id}               one account
//	GET    /api/tokens/account/{account}  look up by email
//	PUT    /api/tokens/{id}               partial update
//	PUT    /api/tokens/{id}/increment     bump the usage counter
//	DELETE /api/tokens/{id}               soft delete
//	POST   /api/tokens/{id}/refresh       renew credentials now
//	GET    /api/tokens/refresh-models     re-fetch the model catalog
//
// Every mutation is mirrored into the selection cache through the
// AccountSyncer.
package handlers
