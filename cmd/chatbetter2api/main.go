// Command chatbetter2api serves an OpenAI-compatible chat completion API
// backed by a pool of ChatBetter accounts.
//
// Usage:
//
//	# Start the server
//	chatbetter2api run --config config.yaml
//
//	# Register an account
//	chatbetter2api accounts add --email a@example.com --cookie fe_refresh_x=...
//
//	# Renew every account's access token
//	chatbetter2api accounts refresh --all
//
//	# Re-fetch the model catalog
//	chatbetter2api models refresh
package main

func main() {
	Execute()
}
