// Package types defines the OpenAI-compatible wire types of the client
// surface.
//
// Request types:
//   - ChatCompletionRequest: body of POST /v1/chat/completions
//   - Message: one conversation message; Content is a string or a list of
//     text and image_url parts
//
// Response types:
//   - ChatCompletionResponse: non-streaming body
//   - ChatCompletionChunk: one server-sent event of a streaming body
//   - ErrorResponse: error body for every failure
//
// Usage objects reported upstream are carried as raw JSON and passed to the
// client unchanged.
package types
