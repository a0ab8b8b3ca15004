// Package transform rewrites upstream answer text before it reaches the
// client.
//
// Two rewrites are applied to every cumulative answer string:
//
//   - ImageLocalizer replaces links to upstream-hosted images with links to
//     local copies, downloading each image once per request.
//   - NormalizeReasoning turns collapsible reasoning blocks into <think>
//     tags.
//
// Both rewrites are deterministic for a given input, so applying them to a
// growing cumulative string and diffing the results yields stable deltas.
package transform
