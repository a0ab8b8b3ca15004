// Package cache provides the expiring key-value mirror of selectable accounts.
//
// # Overview
//
// The mirror keeps a short-lived copy of each enabled account so that the
// selection hot path does not have to query the persistent store. Entries are
// partitioned into two namespaces, one per tier:
//
//	chatbetter2api:account:<id>        standard tier entry (JSON)
//	chatbetter2api:paid_account:<id>   elevated tier entry (JSON)
//	chatbetter2api:account:set         ids mirrored in the standard tier
//	chatbetter2api:paid_account:set    ids mirrored in the elevated tier
//
// Only members of a namespace set are considered. When a member's entry has
// expired the id is removed from the set on the next read, so the set heals
// itself without a background sweeper. TTL expiry is the only eviction.
//
// # Backends
//
//   - MemoryMirror: process-local, used when no Redis is configured
//   - RedisMirror: shared across instances, backed by go-redis
//
// # Usage
//
//	mirror := cache.NewMemoryMirror()
//	accounts := cache.NewAccountCache(mirror, "chatbetter2api:", 30*time.Second)
//
//	err := accounts.Put(ctx, cache.NamespaceStandard, cache.Entry{ID: 1, Email: "a@example.com"})
//	entry, err := accounts.Pick(ctx, cache.NamespaceStandard)
//
// # Thread Safety
//
// All backends are safe for concurrent use.
package cache
