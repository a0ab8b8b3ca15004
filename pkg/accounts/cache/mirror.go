package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrMiss is returned by Mirror.Get when the key does not exist or expired.
var ErrMiss = errors.New("cache: miss")

// Mirror is the minimal expiring key-value contract the account cache needs.
// Any store with TTL keys and string sets satisfies it.
type Mirror interface {
	// Set stores value under key for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// AddToSet adds members to the set stored at set.
	AddToSet(ctx context.Context, set string, members ...string) error

	// RemoveFromSet removes members from the set stored at set.
	RemoveFromSet(ctx context.Context, set string, members ...string) error

	// Members returns all members of set in no particular order.
	Members(ctx context.Context, set string) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Namespace partitions cached entries by tier.
type Namespace string

const (
	// NamespaceStandard holds every selectable account.
	NamespaceStandard Namespace = "account"

	// NamespaceElevated holds selectable paid accounts.
	NamespaceElevated Namespace = "paid_account"
)

// Entry is the cached copy of an account's selectable fields.
type Entry struct {
	ID          int64  `json:"id"`
	Email       string `json:"account"`
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	AccountType string `json:"account_type"`
	Count       int64  `json:"count"`
	Enabled     bool   `json:"enable"`
}

// AccountCache stores account entries in a Mirror using tier-partitioned keys.
type AccountCache struct {
	mirror Mirror
	prefix string
	ttl    time.Duration
}

// NewAccountCache creates an AccountCache. prefix is prepended to every key.
func NewAccountCache(mirror Mirror, prefix string, ttl time.Duration) *AccountCache {
	return &AccountCache{
		mirror: mirror,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Mirror returns the underlying backend.
func (c *AccountCache) Mirror() Mirror {
	return c.mirror
}

func (c *AccountCache) entryKey(ns Namespace, id string) string {
	return c.prefix + string(ns) + ":" + id
}

func (c *AccountCache) setKey(ns Namespace) string {
	return c.prefix + string(ns) + ":set"
}

// Put writes entry with the configured TTL and records its id in the
// namespace set.
func (c *AccountCache) Put(ctx context.Context, ns Namespace, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	id := strconv.FormatInt(entry.ID, 10)
	if err := c.mirror.Set(ctx, c.entryKey(ns, id), data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache account %s: %w", id, err)
	}
	if err := c.mirror.AddToSet(ctx, c.setKey(ns), id); err != nil {
		return fmt.Errorf("failed to index account %s: %w", id, err)
	}
	return nil
}

// Get returns the entry for id. Ids that are not members of the namespace
// set are reported as ErrMiss even when the key is still reachable.
func (c *AccountCache) Get(ctx context.Context, ns Namespace, id int64) (*Entry, error) {
	members, err := c.mirror.Members(ctx, c.setKey(ns))
	if err != nil {
		return nil, err
	}

	want := strconv.FormatInt(id, 10)
	for _, m := range members {
		if m == want {
			return c.load(ctx, ns, m)
		}
	}
	return nil, ErrMiss
}

// Pick returns the least used live entry of the namespace. Members whose
// entry has expired are removed from the set. ErrMiss is returned when no
// live entry remains.
func (c *AccountCache) Pick(ctx context.Context, ns Namespace) (*Entry, error) {
	members, err := c.mirror.Members(ctx, c.setKey(ns))
	if err != nil {
		return nil, err
	}

	var best *Entry
	for _, m := range members {
		entry, err := c.load(ctx, ns, m)
		if errors.Is(err, ErrMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if best == nil || entry.Count < best.Count || (entry.Count == best.Count && entry.ID < best.ID) {
			best = entry
		}
	}

	if best == nil {
		return nil, ErrMiss
	}
	return best, nil
}

// load reads the entry for a set member and drops the member when the entry
// is gone.
func (c *AccountCache) load(ctx context.Context, ns Namespace, member string) (*Entry, error) {
	data, err := c.mirror.Get(ctx, c.entryKey(ns, member))
	if errors.Is(err, ErrMiss) {
		if rmErr := c.mirror.RemoveFromSet(ctx, c.setKey(ns), member); rmErr != nil {
			return nil, rmErr
		}
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Undecodable entries are treated like expired ones.
		_ = c.mirror.Delete(ctx, c.entryKey(ns, member))
		_ = c.mirror.RemoveFromSet(ctx, c.setKey(ns), member)
		return nil, ErrMiss
	}
	return &entry, nil
}

// IncrementCount bumps the cached usage counter of id, keeping the TTL
// window fresh. A missing entry is not an error.
func (c *AccountCache) IncrementCount(ctx context.Context, ns Namespace, id int64) error {
	entry, err := c.load(ctx, ns, strconv.FormatInt(id, 10))
	if errors.Is(err, ErrMiss) {
		return nil
	}
	if err != nil {
		return err
	}
	entry.Count++
	return c.Put(ctx, ns, *entry)
}

// Remove deletes id from the namespace.
func (c *AccountCache) Remove(ctx context.Context, ns Namespace, id int64) error {
	member := strconv.FormatInt(id, 10)
	if err := c.mirror.Delete(ctx, c.entryKey(ns, member)); err != nil {
		return err
	}
	return c.mirror.RemoveFromSet(ctx, c.setKey(ns), member)
}

// Clear removes every entry of the namespace together with its set.
func (c *AccountCache) Clear(ctx context.Context, ns Namespace) error {
	members, err := c.mirror.Members(ctx, c.setKey(ns))
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, c.entryKey(ns, m))
	}
	keys = append(keys, c.setKey(ns))
	return c.mirror.Delete(ctx, keys...)
}

// Replace clears the namespace and writes entries in order.
func (c *AccountCache) Replace(ctx context.Context, ns Namespace, entries []Entry) error {
	if err := c.Clear(ctx, ns); err != nil {
		return fmt.Errorf("failed to clear %s cache: %w", ns, err)
	}
	for _, e := range entries {
		if err := c.Put(ctx, ns, e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns every live entry of the namespace ordered by id.
func (c *AccountCache) Entries(ctx context.Context, ns Namespace) ([]Entry, error) {
	members, err := c.mirror.Members(ctx, c.setKey(ns))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		entry, err := c.load(ctx, ns, m)
		if errors.Is(err, ErrMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
