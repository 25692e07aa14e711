package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-offline-sync/internal/logger"
	"erp-offline-sync/internal/store"
)

// CacheError is a sentinel error kind for cache failures.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrUnavailable indicates the persistent storage layer failed a
	// read or write. A failed write never corrupts the prior entry.
	ErrUnavailable CacheError = "cache storage unavailable"
)

type ItemStat struct {
	Key  string        `json:"key"`
	Size int64         `json:"size"`
	Age  time.Duration `json:"age"`
}

type Stats struct {
	TotalItems int        `json:"total_items"`
	TotalSize  int64      `json:"total_size"`
	Items      []ItemStat `json:"items"`
}

// Cache is the durable key-value store of last known-good API responses.
// Writers are serialized so concurrent Set calls for the same key never
// interleave partially.
type Cache struct {
	store store.Store
	mu    sync.Mutex
	hub   *hub
}

func New(st store.Store) *Cache {
	return &Cache{
		store: st,
		hub:   newHub(),
	}
}

// Get returns the entry for key, or nil if absent. It never touches the
// network. A storage failure is reported as ErrUnavailable; callers on the
// read path treat that the same as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*store.CacheEntry, error) {
	entry, err := c.store.GetEntry(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entry, nil
}

// Set replaces any existing entry for key and notifies subscribers.
// On a storage error the prior entry is left intact.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &store.CacheEntry{
		Key:       key,
		Payload:   payload,
		SizeBytes: int64(len(payload)),
		FetchedAt: time.Now(),
	}

	if err := c.store.PutEntry(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.hub.publish(Event{Key: key})
	return nil
}

// Remove deletes one entry; no-op if absent.
func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteEntry(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.hub.publish(Event{Key: key})
	return nil
}

// InvalidateResource drops every entry in the resource's key family
// ("events:42" invalidates "events" and every "events:*" key), so readers
// refetch server truth after a confirmed or rejected mutation.
func (c *Cache) InvalidateResource(ctx context.Context, resource string) error {
	family := Family(resource)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteEntriesByPrefix(ctx, family); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Log.Debug("Invalidated cache family", zap.String("family", family))
	c.hub.publish(Event{Key: family, Family: true})
	return nil
}

// ClearAll removes every entry. The store performs the delete in a single
// transaction: all entries go, or on a storage error none are reported
// removed.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.ClearEntries(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.hub.publish(Event{All: true})
	return nil
}

// Stats reports the aggregate view for the status screen. Age is computed
// at call time from FetchedAt.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	entries, err := c.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	stats := &Stats{Items: make([]ItemStat, 0, len(entries))}
	for _, e := range entries {
		stats.TotalItems++
		stats.TotalSize += e.SizeBytes
		stats.Items = append(stats.Items, ItemStat{
			Key:  e.Key,
			Size: e.SizeBytes,
			Age:  now.Sub(e.FetchedAt),
		})
	}

	return stats, nil
}

// Subscribe registers for change events. Callers must Unsubscribe when the
// consuming screen unmounts.
func (c *Cache) Subscribe() *Subscription {
	return c.hub.subscribe()
}

func (c *Cache) Close() {
	c.hub.close()
}

// Family maps a resource name to its cache key family: the segment before
// the first ':' ("events:42" -> "events").
func Family(resource string) string {
	if i := strings.Index(resource, ":"); i > 0 {
		return resource[:i]
	}
	return resource
}
