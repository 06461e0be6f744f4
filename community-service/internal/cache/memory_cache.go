package cache

import (
	"context"
	"sync"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/domain"
)

type memoryEntry struct {
	rs        domain.RecordingSession
	expiresAt time.Time // zero means no expiry
}

// MemoryRecordingCache is an in-process RecordingCache for single-instance
// deployments and tests.
type MemoryRecordingCache struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	now     func() time.Time
}

func NewMemoryRecordingCache() *MemoryRecordingCache {
	return &MemoryRecordingCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy so callers cannot mutate the cached handle.
func (c *MemoryRecordingCache) Get(ctx context.Context, broadcastID string) (*domain.RecordingSession, error) {
	c.mu.RLock()
	e, ok := c.entries[broadcastID]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[broadcastID]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, broadcastID)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	rs := e.rs
	return &rs, nil
}

func (c *MemoryRecordingCache) Set(ctx context.Context, broadcastID string, rs *domain.RecordingSession, ttl time.Duration) error {
	e := memoryEntry{rs: *rs}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[broadcastID] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryRecordingCache) Delete(ctx context.Context, broadcastIDs ...string) error {
	c.mu.Lock()
	for _, id := range broadcastIDs {
		delete(c.entries, id)
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryRecordingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryRecordingCache) Close() error {
	return nil
}

var _ RecordingCache = (*MemoryRecordingCache)(nil)
