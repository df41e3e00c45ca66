package cache

import (
	"context"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is an in-process IdentityCache for single-node deployments.
// Entries are stored encoded, so readers never share state with writers.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryCache holds up to size snapshots; maxTTL caps any entry's lifetime.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, email string) (*models.User, bool) {
	e, ok := c.lru.Get(key(email))
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		c.lru.Remove(key(email))
		return nil, false
	}
	u, err := decode(e.data)
	if err != nil {
		return nil, false
	}
	return u, true
}

func (c *MemoryCache) Put(_ context.Context, email string, user *models.User, ttl time.Duration) bool {
	b, err := encode(user)
	if err != nil {
		return false
	}
	c.lru.Add(key(email), memoryEntry{data: b, expires: c.now().Add(ttl)})
	return true
}

func (c *MemoryCache) Invalidate(_ context.Context, email string) bool {
	c.lru.Remove(key(email))
	return true
}
