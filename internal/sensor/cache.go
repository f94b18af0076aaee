package sensor

import (
	"sync"
	"time"
)

// Cache is the single shared record of the latest sensor values. The ingestion
// loop writes it; HTTP handlers read copies of it. The lock is only ever held
// for the in-memory merge or copy.
type Cache struct {
	mu        sync.Mutex
	reading   Reading
	updatedAt time.Time
	now       func() time.Time
}

func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// Update merges the fields present in u into the cached reading.
func (c *Cache) Update(u Update) {
	c.mu.Lock()
	c.reading.apply(u)
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Snapshot returns an independent copy of the cached reading.
func (c *Cache) Snapshot() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

// UpdatedAt is the time of the last merge, zero if nothing was received yet.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}
