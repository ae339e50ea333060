package inmemory

import (
	"sync"

	"github.com/tdex-network/btcledger/internal/core/ports"
)

type scanCache struct {
	lock    *sync.RWMutex
	entries map[string]interface{}
}

// NewScanCache returns an empty in-memory ScanCache. Entries never expire
// nor get evicted.
func NewScanCache() ports.ScanCache {
	return &scanCache{
		lock:    &sync.RWMutex{},
		entries: make(map[string]interface{}),
	}
}

func (c *scanCache) Get(key string) (interface{}, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	value, ok := c.entries[key]
	return value, ok
}

func (c *scanCache) Set(key string, value interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.entries[key] = value
}

func (c *scanCache) Has(key string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	_, ok := c.entries[key]
	return ok
}

func (c *scanCache) Del(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.entries, key)
}

func (c *scanCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.entries)
}
