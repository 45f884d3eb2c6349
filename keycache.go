package deaddrop

import "sync"

// cachedKey is one resolved key record: the raw key bytes and the two relay
// addresses derived from them.
type cachedKey struct {
	raw        []byte
	putAddress string
	getAddress string
}

// keyCache caches unwrapped contact keys by key record id. Entries are
// populated read-through on first use and evicted on rotation and contact
// deletion, so a stale key can never outlive the record it came from.
type keyCache struct {
	mu      sync.RWMutex
	entries map[string]*cachedKey
}

func newKeyCache() *keyCache {
	return &keyCache{entries: make(map[string]*cachedKey)}
}

func (c *keyCache) get(keyID string) (*cachedKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[keyID]
	return entry, ok
}

func (c *keyCache) put(keyID string, entry *cachedKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyID] = entry
}

func (c *keyCache) evict(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, keyID)
}

func (c *keyCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedKey)
}
