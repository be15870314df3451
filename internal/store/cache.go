package store

import "sync"

// pathCache holds parsed JSON definitions keyed by resolved file path.
// Writes to a path invalidate exactly that path; there is no ambient
// process-wide state.
type pathCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newPathCache() *pathCache {
	return &pathCache{entries: make(map[string]any)}
}

func (c *pathCache) get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[path]
	return v, ok
}

func (c *pathCache) put(path string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = v
}

func (c *pathCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

func (c *pathCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path := range c.entries {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			delete(c.entries, path)
		}
	}
}
