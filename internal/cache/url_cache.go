// Package cache keeps presigned image URLs so catalog refreshes do not re-sign every
// image and the terminal keeps showing the same link for a product.
package cache

import (
	"strings"
	"sync"
	"time"
)

// URLEntry holds a cached URL with the time it stops being served.
type URLEntry struct {
	URL       string
	ExpiresAt time.Time
}

const (
	// ExpiryMargin is subtracted from the URL lifetime so a cached link is never handed
	// out just before the storage rejects it.
	ExpiryMargin = 30 * time.Second

	// CleanupInterval controls how often stale entries are purged.
	CleanupInterval = 10 * time.Minute
)

// URLCache maps storage keys to presigned URLs.
type URLCache struct {
	mu      sync.Mutex
	entries map[string]URLEntry
	ttl     time.Duration
	now     func() time.Time

	cleanupOnce sync.Once
	closeOnce   sync.Once
	stop        chan struct{}
}

// NewURLCache returns a cache for URLs that stay valid for lifetime.
// A lifetime shorter than ExpiryMargin disables caching.
func NewURLCache(lifetime time.Duration) *URLCache {
	return &URLCache{
		entries: make(map[string]URLEntry),
		ttl:     lifetime - ExpiryMargin,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func normalizeKey(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "/")
}

// Get returns the URL cached for key, if it is still fresh.
func (c *URLCache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	key = normalizeKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.URL, true
}

// Put stores url for key.
func (c *URLCache) Put(key, url string) {
	if c == nil || c.ttl <= 0 || url == "" {
		return
	}
	c.cleanupOnce.Do(c.startCleanup)
	c.mu.Lock()
	c.entries[normalizeKey(key)] = URLEntry{URL: url, ExpiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops key, or every entry when key is empty.
func (c *URLCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]URLEntry)
		return
	}
	delete(c.entries, normalizeKey(key))
}

// Len reports the number of cached entries, fresh or not.
func (c *URLCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background cleanup.
func (c *URLCache) Close() {
	if c == nil {
		return
	}
	c.cleanupOnce.Do(func() {})
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *URLCache) startCleanup() {
	go func() {
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.purgeExpired()
			}
		}
	}()
}

// purgeExpired removes entries past their expiry.
func (c *URLCache) purgeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
