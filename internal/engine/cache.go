package engine

import (
	"sync"
	"time"

	"github.com/hyperclay/sitesync/internal/api"
)

// serverCache holds the last list() result for the pre-upload checksum
// short-circuit (§4.9, "server-files cache"). A successful upload
// invalidates it immediately; download does not. Readers tolerate
// staleness bounded by ttl — the worker never forces a refresh just to
// consult it (P3/P4).
type serverCache struct {
	mu        sync.Mutex
	byName    map[string]api.RemoteFile
	fetchedAt time.Time
	ttl       time.Duration
}

func newServerCache(ttl time.Duration) *serverCache {
	return &serverCache{ttl: ttl}
}

// Set replaces the cached listing, stamping the refresh time.
func (c *serverCache) Set(files []api.RemoteFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName := make(map[string]api.RemoteFile, len(files))
	for _, f := range files {
		byName[f.Filename] = f
	}

	c.byName = byName
	c.fetchedAt = time.Now()
}

// Invalidate discards the cache so the next consult is a forced miss.
func (c *serverCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byName = nil
	c.fetchedAt = time.Time{}
}

// Lookup returns the cached entry for siteName, or ok=false if the cache
// is empty, expired, or does not contain siteName. Staleness beyond ttl is
// treated identically to a miss — the caller then proceeds with a real
// upload rather than forcing a refresh.
func (c *serverCache) Lookup(siteName string) (api.RemoteFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byName == nil || time.Since(c.fetchedAt) > c.ttl {
		return api.RemoteFile{}, false
	}

	f, ok := c.byName[siteName]

	return f, ok
}
