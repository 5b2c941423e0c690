// Package assets fetches model files and their side files (material
// libraries, textures) over HTTP or from disk, caching them in memory.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/instructmesh/internal/logger"
)

// DefaultCacheBytes bounds the in-memory cache.
const DefaultCacheBytes = 256 << 20

// Manager loads assets by reference: an http(s) URL or a local path.
// Concurrent loads of the same reference share one download.
type Manager struct {
	http  *http.Client
	cache *Cache
	group singleflight.Group
	log   *zap.Logger
}

// NewManager creates a manager. A nil client uses http.DefaultClient.
func NewManager(client *http.Client, cacheBytes int64) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		http:  client,
		cache: NewCache(cacheBytes),
		log:   logger.Named("assets"),
	}
}

// Load returns the bytes behind ref.
func (m *Manager) Load(ctx context.Context, ref string) ([]byte, error) {
	if data, ok := m.cache.Get(ref); ok {
		return data, nil
	}

	v, err, shared := m.group.Do(ref, func() (any, error) {
		data, err := m.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		m.cache.Set(ref, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("asset loaded", zap.String("ref", ref), zap.Bool("shared", shared))
	return v.([]byte), nil
}

func (m *Manager) fetch(ctx context.Context, ref string) ([]byte, error) {
	if !IsRemote(ref) {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", ref, err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: %s", ref, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", ref, err)
	}
	return data, nil
}

// Invalidate drops ref from the cache, e.g. after the backend rewrote it.
func (m *Manager) Invalidate(ref string) {
	m.cache.Delete(ref)
}

// Stats returns cache hit and miss counts.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close releases cached data.
func (m *Manager) Close() {
	m.cache.Clear()
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Resolve returns the reference of rel relative to the asset at base.
func Resolve(base, rel string) string {
	if IsRemote(rel) || filepath.IsAbs(rel) {
		return rel
	}
	if IsRemote(base) {
		u, err := url.Parse(base)
		if err != nil {
			return rel
		}
		u.Path = path.Join(path.Dir(u.Path), rel)
		u.RawQuery = ""
		return u.String()
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(rel))
}

// Cache is an in-memory byte cache bounded by total size. The oldest entries
// are evicted first.
type Cache struct {
	mu       sync.Mutex
	data     map[string][]byte
	order    []string
	size     int64
	maxBytes int64

	hits   int
	misses int
}

// NewCache creates a cache holding at most maxBytes. Zero means unbounded.
func NewCache(maxBytes int64) *Cache {
	return &Cache{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item, evicting old entries to stay within the budget.
// Items larger than the whole budget are not cached.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return
	}
	c.deleteLocked(key)
	c.data[key] = data
	c.order = append(c.order, key)
	c.size += int64(len(data))

	for c.maxBytes > 0 && c.size > c.maxBytes && len(c.order) > 0 {
		c.deleteLocked(c.order[0])
	}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
}

func (c *Cache) deleteLocked(key string) {
	data, ok := c.data[key]
	if !ok {
		return
	}
	delete(c.data, key)
	c.size -= int64(len(data))
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.order = nil
	c.size = 0
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
