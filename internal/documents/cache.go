package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
)

type cacheEntry struct {
	localPath  string
	size       int64
	lastAccess time.Time
}

// diskCache mirrors each open document to disk under a stable key so
// content survives a crash before the first save. It is a resiliency
// cache, never the source of truth.
type diskCache struct {
	dir     string
	maxSize int64

	mu      sync.Mutex
	entries map[string]*cacheEntry
	size    int64
}

// newDiskCache opens the cache directory and rehydrates entries left
// by a previous run.
func newDiskCache(dir string, maxSize int64) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &diskCache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*cacheEntry),
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}
	for _, de := range dirents {
		if de.IsDir() || strings.HasSuffix(de.Name(), ".tmp") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		c.entries[de.Name()] = &cacheEntry{
			localPath:  filepath.Join(dir, de.Name()),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		c.size += info.Size()
	}
	metrics.SetCacheSize(c.size)
	return c, nil
}

// put stores content atomically (temp file then rename), evicting the
// least recently used entries when the size cap would be exceeded. A
// failed write leaves the previous entry and accounting intact.
func (c *diskCache) put(key string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	need := int64(len(content))
	for {
		projected := c.size + need
		if old, ok := c.entries[key]; ok {
			projected -= old.size
		}
		if projected <= c.maxSize {
			break
		}
		if !c.evictOldest(key) {
			break
		}
	}

	localPath := filepath.Join(c.dir, key)
	tempPath := localPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0600); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename cache temp file: %w", err)
	}

	if old, ok := c.entries[key]; ok {
		c.size -= old.size
	}
	c.entries[key] = &cacheEntry{
		localPath:  localPath,
		size:       need,
		lastAccess: time.Now(),
	}
	c.size += need
	metrics.SetCacheSize(c.size)
	return nil
}

// get returns the cached content for key, if present.
func (c *diskCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		entry.lastAccess = time.Now()
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(entry.localPath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// remove drops one entry.
func (c *diskCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	os.Remove(entry.localPath)
	c.size -= entry.size
	delete(c.entries, key)
	metrics.SetCacheSize(c.size)
}

// evictOldest removes the least recently used entry, sparing skip.
// Must be called with the lock held.
func (c *diskCache) evictOldest(skip string) bool {
	var oldest *cacheEntry
	var oldestKey string
	for key, entry := range c.entries {
		if key == skip {
			continue
		}
		if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
			oldest = entry
			oldestKey = key
		}
	}
	if oldest == nil {
		return false
	}
	os.Remove(oldest.localPath)
	c.size -= oldest.size
	delete(c.entries, oldestKey)
	metrics.RecordCacheEviction()
	return true
}

// stats returns current size, the cap, and the entry count.
func (c *diskCache) stats() (size, maxSize int64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, c.maxSize, len(c.entries)
}

// clear removes every entry, returning how many were dropped.
func (c *diskCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key, entry := range c.entries {
		os.Remove(entry.localPath)
		c.size -= entry.size
		delete(c.entries, key)
		count++
	}
	metrics.SetCacheSize(c.size)
	return count
}

// CacheUsage reports the committed cache footprint on disk without a
// session: total bytes and entry count.
func CacheUsage(dir string) (size int64, count int, err error) {
	c, err := newDiskCache(dir, 0)
	if err != nil {
		return 0, 0, err
	}
	size, _, count = c.stats()
	return size, count, nil
}

// ClearCache opens the cache directory without a session and removes
// every committed entry, returning how many were dropped. Content held
// for crash recovery is lost.
func ClearCache(dir string) (int, error) {
	c, err := newDiskCache(dir, 0)
	if err != nil {
		return 0, err
	}
	return c.clear(), nil
}
