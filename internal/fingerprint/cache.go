package fingerprint

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	size    int64
	modTime time.Time
	digest  string
}

// Cache memoizes file digests keyed by path, invalidated by size or
// mtime changes. Large projects re-fingerprint the whole tree on every
// cook invocation; the memo keeps unchanged files from being re-read.
//
// The cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
}

// DefaultCacheSize bounds the memo when the tool config does not
// override it.
const DefaultCacheSize = 4096

// NewCache constructs a Cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// File returns the digest for the file at path, reusing the memoized
// value when size and mtime are unchanged.
func (c *Cache) File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if entry, ok := c.entries.Get(path); ok {
		if entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.digest, nil
		}
	}

	digest, err := File(path)
	if err != nil {
		return "", err
	}
	c.entries.Add(path, cacheEntry{size: info.Size(), modTime: info.ModTime(), digest: digest})
	return digest, nil
}

// Forget drops the memoized entry for path.
func (c *Cache) Forget(path string) {
	c.entries.Remove(path)
}
