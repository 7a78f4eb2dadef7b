package limits

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goodtune/limitsmate/internal/metrics"
)

// DefaultCacheSize is the number of parsed log files kept in memory.
const DefaultCacheSize = 256

type cachedParse struct {
	size      int64
	modTime   time.Time
	namespace string
	entries   []Entry
}

// Cache memoizes ParseAll per log file. An entry is reused only while the
// file's size and modification time and the requested namespace are unchanged.
type Cache struct {
	parsed *lru.Cache[string, cachedParse]
}

// NewCache creates a cache holding up to size files.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	parsed, err := lru.New[string, cachedParse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse cache: %w", err)
	}
	return &Cache{parsed: parsed}, nil
}

// Load returns every entry of the file at path for namespace, reading and
// parsing it only when the cached result is stale.
func (c *Cache) Load(path string, info os.FileInfo, namespace string) ([]Entry, error) {
	if cached, ok := c.parsed.Get(path); ok &&
		cached.size == info.Size() &&
		cached.modTime.Equal(info.ModTime()) &&
		cached.namespace == namespace {
		metrics.ParseCacheHits.Inc()
		return cached.entries, nil
	}
	metrics.ParseCacheMisses.Inc()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	entries := ParseAll(string(data), namespace)
	c.parsed.Add(path, cachedParse{
		size:      info.Size(),
		modTime:   info.ModTime(),
		namespace: namespace,
		entries:   entries,
	})
	return entries, nil
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	c.parsed.Purge()
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	return c.parsed.Len()
}
