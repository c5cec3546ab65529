package cache

import (
	"container/list"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type imageEntry struct {
	key  string
	data []byte
}

// ImageCache is an LRU pool of decoded image payloads keyed by resource
// identity, not chapter identity: an image referenced from several chapters
// is decoded once and survives eviction of any single chapter. It carries
// its own byte budget, decoupled from the chapter cache.
type ImageCache struct {
	maxBytes int64
	log      *zap.Logger

	mu         sync.Mutex
	ll         *list.List // front is most recently used
	items      map[string]*list.Element
	totalBytes int64
}

// NewImageCache creates a pool with the given byte budget.
func NewImageCache(maxBytes int64, log *zap.Logger) *ImageCache {
	if maxBytes <= 0 {
		panic(fmt.Sprintf("invalid image cache budget: %d", maxBytes))
	}
	return &ImageCache{
		maxBytes: maxBytes,
		log:      log,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Resolve returns cached bytes for the resource, invoking load on miss and
// keeping the result. Load failures are not cached.
func (c *ImageCache) Resolve(key string, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		data := el.Value.(*imageEntry).data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := load()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		// lost the race to a concurrent load of the same resource
		c.ll.MoveToFront(el)
		return el.Value.(*imageEntry).data, nil
	}
	c.items[key] = c.ll.PushFront(&imageEntry{key: key, data: data})
	c.totalBytes += int64(len(data))

	for c.totalBytes > c.maxBytes && c.ll.Len() > 1 {
		el := c.ll.Back()
		e := el.Value.(*imageEntry)
		c.ll.Remove(el)
		delete(c.items, e.key)
		c.totalBytes -= int64(len(e.data))
		c.log.Debug("Evicted image from cache",
			zap.String("resource", e.key),
			zap.Int("bytes", len(e.data)),
			zap.Int64("cached_bytes", c.totalBytes))
	}
	return data, nil
}

// Contains reports whether the resource is resident without refreshing
// recency.
func (c *ImageCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Len returns the number of resident resources.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// TotalBytes returns aggregate byte size of resident resources.
func (c *ImageCache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}
