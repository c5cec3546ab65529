// Package cache bounds the reading session's memory: a chapter LRU keeping a
// handful of rendered chapters warm for back/forward navigation and a
// separate image LRU so resources shared between chapters are decoded once.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Key identifies a rendered chapter within the cache keyspace. Different
// books partition the keyspace naturally, opening another book does not
// require purging prior entries.
type Key struct {
	BookID  string
	Chapter int
}

// RenderedChapter is display-ready chapter content. Immutable after creation,
// owned by the cache once inserted.
type RenderedChapter struct {
	HTML     string
	ByteSize int64
}

// LoadFunc produces rendered content on cache miss.
type LoadFunc func(ctx context.Context, bookID string, chapter int) (RenderedChapter, error)

// ChapterLoadError wraps a failed chapter load with the index that failed.
// Nothing is cached on failure.
type ChapterLoadError struct {
	BookID  string
	Chapter int
	Err     error
}

func (e *ChapterLoadError) Error() string {
	return fmt.Sprintf("unable to load chapter %d: %v", e.Chapter, e.Err)
}

func (e *ChapterLoadError) Unwrap() error { return e.Err }

type chapterEntry struct {
	key   Key
	value RenderedChapter
}

type inflight struct {
	done  chan struct{}
	value RenderedChapter
	err   error
}

// ChapterCache is an LRU over rendered chapters bounded both by entry count
// and by aggregate byte size. Safe for concurrent use; concurrent gets for
// the same key share a single load.
type ChapterCache struct {
	loader     LoadFunc
	maxEntries int
	maxBytes   int64
	log        *zap.Logger

	mu         sync.Mutex
	ll         *list.List // front is most recently used
	items      map[Key]*list.Element
	totalBytes int64
	calls      map[Key]*inflight
}

// NewChapterCache creates a cache with the given bounds. maxEntries must be
// at least 1, maxBytes positive.
func NewChapterCache(loader LoadFunc, maxEntries int, maxBytes int64, log *zap.Logger) *ChapterCache {
	if maxEntries < 1 || maxBytes <= 0 {
		panic(fmt.Sprintf("invalid chapter cache bounds: entries=%d bytes=%d", maxEntries, maxBytes))
	}
	c := &ChapterCache{
		loader:     loader,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		log:        log,
		ll:         list.New(),
		items:      make(map[Key]*list.Element),
		calls:      make(map[Key]*inflight),
	}
	return c
}

// Get returns rendered content for the chapter, loading and inserting it on
// miss. A hit refreshes recency and performs no decode work. On load failure
// nothing is cached and the error is returned as *ChapterLoadError.
func (c *ChapterCache) Get(ctx context.Context, bookID string, chapter int) (RenderedChapter, error) {
	key := Key{BookID: bookID, Chapter: chapter}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		v := el.Value.(*chapterEntry).value
		c.mu.Unlock()
		return v, nil
	}
	if call, ok := c.calls[key]; ok {
		// Somebody is already loading this chapter - await their result
		// instead of decoding twice.
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			return RenderedChapter{}, ctx.Err()
		}
	}
	call := &inflight{done: make(chan struct{})}
	c.calls[key] = call
	c.mu.Unlock()

	value, err := c.loader(ctx, bookID, chapter)

	c.mu.Lock()
	delete(c.calls, key)
	if err != nil {
		call.err = &ChapterLoadError{BookID: bookID, Chapter: chapter, Err: err}
		c.mu.Unlock()
		close(call.done)
		return RenderedChapter{}, call.err
	}
	if value.ByteSize < 0 {
		// invariant violation, not a runtime condition
		panic(fmt.Sprintf("negative chapter byte size %d for chapter %d", value.ByteSize, chapter))
	}
	c.insert(key, value)
	call.value = value
	c.mu.Unlock()
	close(call.done)
	return value, nil
}

// insert adds the entry at the most-recently-used position and evicts from
// the least-recently-used end until both bounds hold. The last remaining
// entry is never evicted, so a single chapter larger than the whole byte
// budget stays resident and simply becomes the first eviction candidate
// later. Callers must hold the lock.
func (c *ChapterCache) insert(key Key, value RenderedChapter) {
	if el, ok := c.items[key]; ok {
		// can happen when Clear raced with a load in flight
		old := el.Value.(*chapterEntry)
		c.totalBytes -= old.value.ByteSize
		old.value = value
		c.totalBytes += value.ByteSize
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&chapterEntry{key: key, value: value})
		c.totalBytes += value.ByteSize
	}

	for (c.ll.Len() > c.maxEntries || c.totalBytes > c.maxBytes) && c.ll.Len() > 1 {
		c.evictOldest()
	}
}

func (c *ChapterCache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	e := el.Value.(*chapterEntry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.totalBytes -= e.value.ByteSize
	if c.totalBytes < 0 {
		panic("chapter cache byte accounting went negative")
	}
	c.log.Debug("Evicted chapter from cache",
		zap.String("book", e.key.BookID),
		zap.Int("chapter", e.key.Chapter),
		zap.Int64("bytes", e.value.ByteSize),
		zap.Int64("cached_bytes", c.totalBytes),
		zap.Int("cached", c.ll.Len()))
}

// Contains reports whether the chapter is currently resident. Does not
// refresh recency.
func (c *ChapterCache) Contains(bookID string, chapter int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[Key{BookID: bookID, Chapter: chapter}]
	return ok
}

// Len returns the number of resident entries.
func (c *ChapterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// TotalBytes returns aggregate byte size of resident entries.
func (c *ChapterCache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Clear drops all entries belonging to the book. Releasing a closed book's
// memory promptly is a policy choice, the keyspace partitioning alone is
// sufficient for correctness.
func (c *ChapterCache) Clear(bookID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*chapterEntry)
		if e.key.BookID == bookID {
			c.ll.Remove(el)
			delete(c.items, e.key)
			c.totalBytes -= e.value.ByteSize
		}
		el = next
	}
}
