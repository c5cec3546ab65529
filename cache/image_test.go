package cache

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestImageCache_ResolveCaches(t *testing.T) {
	c := NewImageCache(1000, zap.NewNop())

	var loads atomic.Int64
	load := func() ([]byte, error) {
		loads.Add(1)
		return []byte("decoded-image"), nil
	}

	first, err := c.Resolve("book/images/pic.png", load)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := c.Resolve("book/images/pic.png", load)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("resolved bytes differ between calls")
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("load invoked %d times, want 1", got)
	}
}

func TestImageCache_ByteBudgetEviction(t *testing.T) {
	c := NewImageCache(100, zap.NewNop())

	payload := func(n int) func() ([]byte, error) {
		return func() ([]byte, error) { return make([]byte, n), nil }
	}

	for i := 0; i < 4; i++ {
		if _, err := c.Resolve(fmt.Sprintf("img-%d", i), payload(40)); err != nil {
			t.Fatalf("Resolve(img-%d) error = %v", i, err)
		}
		if c.TotalBytes() > 100 {
			t.Fatalf("after img-%d: bytes = %d, exceeds budget", i, c.TotalBytes())
		}
	}

	if c.Contains("img-0") || c.Contains("img-1") {
		t.Error("oldest images should have been evicted")
	}
	if !c.Contains("img-2") || !c.Contains("img-3") {
		t.Error("newest images should be resident")
	}
}

func TestImageCache_RecencyOnHit(t *testing.T) {
	c := NewImageCache(100, zap.NewNop())

	payload := func() ([]byte, error) { return make([]byte, 40), nil }

	// a, b resident; touch a; c's insertion must evict b, not a
	for _, key := range []string{"a", "b", "a", "c"} {
		if _, err := c.Resolve(key, payload); err != nil {
			t.Fatalf("Resolve(%s) error = %v", key, err)
		}
	}

	if c.Contains("b") {
		t.Error("b should have been evicted (least recently used)")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Error("a and c should be resident")
	}
}

func TestImageCache_OversizedSingleImage(t *testing.T) {
	c := NewImageCache(100, zap.NewNop())

	if _, err := c.Resolve("huge", func() ([]byte, error) { return make([]byte, 500), nil }); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !c.Contains("huge") {
		t.Error("sole oversized image should remain resident")
	}

	if _, err := c.Resolve("small", func() ([]byte, error) { return make([]byte, 10), nil }); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.Contains("huge") {
		t.Error("oversized image should be first eviction candidate")
	}
}

func TestImageCache_LoadFailureNotCached(t *testing.T) {
	c := NewImageCache(100, zap.NewNop())

	sentinel := errors.New("missing resource")
	if _, err := c.Resolve("gone", func() ([]byte, error) { return nil, sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("Resolve() error = %v, want %v", err, sentinel)
	}

	if c.Contains("gone") || c.Len() != 0 {
		t.Error("failed load must not leave cache entries")
	}
}
