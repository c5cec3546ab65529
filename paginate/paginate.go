// Package paginate converts continuous scroll geometry into discrete,
// navigable pages. Pages are virtual: recomputed from content and viewport
// heights, never persisted, with the page index serving as the durable unit
// of position while paging.
package paginate

import (
	"fmt"
)

// BreakSet holds page break offsets for one chapter, together with the
// geometry they were computed against. Stale as soon as either dimension
// changes.
type BreakSet struct {
	ContentHeight  int
	ViewportHeight int
	Breakpoints    []int
}

// Compute generates scroll-offset breakpoints one viewport apart. A chapter
// no taller than the viewport yields a single page at offset 0. Heights are
// device independent pixels and must be sane - garbage geometry here is a
// caller bug, not a runtime condition.
func Compute(contentHeight, viewportHeight int) BreakSet {
	if contentHeight < 0 || viewportHeight <= 0 {
		panic(fmt.Sprintf("invalid pagination geometry: content=%d viewport=%d", contentHeight, viewportHeight))
	}

	pages := (contentHeight + viewportHeight - 1) / viewportHeight
	if pages < 1 {
		pages = 1
	}

	bs := BreakSet{
		ContentHeight:  contentHeight,
		ViewportHeight: viewportHeight,
		Breakpoints:    make([]int, pages),
	}
	for i := range bs.Breakpoints {
		bs.Breakpoints[i] = i * viewportHeight
	}
	return bs
}

// PageCount returns the number of pages, always at least 1.
func (bs BreakSet) PageCount() int {
	return len(bs.Breakpoints)
}

// PageForOffset returns the greatest page whose breakpoint does not exceed
// the scroll offset, clamped to the valid range.
func (bs BreakSet) PageForOffset(offset int) int {
	if offset <= 0 {
		return 0
	}
	last := len(bs.Breakpoints) - 1
	for i := last; i >= 0; i-- {
		if bs.Breakpoints[i] <= offset {
			return i
		}
	}
	return 0
}

// OffsetForPage returns the scroll offset of the page's breakpoint,
// clamping out-of-range indices to the nearest valid page.
func (bs BreakSet) OffsetForPage(page int) int {
	if page < 0 {
		page = 0
	}
	if last := len(bs.Breakpoints) - 1; page > last {
		page = last
	}
	return bs.Breakpoints[page]
}

// NeedsRecompute reports whether the set was computed against different
// geometry than given.
func (bs BreakSet) NeedsRecompute(contentHeight, viewportHeight int) bool {
	return bs.ContentHeight != contentHeight || bs.ViewportHeight != viewportHeight
}

// Remap recomputes breakpoints for new geometry and carries the reader's
// logical page across: "stay on page N" even though N's pixel offset has
// changed. When the new set has fewer pages the index clamps to the last
// one.
func Remap(page, newContentHeight, newViewportHeight int) (BreakSet, int) {
	bs := Compute(newContentHeight, newViewportHeight)
	if page < 0 {
		page = 0
	}
	if last := bs.PageCount() - 1; page > last {
		page = last
	}
	return bs, page
}
