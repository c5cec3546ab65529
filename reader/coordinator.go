// Package reader orchestrates a single book-reading session: it tracks the
// current chapter and navigation mode, pulls content through the chapter
// cache, paginates it against the display geometry and keeps the durable
// reading position current.
package reader

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ebr/cache"
	"ebr/common"
	"ebr/config"
	"ebr/paginate"
	"ebr/position"
)

// ErrNoBookLoaded is returned by navigation operations before OpenBook.
var ErrNoBookLoaded = errors.New("no book is loaded")

// BookSource identifies an open book and its spine length. *epub.Book
// satisfies this.
type BookSource interface {
	ID() string
	ChapterCount() int
}

// PositionStore persists per-book reading positions. *position.Store
// satisfies this; the coordinator takes it by reference so tests can
// substitute a double and several sessions can share one database.
type PositionStore interface {
	Restore(bookID string, chapterCount int, defaultMode common.Mode) position.Position
	Save(bookID string, pos position.Position) error
	DefaultMode(fallback common.Mode) common.Mode
}

// DisplaySurface is the rendering side of the session. SetContent replaces
// the displayed markup and returns the laid out content height in device
// independent pixels; ScrollTo moves the visible window.
type DisplaySurface interface {
	SetContent(html string) int
	ScrollTo(offset int)
}

// Events carries the session's outbound notifications. Nil callbacks are
// skipped.
type Events struct {
	ChapterChanged    func(chapter, chapterCount int)
	PaginationChanged func(page, pageCount int)
	ModeChanged       func(mode common.Mode)
	Error             func(err error)
}

func (e Events) chapterChanged(chapter, count int) {
	if e.ChapterChanged != nil {
		e.ChapterChanged(chapter, count)
	}
}

func (e Events) paginationChanged(page, pages int) {
	if e.PaginationChanged != nil {
		e.PaginationChanged(page, pages)
	}
}

func (e Events) modeChanged(mode common.Mode) {
	if e.ModeChanged != nil {
		e.ModeChanged(mode)
	}
}

func (e Events) error(err error) {
	if e.Error != nil {
		e.Error(err)
	}
}

// Coordinator is the session state machine. It is single-caller: the
// embedding event loop issues one operation at a time and each runs to
// completion. Only the chapter cache underneath tolerates concurrency.
type Coordinator struct {
	chapters *cache.ChapterCache
	store    PositionStore
	surface  DisplaySurface
	events   Events
	cfg      *config.ReaderConfig
	log      *zap.Logger

	book    BookSource
	chapter int
	mode    common.Mode

	scrollOffset   int
	contentHeight  int
	viewportHeight int
	breaks         paginate.BreakSet
	page           int

	// loadGen invalidates in-flight chapter loads once the session has
	// navigated elsewhere: a stale result stays cached but is never applied
	// to the surface.
	loadGen uint64
}

func NewCoordinator(chapters *cache.ChapterCache, store PositionStore, surface DisplaySurface,
	events Events, cfg *config.ReaderConfig, log *zap.Logger) *Coordinator {

	return &Coordinator{
		chapters:       chapters,
		store:          store,
		surface:        surface,
		events:         events,
		cfg:            cfg,
		log:            log,
		viewportHeight: 1,
	}
}

// OpenBook starts a session: restores the persisted position (validated
// against the book's current spine), loads the chapter and, when paging,
// recomputes breakpoints. On chapter load failure no book is loaded.
func (c *Coordinator) OpenBook(ctx context.Context, book BookSource) error {
	pos := c.store.Restore(book.ID(), book.ChapterCount(), c.store.DefaultMode(c.cfg.DefaultMode))

	prev := c.book
	c.book = book
	if err := c.display(ctx, pos.Chapter); err != nil {
		c.book = prev
		return err
	}

	c.mode = pos.Mode
	switch c.mode {
	case common.ModePage:
		c.paginateTo(pos.Page)
	default:
		c.scrollOffset = pos.ScrollOffset
		if c.scrollOffset > c.contentHeight {
			c.scrollOffset = 0
		}
		c.surface.ScrollTo(c.scrollOffset)
	}

	c.log.Info("Opened book",
		zap.String("book", book.ID()),
		zap.Int("chapters", book.ChapterCount()),
		zap.Int("chapter", c.chapter),
		zap.Stringer("mode", c.mode))
	c.events.modeChanged(c.mode)
	return nil
}

// Close persists the position and ends the session.
func (c *Coordinator) Close() {
	if c.book == nil {
		return
	}
	c.SavePosition()
	c.book = nil
}

// Ready reports whether a book is loaded.
func (c *Coordinator) Ready() bool { return c.book != nil }

func (c *Coordinator) Chapter() int      { return c.chapter }
func (c *Coordinator) Mode() common.Mode { return c.mode }
func (c *Coordinator) Page() int         { return c.page }
func (c *Coordinator) PageCount() int    { return c.breaks.PageCount() }
func (c *Coordinator) ScrollOffset() int { return c.scrollOffset }

// NextChapter moves to the following chapter. No-op at the last chapter;
// the spine never wraps.
func (c *Coordinator) NextChapter(ctx context.Context) error {
	return c.changeChapter(ctx, c.chapter+1, 0)
}

// PrevChapter moves to the preceding chapter. No-op at the first chapter.
func (c *Coordinator) PrevChapter(ctx context.Context) error {
	return c.changeChapter(ctx, c.chapter-1, 0)
}

// changeChapter loads and displays another chapter, landing on the given
// page when paging. Out-of-spine targets are ignored. On failure the
// session stays on the current chapter.
func (c *Coordinator) changeChapter(ctx context.Context, chapter, landPage int) error {
	if c.book == nil {
		return ErrNoBookLoaded
	}
	if chapter < 0 || chapter >= c.book.ChapterCount() {
		return nil
	}

	if err := c.display(ctx, chapter); err != nil {
		return err
	}
	if c.mode == common.ModePage {
		if landPage < 0 {
			landPage = paginate.Compute(c.contentHeight, c.viewportHeight).PageCount() - 1
		}
		c.paginateTo(landPage)
	} else {
		c.scrollOffset = 0
		c.surface.ScrollTo(0)
	}
	c.SavePosition()
	return nil
}

// NextPage advances one page. At the last page of a chapter it rolls over
// to the next chapter's first page; at the end of the book it is a no-op.
// Outside page mode it is a no-op.
func (c *Coordinator) NextPage(ctx context.Context) error {
	if c.book == nil {
		return ErrNoBookLoaded
	}
	if c.mode != common.ModePage {
		return nil
	}

	if c.page < c.breaks.PageCount()-1 {
		c.setPage(c.page + 1)
		return nil
	}
	return c.changeChapter(ctx, c.chapter+1, 0)
}

// PrevPage steps one page back. At the first page of a chapter it rolls
// over to the previous chapter's last page; at the start of the book it is
// a no-op. Outside page mode it is a no-op.
func (c *Coordinator) PrevPage(ctx context.Context) error {
	if c.book == nil {
		return ErrNoBookLoaded
	}
	if c.mode != common.ModePage {
		return nil
	}

	if c.page > 0 {
		c.setPage(c.page - 1)
		return nil
	}
	return c.changeChapter(ctx, c.chapter-1, -1)
}

// StepForward is the raw "forward" intent: one page while paging, a
// configured fraction of the viewport while scrolling.
func (c *Coordinator) StepForward(ctx context.Context) error {
	if c.book == nil {
		return ErrNoBookLoaded
	}
	switch c.mode {
	case common.ModePage:
		return c.NextPage(ctx)
	default:
		c.scrollBy(int(float64(c.viewportHeight) * c.cfg.ScrollStep))
		return nil
	}
}

// StepBack is the raw "backward" intent, symmetric to StepForward.
func (c *Coordinator) StepBack(ctx context.Context) error {
	if c.book == nil {
		return ErrNoBookLoaded
	}
	switch c.mode {
	case common.ModePage:
		return c.PrevPage(ctx)
	default:
		c.scrollBy(-int(float64(c.viewportHeight) * c.cfg.ScrollStep))
		return nil
	}
}

// ToggleMode flips between scrolling and paging. Entering page mode snaps
// the current scroll offset to its page; leaving it keeps the offset, the
// native representation of a scrolling position.
func (c *Coordinator) ToggleMode() error {
	if c.book == nil {
		return ErrNoBookLoaded
	}

	switch c.mode {
	case common.ModeScroll:
		c.mode = common.ModePage
		c.breaks = paginate.Compute(c.contentHeight, c.viewportHeight)
		c.setPage(c.breaks.PageForOffset(c.scrollOffset))
	case common.ModePage:
		c.mode = common.ModeScroll
	}
	c.events.modeChanged(c.mode)
	c.SavePosition()
	return nil
}

// OnLayoutChanged takes the display surface's geometry report. While
// paging it remaps the position by logical page, the durable unit across
// reflows; while scrolling the new geometry is only recorded.
func (c *Coordinator) OnLayoutChanged(contentHeight, viewportHeight int) {
	if viewportHeight <= 0 || contentHeight < 0 {
		return
	}
	c.contentHeight = contentHeight
	c.viewportHeight = viewportHeight
	if c.book == nil || c.mode != common.ModePage {
		return
	}
	if !c.breaks.NeedsRecompute(contentHeight, viewportHeight) {
		return
	}

	var page int
	c.breaks, page = paginate.Remap(c.page, contentHeight, viewportHeight)
	c.setPage(page)
}

// OnScrolled takes the display surface's scroll offset report.
func (c *Coordinator) OnScrolled(offset int) {
	if offset < 0 {
		offset = 0
	}
	c.scrollOffset = offset
	if c.book != nil && c.mode == common.ModePage {
		c.page = c.breaks.PageForOffset(offset)
	}
}

// SavePosition writes the current position. Failures are logged and
// swallowed, a broken settings store must never block reading.
func (c *Coordinator) SavePosition() {
	if c.book == nil {
		return
	}
	err := c.store.Save(c.book.ID(), position.Position{
		Chapter:      c.chapter,
		Page:         c.page,
		ScrollOffset: c.scrollOffset,
		Mode:         c.mode,
	})
	if err != nil {
		c.log.Warn("Unable to save reading position",
			zap.String("book", c.book.ID()), zap.Error(err))
	}
}

// ProgressDescription renders human readable progress for the status line.
func (c *Coordinator) ProgressDescription() string {
	if c.book == nil {
		return "No book loaded"
	}
	switch c.mode {
	case common.ModePage:
		return fmt.Sprintf("Page %d of %d in Chapter %d",
			c.page+1, c.breaks.PageCount(), c.chapter+1)
	default:
		return fmt.Sprintf("Chapter %d of %d • %d%% through chapter",
			c.chapter+1, c.book.ChapterCount(), c.scrollPercent())
	}
}

func (c *Coordinator) scrollPercent() int {
	span := c.contentHeight - c.viewportHeight
	if span <= 0 {
		return 100
	}
	pct := c.scrollOffset * 100 / span
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// display loads a chapter through the cache and applies it to the surface.
// A load that completes after the session has moved on is dropped (the
// cache keeps it); a failed load leaves chapter state untouched, is logged
// with the failing index and reported through the error event.
func (c *Coordinator) display(ctx context.Context, chapter int) error {
	c.loadGen++
	gen := c.loadGen

	rc, err := c.chapters.Get(ctx, c.book.ID(), chapter)
	if err != nil {
		c.log.Error("Unable to load chapter",
			zap.String("book", c.book.ID()), zap.Int("chapter", chapter), zap.Error(err))
		c.events.error(err)
		return err
	}
	if gen != c.loadGen {
		c.log.Debug("Dropping stale chapter load",
			zap.String("book", c.book.ID()), zap.Int("chapter", chapter))
		return nil
	}

	c.chapter = chapter
	c.contentHeight = c.surface.SetContent(rc.HTML)
	c.events.chapterChanged(chapter, c.book.ChapterCount())
	return nil
}

// paginateTo recomputes breakpoints for the current geometry and lands on
// the given page, clamped to the new page count.
func (c *Coordinator) paginateTo(page int) {
	c.breaks, page = paginate.Remap(page, c.contentHeight, c.viewportHeight)
	c.setPage(page)
}

func (c *Coordinator) setPage(page int) {
	c.page = page
	c.scrollOffset = c.breaks.OffsetForPage(page)
	c.surface.ScrollTo(c.scrollOffset)
	c.events.paginationChanged(page, c.breaks.PageCount())
}

func (c *Coordinator) scrollBy(delta int) {
	offset := c.scrollOffset + delta
	if limit := c.contentHeight - c.viewportHeight; offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	c.scrollOffset = offset
	c.surface.ScrollTo(offset)
}
