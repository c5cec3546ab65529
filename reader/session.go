package reader

import (
	"context"

	"ebr/cache"
	"ebr/render"
)

// ChapterSource serves raw chapter markup by spine index. *epub.Book
// satisfies this.
type ChapterSource interface {
	Chapter(index int) (string, string, error)
}

// Renderer resolves image references in chapter markup. *render.Resolver
// satisfies this.
type Renderer interface {
	ResolveImages(markup, bookID, chapterHref string) (render.Resolved, error)
}

// ChapterLoader adapts a chapter source and a renderer into the chapter
// cache's load function: raw markup in, display-ready content with byte
// accounting out. The inlined image payload is already part of the markup,
// so the entry size is simply the rendered length.
func ChapterLoader(src ChapterSource, r Renderer) cache.LoadFunc {
	return func(ctx context.Context, bookID string, chapter int) (cache.RenderedChapter, error) {
		markup, href, err := src.Chapter(chapter)
		if err != nil {
			return cache.RenderedChapter{}, err
		}
		resolved, err := r.ResolveImages(markup, bookID, href)
		if err != nil {
			return cache.RenderedChapter{}, err
		}
		return cache.RenderedChapter{HTML: resolved.HTML, ByteSize: int64(len(resolved.HTML))}, nil
	}
}
