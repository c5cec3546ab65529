package epub

import (
	"fmt"
)

// ChapterNotFoundError reports a chapter index outside the book's spine.
type ChapterNotFoundError struct {
	Index int
	Count int
}

func (e *ChapterNotFoundError) Error() string {
	return fmt.Sprintf("chapter %d not found, book has %d chapters", e.Index, e.Count)
}

// ChapterDecodeError reports a spine item that could not be read or decoded.
type ChapterDecodeError struct {
	Index int
	Href  string
	Err   error
}

func (e *ChapterDecodeError) Error() string {
	return fmt.Sprintf("unable to decode chapter %d (%s): %v", e.Index, e.Href, e.Err)
}

func (e *ChapterDecodeError) Unwrap() error { return e.Err }
