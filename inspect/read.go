package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ebr/cache"
	"ebr/common"
	"ebr/epub"
	"ebr/position"
	"ebr/reader"
	"ebr/render"
	"ebr/state"
)

// textSurface is a headless display surface: no pixels, only a text-flow
// estimate of content height so pagination has geometry to work with.
type textSurface struct {
	contentHeight int
}

// Rough text-flow estimate, ~80 characters per 20px line. Good enough to
// drive pagination for inspection; a real toolkit reports real layout.
func (s *textSurface) SetContent(html string) int {
	s.contentHeight = (len(html)/80 + 1) * 20
	return s.contentHeight
}

func (s *textSurface) ScrollTo(offset int) {}

// Read runs a headless reading session: opens the book at its persisted
// position, steps through the requested number of navigation intents and
// saves the resulting position, exactly as a GUI session would.
func Read(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("read")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no book has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	book, err := epub.Open(src, log)
	if err != nil {
		return fmt.Errorf("unable to open book: %w", err)
	}
	defer func() {
		err = multierr.Append(err, book.Close())
	}()

	store, err := position.Open(env.Cfg.Reader.Positions.Path, log)
	if err != nil {
		return fmt.Errorf("unable to open position store: %w", err)
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	cacheCfg := env.Cfg.Reader.Cache
	images := cache.NewImageCache(cacheCfg.ImageBudgetBytes(), log)
	resolver := render.NewResolver(book, images, &env.Cfg.Reader.Images, log)
	chapters := cache.NewChapterCache(
		reader.ChapterLoader(book, resolver),
		cacheCfg.MaxChapters, cacheCfg.ChapterBudgetBytes(), log)

	surface := &textSurface{}
	coord := reader.NewCoordinator(chapters, store, surface, reader.Events{
		Error: func(err error) {
			fmt.Fprintf(os.Stderr, "reading error: %v\n", err)
		},
	}, &env.Cfg.Reader, log)

	coord.OnLayoutChanged(1, int(cmd.Int("viewport")))
	if err := coord.OpenBook(ctx, book); err != nil {
		return fmt.Errorf("unable to start session: %w", err)
	}
	defer coord.Close()

	if cmd.Bool("paged") && coord.Mode() != common.ModePage {
		if err := coord.ToggleMode(); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "%s | %s\n", book.Title(), coord.ProgressDescription())
	for i := 0; i < int(cmd.Int("steps")); i++ {
		if err := coord.StepForward(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, coord.ProgressDescription())
	}

	log.Info("Session finished",
		zap.Int("chapter", coord.Chapter()),
		zap.Stringer("mode", coord.Mode()),
		zap.Int("cached_chapters", chapters.Len()),
		zap.Int64("cached_bytes", chapters.TotalBytes()),
		zap.Int64("cached_image_bytes", images.TotalBytes()))
	return nil
}
