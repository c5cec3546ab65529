// Package inspect implements the CLI actions: book inspection and a
// headless reading session dump exercising the full cache/pagination
// pipeline without a display toolkit.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cli "github.com/urfave/cli/v3"
	"github.com/maruel/natural"
	"go.uber.org/zap"

	"ebr/epub"
	"ebr/state"
)

// Info prints book metadata, spine order and the resource listing.
func Info(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("info")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no book has been specified")
	}
	src, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, multiple books specified", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	book, err := epub.Open(src, log)
	if err != nil {
		return fmt.Errorf("unable to open book: %w", err)
	}
	defer book.Close()

	fmt.Fprintf(os.Stdout, "Title:    %s\nCreator:  %s\nIdentity: %s\nChapters: %d\n\n",
		book.Title(), book.Creator(), book.ID(), book.ChapterCount())

	fmt.Fprintln(os.Stdout, "Spine:")
	for i := 0; i < book.ChapterCount(); i++ {
		href, err := book.ChapterHref(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "  %3d  %s\n", i, href)
	}

	if !cmd.Bool("resources") {
		return nil
	}

	hrefs := book.Resources()
	sort.Sort(natural.StringSlice(hrefs))

	fmt.Fprintln(os.Stdout, "\nResources:")
	for _, href := range hrefs {
		data, mediaType, err := book.Resource(href)
		if err != nil {
			log.Warn("Unable to read resource", zap.String("href", href), zap.Error(err))
			continue
		}
		fmt.Fprintf(os.Stdout, "  %-60s %-24s %d\n", href, mediaType, len(data))
	}
	return nil
}
