// Package epub opens EPUB containers and serves spine chapters and manifest
// resources to the reading core.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const containerPath = "META-INF/container.xml"

type manifestItem struct {
	id        string
	href      string // container path, normalized relative to archive root
	mediaType string
}

// Book is an opened EPUB container. It keeps the archive open for the
// lifetime of the reading session and is the sole source of chapter markup
// and embedded resources.
type Book struct {
	path string
	id   string

	rc    *zip.ReadCloser
	files map[string]*zip.File

	title    string
	creator  string
	opfDir   string
	manifest map[string]manifestItem // by item id
	byHref   map[string]manifestItem // by normalized href
	spine    []manifestItem

	log *zap.Logger
}

// Open reads the container descriptor and the OPF package document and
// prepares spine and manifest indexes. The archive stays open until Close.
func Open(bookPath string, log *zap.Logger) (*Book, error) {
	rc, err := zip.OpenReader(bookPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open container %s: %w", bookPath, err)
	}

	b := &Book{
		path:     bookPath,
		rc:       rc,
		files:    make(map[string]*zip.File),
		manifest: make(map[string]manifestItem),
		byHref:   make(map[string]manifestItem),
		log:      log,
	}

	for _, f := range rc.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			rc.Close()
			return nil, fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if !f.FileInfo().IsDir() {
			b.files[path.Clean(name)] = f
		}
	}

	if err := b.parse(); err != nil {
		rc.Close()
		return nil, err
	}

	log.Debug("Opened book",
		zap.String("path", bookPath),
		zap.String("id", b.id),
		zap.String("title", b.title),
		zap.Int("chapters", len(b.spine)),
		zap.Int("resources", len(b.byHref)))
	return b, nil
}

// Close releases the underlying archive.
func (b *Book) Close() error {
	return b.rc.Close()
}

// ID returns stable book identity: the package dc:identifier when present,
// otherwise a name-based UUID of the package document so the identity
// survives file moves.
func (b *Book) ID() string { return b.id }

func (b *Book) Title() string { return b.title }

func (b *Book) Creator() string { return b.creator }

func (b *Book) Path() string { return b.path }

// ChapterCount returns the number of spine items.
func (b *Book) ChapterCount() int { return len(b.spine) }

// Chapter returns raw chapter markup for the zero based spine index along
// with the chapter's container href (needed to resolve relative resource
// references). Markup is decoded to UTF-8 honoring declared charset.
func (b *Book) Chapter(index int) (string, string, error) {
	if index < 0 || index >= len(b.spine) {
		return "", "", &ChapterNotFoundError{Index: index, Count: len(b.spine)}
	}
	item := b.spine[index]

	data, err := b.readFile(item.href)
	if err != nil {
		return "", "", &ChapterDecodeError{Index: index, Href: item.href, Err: err}
	}

	r, err := charset.NewReader(bytes.NewReader(data), item.mediaType)
	if err != nil {
		return "", "", &ChapterDecodeError{Index: index, Href: item.href, Err: err}
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", "", &ChapterDecodeError{Index: index, Href: item.href, Err: err}
	}
	return string(decoded), item.href, nil
}

// ChapterHref returns the container href of the spine item without loading it.
func (b *Book) ChapterHref(index int) (string, error) {
	if index < 0 || index >= len(b.spine) {
		return "", &ChapterNotFoundError{Index: index, Count: len(b.spine)}
	}
	return b.spine[index].href, nil
}

// Resource returns raw bytes and media type for a container href. The media
// type comes from the manifest when declared, otherwise it is sniffed from
// content.
func (b *Book) Resource(href string) ([]byte, string, error) {
	href = normalizeHref(href)
	data, err := b.readFile(href)
	if err != nil {
		return nil, "", fmt.Errorf("resource %s: %w", href, err)
	}

	mt := ""
	if item, ok := b.byHref[href]; ok {
		mt = item.mediaType
	}
	if len(mt) == 0 {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			mt = kind.MIME.Value
		}
	}
	return data, mt, nil
}

// Resources returns container hrefs of all manifest items.
func (b *Book) Resources() []string {
	out := make([]string, 0, len(b.byHref))
	for href := range b.byHref {
		out = append(out, href)
	}
	return out
}

func (b *Book) readFile(href string) ([]byte, error) {
	f, ok := b.files[href]
	if !ok {
		return nil, fmt.Errorf("no such entry in container")
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Book) parse() error {
	opfPath, err := b.parseContainer()
	if err != nil {
		return err
	}
	return b.parseOPF(opfPath)
}

// parseContainer locates the OPF package document through META-INF/container.xml.
func (b *Book) parseContainer() (string, error) {
	data, err := b.readFile(containerPath)
	if err != nil {
		return "", fmt.Errorf("not an EPUB container (%s): %w", containerPath, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return "", fmt.Errorf("malformed container descriptor: %w", err)
	}

	for _, rf := range doc.FindElements("//rootfile") {
		if mt := rf.SelectAttrValue("media-type", ""); mt == "application/oebps-package+xml" || len(mt) == 0 {
			if full := rf.SelectAttrValue("full-path", ""); len(full) > 0 {
				return path.Clean(full), nil
			}
		}
	}
	return "", fmt.Errorf("container descriptor names no package document")
}

func (b *Book) parseOPF(opfPath string) error {
	data, err := b.readFile(opfPath)
	if err != nil {
		return fmt.Errorf("unable to read package document %s: %w", opfPath, err)
	}
	b.opfDir = path.Dir(opfPath)
	if b.opfDir == "." {
		b.opfDir = ""
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("malformed package document %s: %w", opfPath, err)
	}

	root := doc.Root()
	if root == nil {
		return fmt.Errorf("empty package document %s", opfPath)
	}

	if md := root.FindElement("metadata"); md != nil {
		if e := md.FindElement("title"); e != nil {
			b.title = strings.TrimSpace(e.Text())
		}
		if e := md.FindElement("creator"); e != nil {
			b.creator = strings.TrimSpace(e.Text())
		}
		if e := md.FindElement("identifier"); e != nil {
			b.id = strings.TrimSpace(e.Text())
		}
	}
	if len(b.id) == 0 {
		// No usable dc:identifier - derive stable name-based UUID from the
		// package document itself.
		b.id = uuid.NewSHA1(uuid.NameSpaceURL, data).String()
		b.log.Debug("Book has no identifier, derived one from package document", zap.String("id", b.id))
	}

	mf := root.FindElement("manifest")
	if mf == nil {
		return fmt.Errorf("package document %s has no manifest", opfPath)
	}
	for _, e := range mf.FindElements("item") {
		item := manifestItem{
			id:        e.SelectAttrValue("id", ""),
			mediaType: e.SelectAttrValue("media-type", ""),
		}
		href := e.SelectAttrValue("href", "")
		if len(item.id) == 0 || len(href) == 0 {
			b.log.Debug("Skipping incomplete manifest item", zap.String("id", item.id), zap.String("href", href))
			continue
		}
		item.href = b.resolveHref(href)
		b.manifest[item.id] = item
		b.byHref[item.href] = item
	}

	sp := root.FindElement("spine")
	if sp == nil {
		return fmt.Errorf("package document %s has no spine", opfPath)
	}
	for _, e := range sp.FindElements("itemref") {
		idref := e.SelectAttrValue("idref", "")
		item, ok := b.manifest[idref]
		if !ok {
			b.log.Warn("Spine references unknown manifest item, skipping", zap.String("idref", idref))
			continue
		}
		if e.SelectAttrValue("linear", "yes") == "no" {
			// Non-linear items are auxiliary content, not part of the reading order.
			continue
		}
		b.spine = append(b.spine, item)
	}
	if len(b.spine) == 0 {
		return fmt.Errorf("book has no readable chapters")
	}
	return nil
}

// resolveHref converts a manifest href (relative to the OPF location, possibly
// URL-escaped) to a normalized container path.
func (b *Book) resolveHref(href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if len(b.opfDir) > 0 {
		href = path.Join(b.opfDir, href)
	}
	return path.Clean(href)
}

// ResolveRelative interprets a resource reference against the referring
// chapter's own location in the container, per the EPUB rule that relative
// hrefs are resolved from the referencing document, not the package root.
func ResolveRelative(chapterHref, ref string) string {
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	if path.IsAbs(ref) {
		return path.Clean(strings.TrimPrefix(ref, "/"))
	}
	return path.Clean(path.Join(path.Dir(chapterHref), ref))
}

func normalizeHref(href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return path.Clean(strings.TrimPrefix(href, "/"))
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
