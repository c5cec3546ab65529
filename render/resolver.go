// Package render turns raw chapter markup into display-ready HTML with all
// image references resolved to inline data, sized for cache accounting.
package render

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"ebr/cache"
	"ebr/config"
	"ebr/epub"
)

// ResourceSource serves raw resource bytes by container href. *epub.Book
// satisfies this.
type ResourceSource interface {
	Resource(href string) ([]byte, string, error)
}

// Resolver inlines a chapter's image references as data URIs. Individual
// image failures never fail the chapter: the reference is replaced with an
// embedded placeholder (or left alone when placeholders are disabled) and
// reading continues.
type Resolver struct {
	src    ResourceSource
	images *cache.ImageCache
	cfg    *config.ImagesConfig
	log    *zap.Logger
}

func NewResolver(src ResourceSource, images *cache.ImageCache, cfg *config.ImagesConfig, log *zap.Logger) *Resolver {
	return &Resolver{src: src, images: images, cfg: cfg, log: log}
}

// Resolved is chapter markup ready for the display surface.
type Resolved struct {
	HTML string
	// ImageBytes is the aggregate decoded image payload inlined into HTML,
	// tracked separately so the chapter cache can account for it.
	ImageBytes int64
}

// ResolveImages rewrites img/image references in chapter markup to inline
// data URIs. References are resolved against the chapter's own location in
// the container, not the package root. Returns an error only when the
// markup itself cannot be parsed.
func (r *Resolver) ResolveImages(markup, bookID, chapterHref string) (Resolved, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Entity:        htmlNamedEntities,
		Permissive:    true,
	}
	if err := doc.ReadFromString(markup); err != nil {
		return Resolved{}, fmt.Errorf("unable to parse chapter markup: %w", err)
	}

	var total int64
	for _, el := range doc.FindElements("//img") {
		total += r.inline(el, "src", bookID, chapterHref)
	}
	// SVG image elements reference resources through (xlink:)href
	for _, el := range doc.FindElements("//image") {
		attr := "href"
		if el.SelectAttr("href") == nil && el.SelectAttr("xlink:href") != nil {
			attr = "xlink:href"
		}
		total += r.inline(el, attr, bookID, chapterHref)
	}

	out, err := doc.WriteToString()
	if err != nil {
		return Resolved{}, fmt.Errorf("unable to serialize chapter markup: %w", err)
	}
	return Resolved{HTML: out, ImageBytes: total}, nil
}

// inline replaces one reference attribute with a data URI and returns the
// inlined payload size.
func (r *Resolver) inline(el *etree.Element, attr, bookID, chapterHref string) int64 {
	ref := el.SelectAttrValue(attr, "")
	if len(ref) == 0 || strings.HasPrefix(ref, "data:") ||
		strings.HasPrefix(ref, "http:") || strings.HasPrefix(ref, "https:") {
		return 0
	}

	href := epub.ResolveRelative(chapterHref, ref)

	// Resource identity, not chapter identity: a diagram referenced from five
	// chapters is decoded once.
	key := bookID + "\x00" + href
	data, err := r.images.Resolve(key, func() ([]byte, error) {
		return r.prepare(href)
	})
	if err != nil {
		r.log.Warn("Unable to resolve image, chapter renders without it",
			zap.String("book", bookID),
			zap.String("chapter", chapterHref),
			zap.String("resource", href),
			zap.Error(err))
		if r.cfg.UseBroken {
			el.CreateAttr(attr, brokenImageDataURI())
			return int64(len(brokenImagePNG))
		}
		return 0
	}

	mime := sniffImageMime(data)
	el.CreateAttr(attr, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	return int64(len(data))
}

// prepare fetches and post-processes a single image resource: oversized
// rasters are downscaled and SVG is optionally rasterized for raster-only
// display surfaces.
func (r *Resolver) prepare(href string) ([]byte, error) {
	data, mediaType, err := r.src.Resource(href)
	if err != nil {
		return nil, err
	}

	if isSVG(data, mediaType) {
		if !r.cfg.RasterizeSVG {
			return data, nil
		}
		out, err := rasterizeSVG(data, r.cfg.MaxDimension)
		if err != nil {
			return nil, fmt.Errorf("unable to rasterize SVG %s: %w", href, err)
		}
		return out, nil
	}

	out, changed, err := downscale(data, r.cfg, r.log.With(zap.String("resource", href)))
	if err != nil {
		return nil, err
	}
	if !changed {
		return data, nil
	}
	return out, nil
}
