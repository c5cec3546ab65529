package render

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"ebr/config"
)

//go:embed broken.png
var brokenImagePNG []byte

func brokenImageDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(brokenImagePNG)
}

// sniffImageMime determines the MIME type from content, falling back to a
// generic octet stream when the payload is not recognizable.
func sniffImageMime(data []byte) string {
	if isSVG(data, "") {
		return "image/svg+xml"
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "application/octet-stream"
}

// isSVG checks declared type first, then sniffs the payload - EPUB manifests
// routinely lie about media types.
func isSVG(data []byte, mediaType string) bool {
	if strings.HasSuffix(strings.ToLower(mediaType), "svg+xml") {
		return true
	}
	head := bytes.TrimLeft(data[:min(len(data), 512)], " \t\r\n\xef\xbb\xbf")
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

// downscale resizes a raster image whose larger dimension exceeds the
// configured maximum, re-encoding in the original format. Returns the
// original data untouched when no resize is needed.
func downscale(data []byte, cfg *config.ImagesConfig, log *zap.Logger) ([]byte, bool, error) {
	if cfg.MaxDimension <= 0 {
		return data, false, nil
	}

	img, imgType, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("unable to decode image: %w", err)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= cfg.MaxDimension && h <= cfg.MaxDimension {
		return data, false, nil
	}

	if w >= h {
		img = imaging.Resize(img, cfg.MaxDimension, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, cfg.MaxDimension, imaging.Lanczos)
	}
	if img == nil {
		return nil, false, fmt.Errorf("unable to resize %dx%d image", w, h)
	}
	log.Debug("Downscaling oversized image",
		zap.Int("width", w), zap.Int("height", h), zap.Int("max", cfg.MaxDimension))

	buf := new(bytes.Buffer)
	switch imgType {
	case "png":
		err = imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		// Everything else re-encodes as JPEG, display surfaces do not care
		// about the container once the pixels are right.
		err = imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(cfg.JPEGQuality))
	}
	if err != nil {
		return nil, false, fmt.Errorf("unable to encode resized image: %w", err)
	}
	return buf.Bytes(), true, nil
}
