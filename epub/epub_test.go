package epub

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// pngMagic is a minimal well-formed PNG signature, enough for sniffing.
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

type testFile struct {
	name    string
	content []byte
}

func writeZip(t *testing.T, path string, files []testFile) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	for _, tf := range files {
		fw, err := w.Create(tf.name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", tf.name, err)
		}
		if _, err := fw.Write(tf.content); err != nil {
			t.Fatalf("Failed to write %s: %v", tf.name, err)
		}
	}
}

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:test-book-001</dc:identifier>
    <dc:title>Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="notes" href="notes.xhtml" media-type="application/xhtml+xml"/>
    <item id="img1" href="images/pic%201.png" media-type="image/png"/>
    <item id="img2" href="images/raw.bin"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="notes" linear="no"/>
  </spine>
</package>`

func writeTestBook(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.epub")
	writeZip(t, path, []testFile{
		{"mimetype", []byte("application/epub+zip")},
		{"META-INF/container.xml", []byte(testContainerXML)},
		{"OEBPS/content.opf", []byte(testOPF)},
		{"OEBPS/ch1.xhtml", []byte(`<html><body><p>Chapter one</p></body></html>`)},
		{"OEBPS/text/ch2.xhtml", []byte(`<html><body><p>Chapter two</p></body></html>`)},
		{"OEBPS/notes.xhtml", []byte(`<html><body><p>Notes</p></body></html>`)},
		{"OEBPS/images/pic 1.png", pngMagic},
		{"OEBPS/images/raw.bin", pngMagic},
	})
	return path
}

func TestOpen(t *testing.T) {
	b, err := Open(writeTestBook(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	if b.ID() != "urn:uuid:test-book-001" {
		t.Errorf("ID() = %q, want %q", b.ID(), "urn:uuid:test-book-001")
	}
	if b.Title() != "Test Book" {
		t.Errorf("Title() = %q, want %q", b.Title(), "Test Book")
	}
	if b.Creator() != "Test Author" {
		t.Errorf("Creator() = %q, want %q", b.Creator(), "Test Author")
	}
	// notes is linear="no" and not part of the reading order
	if b.ChapterCount() != 2 {
		t.Errorf("ChapterCount() = %d, want 2", b.ChapterCount())
	}
}

func TestBook_Chapter(t *testing.T) {
	b, err := Open(writeTestBook(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	t.Run("first chapter", func(t *testing.T) {
		html, href, err := b.Chapter(0)
		if err != nil {
			t.Fatalf("Chapter(0) error = %v", err)
		}
		if !strings.Contains(html, "Chapter one") {
			t.Errorf("Chapter(0) content = %q, want it to contain %q", html, "Chapter one")
		}
		if href != "OEBPS/ch1.xhtml" {
			t.Errorf("Chapter(0) href = %q, want %q", href, "OEBPS/ch1.xhtml")
		}
	})

	t.Run("nested chapter href", func(t *testing.T) {
		_, href, err := b.Chapter(1)
		if err != nil {
			t.Fatalf("Chapter(1) error = %v", err)
		}
		if href != "OEBPS/text/ch2.xhtml" {
			t.Errorf("Chapter(1) href = %q, want %q", href, "OEBPS/text/ch2.xhtml")
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for _, idx := range []int{-1, 2, 50} {
			_, _, err := b.Chapter(idx)
			var nf *ChapterNotFoundError
			if !errors.As(err, &nf) {
				t.Errorf("Chapter(%d) error = %v, want ChapterNotFoundError", idx, err)
				continue
			}
			if nf.Index != idx || nf.Count != 2 {
				t.Errorf("ChapterNotFoundError = %+v, want Index=%d Count=2", nf, idx)
			}
		}
	})
}

func TestBook_Resource(t *testing.T) {
	b, err := Open(writeTestBook(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	t.Run("manifest media type", func(t *testing.T) {
		data, mt, err := b.Resource("OEBPS/images/pic 1.png")
		if err != nil {
			t.Fatalf("Resource() error = %v", err)
		}
		if mt != "image/png" {
			t.Errorf("media type = %q, want image/png", mt)
		}
		if len(data) != len(pngMagic) {
			t.Errorf("data length = %d, want %d", len(data), len(pngMagic))
		}
	})

	t.Run("sniffed media type", func(t *testing.T) {
		_, mt, err := b.Resource("OEBPS/images/raw.bin")
		if err != nil {
			t.Fatalf("Resource() error = %v", err)
		}
		if mt != "image/png" {
			t.Errorf("sniffed media type = %q, want image/png", mt)
		}
	})

	t.Run("missing resource", func(t *testing.T) {
		if _, _, err := b.Resource("OEBPS/images/none.png"); err == nil {
			t.Error("expected error for missing resource")
		}
	})
}

func TestBook_NoIdentifierStableID(t *testing.T) {
	opfNoID := strings.Replace(testOPF, `<dc:identifier id="uid">urn:uuid:test-book-001</dc:identifier>`, "", 1)

	path := filepath.Join(t.TempDir(), "anon.epub")
	writeZip(t, path, []testFile{
		{"META-INF/container.xml", []byte(testContainerXML)},
		{"OEBPS/content.opf", []byte(opfNoID)},
		{"OEBPS/ch1.xhtml", []byte(`<html/>`)},
		{"OEBPS/text/ch2.xhtml", []byte(`<html/>`)},
		{"OEBPS/notes.xhtml", []byte(`<html/>`)},
	})

	b1, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id1 := b1.ID()
	b1.Close()

	b2, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	id2 := b2.ID()
	b2.Close()

	if len(id1) == 0 {
		t.Fatal("derived ID is empty")
	}
	if id1 != id2 {
		t.Errorf("derived ID is not stable across opens: %q vs %q", id1, id2)
	}
}

func TestOpen_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		files []testFile
	}{
		{"no container descriptor", []testFile{
			{"mimetype", []byte("application/epub+zip")},
		}},
		{"malformed container descriptor", []testFile{
			{"META-INF/container.xml", []byte("<container><unclosed")},
		}},
		{"container names no package", []testFile{
			{"META-INF/container.xml", []byte(`<container><rootfiles/></container>`)},
		}},
		{"missing package document", []testFile{
			{"META-INF/container.xml", []byte(testContainerXML)},
		}},
		{"empty spine", []testFile{
			{"META-INF/container.xml", []byte(testContainerXML)},
			{"OEBPS/content.opf", []byte(`<package><manifest/><spine/></package>`)},
		}},
		{"path traversal entry", []testFile{
			{"META-INF/container.xml", []byte(testContainerXML)},
			{"../evil.txt", []byte("nope")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.epub")
			writeZip(t, path, tt.files)
			if _, err := Open(path, zap.NewNop()); err == nil {
				t.Error("Open() succeeded on malformed book")
			}
		})
	}
}

func TestResolveRelative(t *testing.T) {
	tests := []struct {
		name        string
		chapterHref string
		ref         string
		expected    string
	}{
		{"sibling", "OEBPS/ch1.xhtml", "cover.png", "OEBPS/cover.png"},
		{"subdirectory", "OEBPS/ch1.xhtml", "images/pic.png", "OEBPS/images/pic.png"},
		{"parent directory", "OEBPS/text/ch2.xhtml", "../images/pic.png", "OEBPS/images/pic.png"},
		{"escaped space", "OEBPS/ch1.xhtml", "images/pic%201.png", "OEBPS/images/pic 1.png"},
		{"absolute", "OEBPS/ch1.xhtml", "/OEBPS/images/pic.png", "OEBPS/images/pic.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRelative(tt.chapterHref, tt.ref); got != tt.expected {
				t.Errorf("ResolveRelative(%q, %q) = %q, want %q", tt.chapterHref, tt.ref, got, tt.expected)
			}
		})
	}
}
